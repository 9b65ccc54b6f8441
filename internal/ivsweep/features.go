package ivsweep

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// ExtractFeatures computes the classification signals of a conditioned trace.
// A feature that cannot be evaluated keeps its neutral value and leaves a
// warning on diag.
func ExtractFeatures(tr *Trace, th Thresholds, diag *Diagnostics) Features {
	var f Features
	if tr.Len() < th.MinFeaturePoints {
		diag.Warn(WarnInsufficientPoints)
		diag.Note(fmt.Sprintf("%d samples, features need %d", tr.Len(), th.MinFeaturePoints))
		return f
	}

	zb := zeroBiasCurrents(tr.Voltage, tr.Current)
	offset := zeroBiasOffset(zb, th.ZeroBiasSpread)
	la := analyzeLoops(tr, th, offset)
	f.Cycles = la.cycles

	regions := crossingRegions(tr.Current, th.CrossingGroupFraction)
	f.CrossingRegions = len(regions)
	perCycle := float64(len(regions)) / float64(la.cycles)
	f.DoubleZeroCrossing = perCycle >= th.DoubleCrossingMinRegions

	if len(la.pairs) == 0 {
		diag.Warn(WarnSwitchingUnavailable)
	} else {
		f.SwitchingRatio = switchingRatio(la.pairs, th.RatioFloorFraction*tr.PeakCurrent)
	}
	f.SwitchingBehavior = f.SwitchingRatio > th.SwitchingRatioMin

	if la.measurable == 0 {
		diag.Warn(WarnHysteresisUnmeasurable)
	} else if tr.PeakVoltage > 0 && tr.PeakCurrent > 0 {
		f.NormalizedLoopArea = la.totalArea() / (tr.PeakVoltage * tr.PeakCurrent)
		f.HasHysteresis = f.NormalizedLoopArea > relativeAreaThreshold(tr.PeakCurrent, th)
	}

	if len(zb) == 0 || tr.PeakCurrent == 0 {
		diag.Warn(WarnZeroBiasUnavailable)
	} else {
		abs := make([]float64, len(zb))
		for i, x := range zb {
			abs[i] = math.Abs(x)
		}
		f.PinchOffset = median(abs) / tr.PeakCurrent
		tol := pinchTolerance(f.SwitchingBehavior, th)
		f.PinchedHysteresis = f.HasHysteresis && !f.DoubleZeroCrossing && f.PinchOffset <= tol
		if f.PinchedHysteresis && f.PinchOffset > th.PinchTolerance {
			diag.Warn(WarnPinchRelaxedTolerance)
		}
	}

	if r2, alpha, beta, ok := linearity(tr.Voltage, tr.Current); ok {
		f.LinearityR2 = r2
		f.LinearIV = r2 >= th.LinearR2Min
		f.NonlinearIV = !f.LinearIV
		f.OhmicFit = r2 >= th.OhmicR2Min && beta > 0 &&
			math.Abs(alpha) <= th.OhmicInterceptFraction*tr.PeakCurrent
	} else {
		diag.Warn(WarnLinearityUnavailable)
	}

	if deg, ok := phaseShift(tr.Voltage, tr.Current); ok {
		f.PhaseShiftDeg = deg
	} else {
		diag.Warn(WarnPhaseUnavailable)
	}

	if ratio, ok := rectification(tr.Voltage, tr.Current, tr.PeakVoltage); ok {
		f.RectificationRatio = ratio
		f.PolarityDependent = ratio > th.PolarityRatio || ratio < 1/th.PolarityRatio
	} else {
		diag.Warn(WarnPolarityUnmeasurable)
	}

	diagf("features: hyst=%t pinched=%t double=%t switching=%t(%.3g) linear=%t r2=%.4f phase=%.1f regions=%d cycles=%d",
		f.HasHysteresis, f.PinchedHysteresis, f.DoubleZeroCrossing, f.SwitchingBehavior, f.SwitchingRatio,
		f.LinearIV, f.LinearityR2, f.PhaseShiftDeg, f.CrossingRegions, f.Cycles)
	return f
}

// crossingRegions returns the sample indices where the current changes sign,
// grouped so that crossings closer than gapFraction of the trace length form
// one region. Exact zeros carry the previous sign forward.
func crossingRegions(c []float64, gapFraction float64) [][]int {
	gap := max(1, int(math.Ceil(gapFraction*float64(len(c)))))
	var regions [][]int
	last := 0
	for i, x := range c {
		s := sign(x)
		if s == 0 {
			continue
		}
		if last != 0 && s != last {
			if n := len(regions); n > 0 {
				prev := regions[n-1]
				if i-prev[len(prev)-1] <= gap {
					regions[n-1] = append(prev, i)
					last = s
					continue
				}
			}
			regions = append(regions, []int{i})
		}
		last = s
	}
	return regions
}

// pinchTolerance widens the pinch band for switching devices, whose series
// and contact resistance shift the crossing away from the origin.
func pinchTolerance(switching bool, th Thresholds) float64 {
	if switching {
		return th.PinchToleranceSwitching
	}
	return th.PinchTolerance
}

// relativeAreaThreshold is the loop area, relative to peak |V|·peak |I|, a
// sweep must exceed to count as hysteretic. In absolute terms the threshold
// grows with sqrt(peak current / reference current). The relative value is
// clamped to [min, max] so a loop whose normalised area lies outside that
// band is judged the same at any current scale.
func relativeAreaThreshold(peakCurrent float64, th Thresholds) float64 {
	if peakCurrent <= 0 {
		return th.HysteresisAreaMaxRelative
	}
	rel := th.HysteresisAreaBase * math.Sqrt(th.HysteresisReferenceCurrent/peakCurrent)
	return math.Min(math.Max(rel, th.HysteresisAreaMinRelative), th.HysteresisAreaMaxRelative)
}

// switchingRatio averages the ON/OFF ratio per polarity and returns the
// larger polarity mean, so devices that switch in one polarity only are
// still detected.
func switchingRatio(pairs []readPair, floor float64) float64 {
	sums := map[int]float64{}
	counts := map[int]int{}
	for _, p := range pairs {
		sums[p.sign] += p.ratio(floor)
		counts[p.sign]++
	}
	best := 0.0
	for s, n := range counts {
		best = math.Max(best, sums[s]/float64(n))
	}
	return best
}

// linearity fits I = alpha + beta·V and returns the coefficient of
// determination.
func linearity(v, c []float64) (r2, alpha, beta float64, ok bool) {
	if stat.Variance(v, nil) == 0 || stat.Variance(c, nil) == 0 {
		return 0, 0, 0, false
	}
	alpha, beta = stat.LinearRegression(v, c, nil, false)
	r2 = stat.RSquared(v, c, nil, alpha, beta)
	if !isFinite(r2) {
		return 0, 0, 0, false
	}
	return r2, alpha, beta, true
}

// phaseShift treats the sweep as a Lissajous pair and returns the phase of
// the current's component at the voltage's dominant harmonic, relative to
// the voltage, folded into [0, 90] degrees.
func phaseShift(v, c []float64) (float64, bool) {
	n := len(v)
	if n < 4 {
		return 0, false
	}
	fft := fourier.NewFFT(n)
	vc := fft.Coefficients(nil, v)
	cc := fft.Coefficients(nil, c)

	k := 0
	for i := 1; i < len(vc); i++ {
		if k == 0 || cmplx.Abs(vc[i]) > cmplx.Abs(vc[k]) {
			k = i
		}
	}
	if k == 0 || cmplx.Abs(vc[k]) == 0 || cmplx.Abs(cc[k]) == 0 {
		return 0, false
	}

	d := (cmplx.Phase(cc[k]) - cmplx.Phase(vc[k])) * 180 / math.Pi
	d = math.Mod(d+540, 360) - 180
	d = math.Abs(d)
	if d > 90 {
		d = 180 - d
	}
	return d, true
}

// rectification compares the mean |I| at high positive bias with the mean
// |I| at high negative bias.
func rectification(v, c []float64, peak float64) (float64, bool) {
	var posSum, negSum float64
	var posN, negN int
	for i := range v {
		switch {
		case v[i] > 0.5*peak:
			posSum += math.Abs(c[i])
			posN++
		case v[i] < -0.5*peak:
			negSum += math.Abs(c[i])
			negN++
		}
	}
	if posN == 0 || negN == 0 {
		return 0, false
	}
	pos, neg := posSum/float64(posN), negSum/float64(negN)
	switch {
	case pos == 0 && neg == 0:
		return 1, true
	case neg == 0:
		return math.MaxFloat64, true
	}
	return pos / neg, true
}
