package ivsweep

import (
	"fmt"
	"math"
)

// ComputeMetrics derives the resistance states and the hysteresis loop
// descriptors of a trace. It never fails: one-directional sweeps simply
// report no measurable hysteresis.
func ComputeMetrics(tr *Trace, f Features, th Thresholds, diag *Diagnostics) (ResistanceMetrics, HysteresisMetrics) {
	res := ResistanceMetrics{ReadVoltage: tr.ReadVoltage}
	hyst := HysteresisMetrics{
		Shape:           ShapeNone,
		HasHysteresis:   f.HasHysteresis,
		Pinched:         f.PinchedHysteresis,
		CrossingRegions: f.CrossingRegions,
		Cycles:          f.Cycles,
		PinchOffset:     f.PinchOffset,
		NormalizedArea:  f.NormalizedLoopArea,
		AreaThreshold:   relativeAreaThreshold(tr.PeakCurrent, th),
	}
	if tr.Len() < th.MinFeaturePoints {
		return res, hyst
	}

	offset := zeroBiasOffset(zeroBiasCurrents(tr.Voltage, tr.Current), th.ZeroBiasSpread)
	la := analyzeLoops(tr, th, offset)
	res = resistanceFromPairs(la.pairs, tr, th, diag)
	res.ZeroBiasCurrent = offset

	hyst.LoopArea = la.totalArea()
	hyst.PositiveLobeArea = la.posArea
	hyst.NegativeLobeArea = la.negArea
	hyst.LobeAsymmetry = lobeAsymmetry(la.posArea, la.negArea)
	hyst.Smoothness = smoothness(tr.Current)
	hyst.Shape = loopShape(f)

	diagf("metrics: ron=%.4g roff=%.4g ratio=%.3g pairs=%d area=%.4g (rel %.4g, threshold %.4g) shape=%s",
		res.RonMean, res.RoffMean, res.SwitchingRatioMean, res.ReadPairs,
		hyst.LoopArea, hyst.NormalizedArea, hyst.AreaThreshold, hyst.Shape)
	return res, hyst
}

func resistanceFromPairs(pairs []readPair, tr *Trace, th Thresholds, diag *Diagnostics) ResistanceMetrics {
	res := ResistanceMetrics{ReadVoltage: tr.ReadVoltage, ReadPairs: len(pairs)}
	if len(pairs) == 0 {
		diag.Warn(WarnSwitchingUnavailable)
		return res
	}
	if len(pairs) < 2 {
		diag.Warn(WarnSingleCycleStatistics)
	}

	floor := th.RatioFloorFraction * tr.PeakCurrent
	var rons, roffs, ratios []float64
	for _, p := range pairs {
		on := math.Max(p.outgoing, p.ret)
		off := math.Max(math.Min(p.outgoing, p.ret), floor)
		if on <= 0 || off <= 0 {
			diag.Note(fmt.Sprintf("skipping read pair with zero current at %g V", tr.ReadVoltage))
			continue
		}
		rons = append(rons, tr.ReadVoltage/on)
		roffs = append(roffs, tr.ReadVoltage/off)
		ratios = append(ratios, p.ratio(floor))
	}

	res.RonMean, res.RonStd = meanStd(rons)
	res.RoffMean, res.RoffStd = meanStd(roffs)
	res.SwitchingRatioMean, res.SwitchingRatioStd = meanStd(ratios)
	res.RonCV = coefficientOfVariation(res.RonMean, res.RonStd)
	res.RoffCV = coefficientOfVariation(res.RoffMean, res.RoffStd)
	return res
}

// lobeAsymmetry is |A+ - A-| / (A+ + A-); zero when there is no area.
func lobeAsymmetry(pos, neg float64) float64 {
	total := pos + neg
	if total <= 0 {
		return 0
	}
	return math.Abs(pos-neg) / total
}

// smoothness maps the ratio of second to first differences into (0, 1];
// 1 is a perfectly straight trace.
func smoothness(c []float64) float64 {
	if len(c) < 3 {
		return 1
	}
	var d1, d2 float64
	for i := 1; i < len(c); i++ {
		d1 += math.Abs(c[i] - c[i-1])
		if i >= 2 {
			d2 += math.Abs(c[i] - 2*c[i-1] + c[i-2])
		}
	}
	d1 /= float64(len(c) - 1)
	d2 /= float64(len(c) - 2)
	if d1 == 0 {
		return 1
	}
	return 1 / (1 + d2/d1)
}

func loopShape(f Features) LoopShape {
	switch {
	case !f.HasHysteresis:
		return ShapeNone
	case f.DoubleZeroCrossing:
		return ShapeButterfly
	case f.PinchedHysteresis:
		return ShapeFigure8
	default:
		return ShapeElliptical
	}
}
