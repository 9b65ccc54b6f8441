// Package testutil provides shared test utilities and fixtures.
//
// The sweep generators produce deterministic synthetic I-V traces for the
// four device families the classifier distinguishes. Every generator is a
// pure function of its arguments so tests can assert exact outcomes.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TriangleVoltage returns a bipolar triangle sweep 0 → +vmax → -vmax → 0
// repeated cycles times, with n/cycles samples per cycle.
func TriangleVoltage(n, cycles int, vmax float64) []float64 {
	if cycles < 1 {
		cycles = 1
	}
	per := n / cycles
	v := make([]float64, 0, per*cycles)
	for c := 0; c < cycles; c++ {
		for k := 0; k < per; k++ {
			u := float64(k) / float64(per)
			var x float64
			switch {
			case u < 0.25:
				x = 4 * u
			case u < 0.75:
				x = 2 - 4*u
			default:
				x = 4*u - 4
			}
			v = append(v, vmax*x)
		}
	}
	return v
}

// SineVoltage returns vmax·sin(2π·cycles·k/n) for k in [0, n).
func SineVoltage(n, cycles int, vmax float64) []float64 {
	v := make([]float64, n)
	for k := range v {
		v[k] = vmax * math.Sin(2*math.Pi*float64(cycles)*float64(k)/float64(n))
	}
	return v
}

// PseudoNoise is a deterministic, zero-mean-ish disturbance of amplitude amp
// for sample k.
func PseudoNoise(k int, amp float64) float64 {
	x := float64(k)
	return amp * math.Sin(x*12.9898+78.233*math.Sin(x*0.731))
}

// LinearWithArtifact is a resistor of conductance scale (A/V at 1 V) on a
// triangle sweep, plus a small second-harmonic artifact of relative size
// artifact that opens a thin loop.
func LinearWithArtifact(n int, scale, artifact float64) (v, i []float64) {
	v = TriangleVoltage(n, 1, 1)
	i = make([]float64, len(v))
	for k, x := range v {
		i[k] = x*scale + artifact*scale*math.Sin(4*math.Pi*float64(k)/float64(n))
	}
	return v, i
}

// SwitchingOptions configures SwitchingSweep.
type SwitchingOptions struct {
	N      int
	Cycles int
	// Scale is the peak current after normalisation.
	Scale float64
	// Offset is the constant zero-bias current as a fraction of peak current.
	Offset float64
	// OnOffRatio is the conductance ratio of the two states.
	OnOffRatio float64
	// Noise is the pseudo-noise amplitude as a fraction of the ON-state peak.
	Noise float64
}

// DefaultSwitchingOptions describes a bipolar switching device with an 8%
// zero-bias offset and a 3x ON/OFF ratio.
func DefaultSwitchingOptions() SwitchingOptions {
	return SwitchingOptions{N: 400, Cycles: 1, Scale: 1e-3, Offset: 0.08, OnOffRatio: 3}
}

// SwitchingSweep models a bipolar resistive switch: a sinh conduction law,
// SET at +0.6 V and RESET at -0.6 V, a constant zero-bias offset and optional
// pseudo-noise.
func SwitchingSweep(o SwitchingOptions) (v, i []float64) {
	const (
		k    = 3.0
		vset = 0.6
	)
	v = TriangleVoltage(o.N, o.Cycles, 1)
	i = make([]float64, len(v))
	on := false
	for idx, x := range v {
		if x >= vset {
			on = true
		}
		if x <= -vset {
			on = false
		}
		g := 1.0
		if on {
			g = o.OnOffRatio
		}
		i[idx] = g * math.Sinh(k*x) / k
	}
	ipk := o.OnOffRatio * math.Sinh(k) / k
	i0 := o.Offset * ipk / (1 - o.Offset)
	for idx := range i {
		i[idx] += i0 + PseudoNoise(idx, o.Noise*ipk)
	}
	normalize(i, o.Scale)
	return v, i
}

// DoubleCrossing is a sine-driven element whose current carries a strong
// second harmonic, so it crosses zero four times per cycle.
func DoubleCrossing(n int, scale, phaseDeg, harmonic float64) (v, i []float64) {
	v = SineVoltage(n, 1, 1)
	p := phaseDeg * math.Pi / 180
	i = make([]float64, n)
	for k := range i {
		i[k] = math.Sin(2*math.Pi*float64(k)/float64(n)+p) + harmonic*math.Sin(4*math.Pi*float64(k)/float64(n))
	}
	normalize(i, scale)
	return v, i
}

// Capacitor is a sine-driven element whose current leads the voltage by
// phaseDeg, tracing an ellipse.
func Capacitor(n int, scale, phaseDeg float64) (v, i []float64) {
	v = SineVoltage(n, 1, 1)
	p := phaseDeg * math.Pi / 180
	i = make([]float64, n)
	for k := range i {
		i[k] = scale * math.Sin(2*math.Pi*float64(k)/float64(n)+p)
	}
	return v, i
}

// normalize rescales xs in place so that max |x| equals scale.
func normalize(xs []float64, scale float64) {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	if m == 0 {
		return
	}
	for k := range xs {
		xs[k] = xs[k] / m * scale
	}
}
