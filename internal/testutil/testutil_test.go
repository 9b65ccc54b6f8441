package testutil

import (
	"errors"
	"math"
	"testing"
)

// TestAssertNoError_NilErr tests nil error path.
func TestAssertNoError_NilErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

// TestAssertError_WithErr tests non-nil error path.
func TestAssertError_WithErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("something wrong"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}
}

func TestTriangleVoltage_Shape(t *testing.T) {
	v := TriangleVoltage(400, 1, 2)
	if len(v) != 400 {
		t.Fatalf("expected 400 samples, got %d", len(v))
	}
	checks := []struct {
		idx  int
		want float64
	}{
		{0, 0},
		{100, 2},
		{200, 0},
		{300, -2},
	}
	for _, c := range checks {
		if math.Abs(v[c.idx]-c.want) > 1e-12 {
			t.Errorf("v[%d] = %g, want %g", c.idx, v[c.idx], c.want)
		}
	}
}

func TestTriangleVoltage_Cycles(t *testing.T) {
	v := TriangleVoltage(800, 2, 1)
	if len(v) != 800 {
		t.Fatalf("expected 800 samples, got %d", len(v))
	}
	for k := 0; k < 400; k++ {
		if v[k] != v[k+400] {
			t.Fatalf("cycle 2 differs at %d: %g vs %g", k, v[k], v[k+400])
		}
	}
}

func TestSineVoltage_Peak(t *testing.T) {
	v := SineVoltage(400, 1, 1.5)
	if math.Abs(v[100]-1.5) > 1e-12 {
		t.Errorf("expected peak 1.5 at quarter period, got %g", v[100])
	}
}

func TestPseudoNoise_Deterministic(t *testing.T) {
	for k := 0; k < 50; k++ {
		a, b := PseudoNoise(k, 0.1), PseudoNoise(k, 0.1)
		if a != b {
			t.Fatalf("noise not deterministic at %d", k)
		}
		if math.Abs(a) > 0.1 {
			t.Fatalf("noise %g exceeds amplitude", a)
		}
	}
}

func TestSwitchingSweep_Normalised(t *testing.T) {
	v, i := SwitchingSweep(DefaultSwitchingOptions())
	if len(v) != len(i) {
		t.Fatalf("length mismatch: %d vs %d", len(v), len(i))
	}
	peak := 0.0
	for _, x := range i {
		peak = math.Max(peak, math.Abs(x))
	}
	if math.Abs(peak-1e-3) > 1e-15 {
		t.Errorf("expected peak current 1e-3, got %g", peak)
	}
	// Offset: current at V = 0 on the first sample is positive.
	if i[0] <= 0 {
		t.Errorf("expected positive zero-bias offset, got %g", i[0])
	}
}

func TestCapacitorAndDoubleCrossing_Lengths(t *testing.T) {
	testCases := []struct {
		name string
		gen  func() ([]float64, []float64)
	}{
		{"capacitor", func() ([]float64, []float64) { return Capacitor(200, 1e-6, 60) }},
		{"double", func() ([]float64, []float64) { return DoubleCrossing(200, 1e-6, 40, 1.5) }},
		{"linear", func() ([]float64, []float64) { return LinearWithArtifact(200, 1e-3, 0.005) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, i := tc.gen()
			if len(v) != 200 || len(i) != 200 {
				t.Errorf("expected 200 samples, got %d/%d", len(v), len(i))
			}
		})
	}
}
