package ivsweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// meanStd returns the mean and sample standard deviation of xs.
// Returns (0, 0) for empty slices and a zero deviation for single values.
func meanStd(xs []float64) (mean, std float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// coefficientOfVariation returns std/|mean|, or 0 when the mean is zero.
func coefficientOfVariation(mean, std float64) float64 {
	if mean == 0 {
		return 0
	}
	return std / math.Abs(mean)
}

// median returns the median of xs without modifying it.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// finiteOr replaces NaN and infinities so results always encode as JSON.
func finiteOr(x, fallback float64) float64 {
	if isFinite(x) {
		return x
	}
	return fallback
}
