package ivsweep

import "fmt"

// Thresholds centralises every numeric cut-off used by the extractor, the
// metrics stage and the classifier. Fractions are relative to the sweep's own
// peak voltage, peak current or sample count unless stated otherwise.
type Thresholds struct {
	// MinFeaturePoints is the sample count below which features stay neutral.
	MinFeaturePoints int `json:"min_feature_points" yaml:"min_feature_points"`

	// CrossingGroupFraction merges current sign changes closer than this
	// fraction of the trace length into one crossing region.
	CrossingGroupFraction float64 `json:"crossing_group_fraction" yaml:"crossing_group_fraction"`
	// DoubleCrossingMinRegions is the crossing regions per cycle that mark a
	// double zero crossing.
	DoubleCrossingMinRegions float64 `json:"double_crossing_min_regions" yaml:"double_crossing_min_regions"`
	// PinchTolerance is the largest zero-bias current (over peak) of a pinched loop.
	PinchTolerance float64 `json:"pinch_tolerance" yaml:"pinch_tolerance"`
	// PinchToleranceSwitching replaces PinchTolerance once switching is detected.
	PinchToleranceSwitching float64 `json:"pinch_tolerance_switching" yaml:"pinch_tolerance_switching"`
	// LobeMinFraction ignores voltage excursions smaller than this fraction of peak.
	LobeMinFraction float64 `json:"lobe_min_fraction" yaml:"lobe_min_fraction"`

	// ReadVoltageFraction places the inferred read voltage relative to peak |V|.
	ReadVoltageFraction float64 `json:"read_voltage_fraction" yaml:"read_voltage_fraction"`
	// SwitchingRatioMin is the ON/OFF ratio above which switching is detected.
	SwitchingRatioMin float64 `json:"switching_ratio_min" yaml:"switching_ratio_min"`
	// WeakSwitchingRatioMin is the lower edge of the weak switching band.
	WeakSwitchingRatioMin float64 `json:"weak_switching_ratio_min" yaml:"weak_switching_ratio_min"`
	// RatioFloorFraction floors the OFF-state current used as ratio denominator.
	RatioFloorFraction float64 `json:"ratio_floor_fraction" yaml:"ratio_floor_fraction"`
	// ZeroBiasSpread is the largest spread, relative to the mean, of the
	// currents at V = 0 that still counts as a constant offset.
	ZeroBiasSpread float64 `json:"zero_bias_spread" yaml:"zero_bias_spread"`

	LinearR2Min            float64 `json:"linear_r2_min" yaml:"linear_r2_min"`
	OhmicR2Min             float64 `json:"ohmic_r2_min" yaml:"ohmic_r2_min"`
	OhmicInterceptFraction float64 `json:"ohmic_intercept_fraction" yaml:"ohmic_intercept_fraction"`

	// HysteresisAreaBase is the relative loop area required at the reference
	// current; it grows as sqrt(reference/peak) for smaller devices, clamped
	// to [HysteresisAreaMinRelative, HysteresisAreaMaxRelative].
	HysteresisAreaBase         float64 `json:"hysteresis_area_base" yaml:"hysteresis_area_base"`
	HysteresisReferenceCurrent float64 `json:"hysteresis_reference_current" yaml:"hysteresis_reference_current"`
	HysteresisAreaMinRelative  float64 `json:"hysteresis_area_min_relative" yaml:"hysteresis_area_min_relative"`
	HysteresisAreaMaxRelative  float64 `json:"hysteresis_area_max_relative" yaml:"hysteresis_area_max_relative"`
	// WeakHysteresisMax separates artifact-level loops from real ones.
	WeakHysteresisMax float64 `json:"weak_hysteresis_max" yaml:"weak_hysteresis_max"`
	LoopGridPoints    int     `json:"loop_grid_points" yaml:"loop_grid_points"`

	PolarityRatio         float64 `json:"polarity_ratio" yaml:"polarity_ratio"`
	CapacitivePhaseDeg    float64 `json:"capacitive_phase_deg" yaml:"capacitive_phase_deg"`
	MemcapacitivePhaseDeg float64 `json:"memcapacitive_phase_deg" yaml:"memcapacitive_phase_deg"`

	// ConfidenceSoftness is added to the denominator of the confidence margin.
	ConfidenceSoftness float64 `json:"confidence_softness" yaml:"confidence_softness"`
	MinScore           float64 `json:"min_score" yaml:"min_score"`
	MinConfidence      float64 `json:"min_confidence" yaml:"min_confidence"`
	AmbiguityMargin    float64 `json:"ambiguity_margin" yaml:"ambiguity_margin"`
}

// DefaultThresholds returns the thresholds shipped with weights version 1.4.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFeaturePoints:           20,
		CrossingGroupFraction:      0.05,
		DoubleCrossingMinRegions:   3,
		PinchTolerance:             0.05,
		PinchToleranceSwitching:    0.10,
		LobeMinFraction:            0.05,
		ReadVoltageFraction:        0.1,
		SwitchingRatioMin:          2.0,
		WeakSwitchingRatioMin:      1.2,
		RatioFloorFraction:         1e-6,
		ZeroBiasSpread:             0.5,
		LinearR2Min:                0.98,
		OhmicR2Min:                 0.995,
		OhmicInterceptFraction:     0.02,
		HysteresisAreaBase:         1e-4,
		HysteresisReferenceCurrent: 1e-3,
		HysteresisAreaMinRelative:  1e-3,
		HysteresisAreaMaxRelative:  0.01,
		WeakHysteresisMax:          0.03,
		LoopGridPoints:             64,
		PolarityRatio:              1.5,
		CapacitivePhaseDeg:         45,
		MemcapacitivePhaseDeg:      30,
		ConfidenceSoftness:         20,
		MinScore:                   10,
		MinConfidence:              0.3,
		AmbiguityMargin:            10,
	}
}

// Validate checks that the thresholds describe a usable configuration.
func (t Thresholds) Validate() error {
	if t.MinFeaturePoints < 2 {
		return fmt.Errorf("min_feature_points must be at least 2, got %d", t.MinFeaturePoints)
	}
	if t.LoopGridPoints < 2 {
		return fmt.Errorf("loop_grid_points must be at least 2, got %d", t.LoopGridPoints)
	}
	fractions := []struct {
		name string
		v    float64
	}{
		{"crossing_group_fraction", t.CrossingGroupFraction},
		{"pinch_tolerance", t.PinchTolerance},
		{"pinch_tolerance_switching", t.PinchToleranceSwitching},
		{"lobe_min_fraction", t.LobeMinFraction},
		{"read_voltage_fraction", t.ReadVoltageFraction},
		{"linear_r2_min", t.LinearR2Min},
		{"ohmic_r2_min", t.OhmicR2Min},
		{"min_confidence", t.MinConfidence},
	}
	for _, f := range fractions {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", f.name, f.v)
		}
	}
	if t.PinchToleranceSwitching < t.PinchTolerance {
		return fmt.Errorf("pinch_tolerance_switching (%g) must not be tighter than pinch_tolerance (%g)",
			t.PinchToleranceSwitching, t.PinchTolerance)
	}
	if t.SwitchingRatioMin <= 1 {
		return fmt.Errorf("switching_ratio_min must exceed 1, got %g", t.SwitchingRatioMin)
	}
	if t.WeakSwitchingRatioMin < 1 || t.WeakSwitchingRatioMin > t.SwitchingRatioMin {
		return fmt.Errorf("weak_switching_ratio_min must be within [1, switching_ratio_min], got %g", t.WeakSwitchingRatioMin)
	}
	if t.DoubleCrossingMinRegions <= 2 {
		return fmt.Errorf("double_crossing_min_regions must exceed 2, got %g", t.DoubleCrossingMinRegions)
	}
	if t.HysteresisReferenceCurrent <= 0 {
		return fmt.Errorf("hysteresis_reference_current must be positive, got %g", t.HysteresisReferenceCurrent)
	}
	if t.HysteresisAreaBase < 0 || t.HysteresisAreaMinRelative < 0 || t.HysteresisAreaMaxRelative < 0 || t.WeakHysteresisMax < 0 {
		return fmt.Errorf("hysteresis area thresholds must be non-negative")
	}
	if t.HysteresisAreaMinRelative > t.HysteresisAreaMaxRelative {
		return fmt.Errorf("hysteresis_area_min_relative (%g) must not exceed hysteresis_area_max_relative (%g)",
			t.HysteresisAreaMinRelative, t.HysteresisAreaMaxRelative)
	}
	if t.PolarityRatio < 1 {
		return fmt.Errorf("polarity_ratio must be at least 1, got %g", t.PolarityRatio)
	}
	if t.ConfidenceSoftness <= 0 {
		return fmt.Errorf("confidence_softness must be positive, got %g", t.ConfidenceSoftness)
	}
	if t.AmbiguityMargin < 0 {
		return fmt.Errorf("ambiguity_margin must be non-negative, got %g", t.AmbiguityMargin)
	}
	return nil
}
