// Package ivsweep classifies a single voltage/current sweep of a two-terminal
// device as memristive, ohmic, capacitive or memcapacitive. A sweep passes
// through five stages: conditioning, feature extraction, resistance and
// hysteresis metrics, weighted rule scoring and result assembly. Every stage
// is a pure function of its inputs, so a Classifier may be shared between
// goroutines.
package ivsweep

// DeviceType is the closed set of classification outcomes.
type DeviceType string

const (
	Memristive    DeviceType = "memristive"
	Ohmic         DeviceType = "ohmic"
	Capacitive    DeviceType = "capacitive"
	Memcapacitive DeviceType = "memcapacitive"
	Unknown       DeviceType = "unknown"
)

// ScoredTypes lists the device types that receive a score, in tie-break order.
var ScoredTypes = []DeviceType{Memristive, Ohmic, Capacitive, Memcapacitive}

// LoopShape describes the geometry of the hysteresis loop.
type LoopShape string

const (
	ShapeNone       LoopShape = "none"
	ShapeFigure8    LoopShape = "figure8"
	ShapeElliptical LoopShape = "elliptical"
	ShapeButterfly  LoopShape = "butterfly"
)

// Input is one sweep as delivered by a measurement or file-loading layer.
// Time and Metadata are optional.
type Input struct {
	Voltage  []float64
	Current  []float64
	Time     []float64
	Metadata map[string]any
}

// Features are the signals the classifier scores. They are computed once per
// sweep and never updated.
type Features struct {
	HasHysteresis      bool    `json:"has_hysteresis"`
	PinchedHysteresis  bool    `json:"pinched_hysteresis"`
	DoubleZeroCrossing bool    `json:"double_zero_crossing"`
	SwitchingBehavior  bool    `json:"switching_behavior"`
	NonlinearIV        bool    `json:"nonlinear_iv"`
	LinearIV           bool    `json:"linear_iv"`
	OhmicFit           bool    `json:"ohmic_fit"`
	PolarityDependent  bool    `json:"polarity_dependent"`
	PhaseShiftDeg      float64 `json:"phase_shift_deg"`

	SwitchingRatio     float64 `json:"switching_ratio"`
	LinearityR2        float64 `json:"linearity_r2"`
	NormalizedLoopArea float64 `json:"normalized_loop_area"`
	PinchOffset        float64 `json:"pinch_offset"`
	CrossingRegions    int     `json:"crossing_regions"`
	Cycles             int     `json:"cycles"`
	RectificationRatio float64 `json:"rectification_ratio"`
}

// ResistanceMetrics summarises the two resistance states seen at the read
// voltage across every measurable sweep lobe.
type ResistanceMetrics struct {
	ReadVoltage        float64 `json:"read_voltage"`
	RonMean            float64 `json:"ron_mean"`
	RoffMean           float64 `json:"roff_mean"`
	RonStd             float64 `json:"ron_std"`
	RoffStd            float64 `json:"roff_std"`
	RonCV              float64 `json:"ron_cv"`
	RoffCV             float64 `json:"roff_cv"`
	SwitchingRatioMean float64 `json:"switching_ratio_mean"`
	SwitchingRatioStd  float64 `json:"switching_ratio_std"`
	ReadPairs          int     `json:"read_pairs"`
	ZeroBiasCurrent    float64 `json:"zero_bias_current"`
}

// HysteresisMetrics describes the enclosed I-V loop.
type HysteresisMetrics struct {
	HasHysteresis    bool      `json:"has_hysteresis"`
	Pinched          bool      `json:"pinched"`
	Shape            LoopShape `json:"shape"`
	LoopArea         float64   `json:"loop_area"`
	NormalizedArea   float64   `json:"normalized_area"`
	AreaThreshold    float64   `json:"area_threshold"`
	PositiveLobeArea float64   `json:"positive_lobe_area"`
	NegativeLobeArea float64   `json:"negative_lobe_area"`
	LobeAsymmetry    float64   `json:"lobe_asymmetry"`
	Smoothness       float64   `json:"smoothness"`
	CrossingRegions  int       `json:"crossing_regions"`
	Cycles           int       `json:"cycles"`
	PinchOffset      float64   `json:"pinch_offset"`
}

// QualityMetrics grades how usable the device is as a memory element.
type QualityMetrics struct {
	MemoryWindow float64 `json:"memory_window"`
	Stability    float64 `json:"stability"`
	Completeness float64 `json:"completeness"`
	Overall      float64 `json:"overall"`
}

// RuleContribution records one scoring rule that fired.
type RuleContribution struct {
	Rule   string     `json:"rule"`
	Device DeviceType `json:"device"`
	Delta  float64    `json:"delta"`
}

// Result is the complete outcome of classifying one sweep. It is built once
// and owned by the caller afterwards.
type Result struct {
	DeviceType      DeviceType             `json:"device_type"`
	Confidence      float64                `json:"confidence"`
	ScoreBreakdown  map[DeviceType]float64 `json:"score_breakdown"`
	Contributions   []RuleContribution     `json:"contributions"`
	TopContributors []string               `json:"top_contributors"`
	Features        Features               `json:"features"`
	Resistance      ResistanceMetrics      `json:"resistance_metrics"`
	Hysteresis      HysteresisMetrics      `json:"hysteresis_metrics"`
	Quality         QualityMetrics         `json:"quality"`
	Warnings        []string               `json:"warnings"`
	Notes           []string               `json:"notes,omitempty"`
	WeightsVersion  string                 `json:"weights_version"`
	DeviceID        string                 `json:"device_id,omitempty"`
	Points          int                    `json:"points"`
}
