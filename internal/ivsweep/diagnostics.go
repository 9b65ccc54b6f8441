package ivsweep

import "sort"

// Warning flags recorded on a Result. Degraded-feature flags mean a value was
// replaced by its neutral default; ambiguity flags mean the device type is a
// best guess.
const (
	WarnSamplesDropped         = "samples_dropped"
	WarnSamplesInterpolated    = "samples_interpolated"
	WarnTimeLengthMismatch     = "time_length_mismatch"
	WarnTimeNotMonotonic       = "time_not_monotonic"
	WarnReadVoltageOutOfRange  = "read_voltage_out_of_range"
	WarnInsufficientPoints     = "insufficient_points"
	WarnHysteresisUnmeasurable = "hysteresis_unmeasurable"
	WarnSwitchingUnavailable   = "switching_ratio_unavailable"
	WarnSingleCycleStatistics  = "single_cycle_statistics"
	WarnZeroBiasUnavailable    = "zero_bias_unavailable"
	WarnPinchRelaxedTolerance  = "pinch_relaxed_tolerance"
	WarnPolarityUnmeasurable   = "polarity_unmeasurable"
	WarnPhaseUnavailable       = "phase_unavailable"
	WarnLinearityUnavailable   = "linearity_unavailable"

	WarnAmbiguous       = "ambiguous_classification"
	WarnLowConfidence   = "low_confidence"
	WarnBelowScoreFloor = "below_score_floor"
)

// Diagnostics collects warning flags and free-form notes while one sweep is
// analysed. A nil *Diagnostics discards everything.
type Diagnostics struct {
	warnings map[string]struct{}
	notes    []string
}

// NewDiagnostics returns an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{warnings: make(map[string]struct{})}
}

// Warn records a warning flag. Repeated flags are stored once.
func (d *Diagnostics) Warn(flag string) {
	if d == nil {
		return
	}
	if d.warnings == nil {
		d.warnings = make(map[string]struct{})
	}
	d.warnings[flag] = struct{}{}
}

// Note records a human-readable diagnostic line.
func (d *Diagnostics) Note(msg string) {
	if d == nil {
		return
	}
	d.notes = append(d.notes, msg)
}

// Has reports whether flag was recorded.
func (d *Diagnostics) Has(flag string) bool {
	if d == nil {
		return false
	}
	_, ok := d.warnings[flag]
	return ok
}

// Warnings returns the recorded flags sorted alphabetically.
func (d *Diagnostics) Warnings() []string {
	out := []string{}
	if d == nil {
		return out
	}
	for w := range d.warnings {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Notes returns a copy of the recorded notes in insertion order.
func (d *Diagnostics) Notes() []string {
	if d == nil {
		return []string{}
	}
	return append([]string{}, d.notes...)
}
