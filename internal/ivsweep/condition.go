package ivsweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Trace is a conditioned sweep: finite samples in their original order plus
// the scale information later stages rely on.
type Trace struct {
	Voltage []float64
	Current []float64
	Time    []float64

	PeakVoltage float64
	PeakCurrent float64
	Bipolar     bool

	// ReadVoltage is the positive bias at which resistance states are read.
	ReadVoltage float64
	DeviceID    string

	Dropped      int
	Interpolated int
}

// Len returns the number of samples in the trace.
func (t *Trace) Len() int { return len(t.Voltage) }

// Condition validates and cleans a raw sweep. It fails only when nothing can
// be analysed; recoverable problems are recorded on diag.
func Condition(in Input, th Thresholds, diag *Diagnostics) (*Trace, error) {
	n := len(in.Voltage)
	if n != len(in.Current) {
		return nil, insufficient(n, "voltage has %d samples but current has %d", n, len(in.Current))
	}
	if n < 2 {
		return nil, insufficient(n, "at least 2 samples are required")
	}

	finiteCurrent := 0
	for _, c := range in.Current {
		if isFinite(c) {
			finiteCurrent++
		}
	}
	if finiteCurrent == 0 {
		return nil, insufficient(n, "every current sample is NaN or infinite")
	}

	tm := in.Time
	if tm != nil && len(tm) != n {
		diag.Warn(WarnTimeLengthMismatch)
		diag.Note(fmt.Sprintf("time has %d samples, expected %d; ignoring time", len(tm), n))
		tm = nil
	}

	tr := &Trace{
		Voltage: make([]float64, 0, n),
		Current: make([]float64, 0, n),
	}
	if tm != nil {
		tr.Time = make([]float64, 0, n)
	}

	// kept reports whether sample k survives cleaning on its own.
	kept := func(k int) bool {
		return isFinite(in.Voltage[k]) && isFinite(in.Current[k]) && (tm == nil || isFinite(tm[k]))
	}
	for i := 0; i < n; i++ {
		v, c := in.Voltage[i], in.Current[i]
		if !isFinite(v) || (tm != nil && !isFinite(tm[i])) {
			tr.Dropped++
			continue
		}
		if !isFinite(c) {
			// Isolated glitches between two good samples are bridged.
			if i > 0 && i < n-1 && kept(i-1) && kept(i+1) {
				c = (in.Current[i-1] + in.Current[i+1]) / 2
				tr.Interpolated++
			} else {
				tr.Dropped++
				continue
			}
		}
		tr.Voltage = append(tr.Voltage, v)
		tr.Current = append(tr.Current, c)
		if tm != nil {
			tr.Time = append(tr.Time, tm[i])
		}
	}

	if tr.Len() < 2 {
		return nil, insufficient(tr.Len(), "fewer than 2 finite samples remain after cleaning")
	}
	if tr.Dropped > 0 {
		diag.Warn(WarnSamplesDropped)
		diag.Note(fmt.Sprintf("dropped %d non-finite samples", tr.Dropped))
	}
	if tr.Interpolated > 0 {
		diag.Warn(WarnSamplesInterpolated)
		diag.Note(fmt.Sprintf("interpolated %d isolated non-finite current samples", tr.Interpolated))
	}
	for i := 1; i < len(tr.Time); i++ {
		if tr.Time[i] < tr.Time[i-1] {
			diag.Warn(WarnTimeNotMonotonic)
			break
		}
	}

	var hasPos, hasNeg bool
	for i := range tr.Voltage {
		if a := math.Abs(tr.Voltage[i]); a > tr.PeakVoltage {
			tr.PeakVoltage = a
		}
		if a := math.Abs(tr.Current[i]); a > tr.PeakCurrent {
			tr.PeakCurrent = a
		}
	}
	for _, v := range tr.Voltage {
		if v > th.LobeMinFraction*tr.PeakVoltage {
			hasPos = true
		}
		if v < -th.LobeMinFraction*tr.PeakVoltage {
			hasNeg = true
		}
	}
	tr.Bipolar = hasPos && hasNeg

	tr.ReadVoltage = th.ReadVoltageFraction * tr.PeakVoltage
	if rv, ok := metadataFloat(in.Metadata, "read_voltage"); ok {
		rv = math.Abs(rv)
		if rv > 0 && rv <= tr.PeakVoltage {
			tr.ReadVoltage = rv
		} else {
			diag.Warn(WarnReadVoltageOutOfRange)
			diag.Note(fmt.Sprintf("read_voltage %g outside (0, %g]; using %g", rv, tr.PeakVoltage, tr.ReadVoltage))
		}
	}
	if id, ok := in.Metadata["device_id"]; ok {
		tr.DeviceID = fmt.Sprint(id)
	}

	return tr, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// metadataFloat converts a loosely typed metadata value to float64.
func metadataFloat(md map[string]any, key string) (float64, bool) {
	v, ok := md[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, isFinite(val)
	case float32:
		return float64(val), isFinite(float64(val))
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, isFinite(f)
	default:
		return 0, false
	}
}
