package ivsweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// qualityWeights blend memory window, stability and completeness into the
// overall 0-100 quality score.
var qualityWeights = []float64{0.4, 0.3, 0.3}

// Assemble packages the outputs of every stage into a Result. It only copies
// and aggregates; no analysis happens here.
func Assemble(tr *Trace, f Features, r ResistanceMetrics, h HysteresisMetrics, d Decision, diag *Diagnostics, version string) *Result {
	res := &Result{
		DeviceType:      d.DeviceType,
		Confidence:      finiteOr(d.Confidence, 0),
		ScoreBreakdown:  make(map[DeviceType]float64, len(ScoredTypes)),
		Contributions:   append([]RuleContribution{}, d.Contributions...),
		TopContributors: topContributors(d.Contributions, 3),
		Features:        sanitizeFeatures(f),
		Resistance:      sanitizeResistance(r),
		Hysteresis:      sanitizeHysteresis(h),
		Warnings:        diag.Warnings(),
		WeightsVersion:  version,
		DeviceID:        tr.DeviceID,
		Points:          tr.Len(),
	}
	if notes := diag.Notes(); len(notes) > 0 {
		res.Notes = notes
	}
	for _, t := range ScoredTypes {
		res.ScoreBreakdown[t] = finiteOr(d.Scores[t], 0)
	}
	res.Quality = quality(tr, res.Resistance)
	return res
}

func quality(tr *Trace, r ResistanceMetrics) QualityMetrics {
	var q QualityMetrics
	if r.ReadPairs > 0 && r.RoffMean > 0 {
		q.MemoryWindow = clamp01(1 - r.RonMean/r.RoffMean)
	}
	// A single read pair says nothing about cycle-to-cycle stability.
	if r.ReadPairs >= 2 {
		q.Stability = 1 / (1 + (r.RonCV+r.RoffCV)/2)
	}
	if total := tr.Len() + tr.Dropped; total > 0 {
		q.Completeness = float64(tr.Len()) / float64(total)
	}
	q.Overall = 100 * floats.Dot(qualityWeights, []float64{q.MemoryWindow, q.Stability, q.Completeness})
	return q
}

// topContributors returns the names of the n rules with the largest absolute
// contribution. Ties keep rule order.
func topContributors(cs []RuleContribution, n int) []string {
	sorted := append([]RuleContribution(nil), cs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Delta) > math.Abs(sorted[j].Delta)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[i].Rule
	}
	return out
}

func sanitizeFeatures(f Features) Features {
	f.PhaseShiftDeg = finiteOr(f.PhaseShiftDeg, 0)
	f.SwitchingRatio = finiteOr(f.SwitchingRatio, 0)
	f.LinearityR2 = finiteOr(f.LinearityR2, 0)
	f.NormalizedLoopArea = finiteOr(f.NormalizedLoopArea, 0)
	f.PinchOffset = finiteOr(f.PinchOffset, 0)
	f.RectificationRatio = finiteOr(f.RectificationRatio, 0)
	return f
}

func sanitizeResistance(r ResistanceMetrics) ResistanceMetrics {
	for _, p := range []*float64{
		&r.ReadVoltage, &r.RonMean, &r.RoffMean, &r.RonStd, &r.RoffStd,
		&r.RonCV, &r.RoffCV, &r.SwitchingRatioMean, &r.SwitchingRatioStd, &r.ZeroBiasCurrent,
	} {
		*p = finiteOr(*p, 0)
	}
	return r
}

func sanitizeHysteresis(h HysteresisMetrics) HysteresisMetrics {
	for _, p := range []*float64{
		&h.LoopArea, &h.NormalizedArea, &h.AreaThreshold, &h.PositiveLobeArea,
		&h.NegativeLobeArea, &h.LobeAsymmetry, &h.Smoothness, &h.PinchOffset,
	} {
		*p = finiteOr(*p, 0)
	}
	return h
}
