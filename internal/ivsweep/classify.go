package ivsweep

import (
	"errors"
	"fmt"
	"math"
)

// Config is everything a Classifier needs. It is copied at construction and
// never consulted again from the caller's side.
type Config struct {
	Weights    Weights
	Thresholds Thresholds
}

// DefaultConfig returns the built-in weights and thresholds.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), Thresholds: DefaultThresholds()}
}

// Classifier runs the five analysis stages with a fixed configuration.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	weights    Weights
	thresholds Thresholds
	rules      []Rule
}

// NewClassifier validates cfg and returns a ready classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	for _, name := range RuleNames() {
		if !isFinite(cfg.Weights.Get(name)) {
			return nil, fmt.Errorf("weight for %q must be finite", name)
		}
	}
	return &Classifier{
		weights:    Weights{version: cfg.Weights.Version(), table: cfg.Weights.Table()},
		thresholds: cfg.Thresholds,
		rules:      DefaultRules(),
	}, nil
}

// Weights returns the weight table in use.
func (c *Classifier) Weights() Weights { return c.weights }

// Thresholds returns the thresholds in use.
func (c *Classifier) Thresholds() Thresholds { return c.thresholds }

// Classify analyses one sweep. Only inputs that cannot be conditioned return
// an error; every other problem is reported through Result.Warnings.
func (c *Classifier) Classify(in Input) (*Result, error) {
	diag := NewDiagnostics()
	tr, err := Condition(in, c.thresholds, diag)
	if err != nil {
		var ide *InsufficientDataError
		if errors.As(err, &ide) {
			opsf("rejected sweep: %v", ide)
		}
		return nil, err
	}

	f := ExtractFeatures(tr, c.thresholds, diag)
	r, h := ComputeMetrics(tr, f, c.thresholds, diag)
	d := c.Score(f, r, h, diag)
	res := Assemble(tr, f, r, h, d, diag, c.weights.Version())

	diagf("classified %d points as %s (confidence %.3f, warnings %v)",
		res.Points, res.DeviceType, res.Confidence, res.Warnings)
	return res, nil
}

// Decision is the outcome of scoring one feature set.
type Decision struct {
	DeviceType    DeviceType
	Confidence    float64
	Scores        map[DeviceType]float64
	Contributions []RuleContribution
}

// Score folds the rules over zero-initialised scores and selects the device
// type. It never fails.
func (c *Classifier) Score(f Features, r ResistanceMetrics, h HysteresisMetrics, diag *Diagnostics) Decision {
	in := ruleInput{F: f, R: r, H: h, T: c.thresholds}
	d := Decision{Scores: make(map[DeviceType]float64, len(ScoredTypes))}
	for _, t := range ScoredTypes {
		d.Scores[t] = 0
	}
	d.Contributions = []RuleContribution{}

	for _, rule := range c.rules {
		if !rule.When(in) {
			continue
		}
		w := c.weights.Get(rule.Name)
		d.Scores[rule.Device] += w
		d.Contributions = append(d.Contributions, RuleContribution{Rule: rule.Name, Device: rule.Device, Delta: w})
		tracef("rule %s fired: %s %+g", rule.Name, rule.Device, w)
	}

	best, top, second := rankScores(d.Scores)
	d.DeviceType = best
	d.Confidence = Confidence(top, second, c.thresholds.ConfidenceSoftness)

	th := c.thresholds
	switch {
	case top < th.MinScore:
		diag.Warn(WarnBelowScoreFloor)
		diag.Note(fmt.Sprintf("best score %g (%s) is below the floor %g", top, best, th.MinScore))
		d.DeviceType = Unknown
	case d.Confidence < th.MinConfidence:
		diag.Warn(WarnLowConfidence)
		diag.Note(fmt.Sprintf("confidence %.3f for %s is below %g", d.Confidence, best, th.MinConfidence))
		d.DeviceType = Unknown
	}
	if second > 0 && top-second < th.AmbiguityMargin {
		diag.Warn(WarnAmbiguous)
		diag.Note(fmt.Sprintf("runner-up within %g of %s (%g vs %g)", th.AmbiguityMargin, best, top, second))
	}
	return d
}

// rankScores returns the highest-scoring type (earliest in ScoredTypes on a
// tie) together with the top and runner-up scores.
func rankScores(scores map[DeviceType]float64) (DeviceType, float64, float64) {
	best := ScoredTypes[0]
	top := scores[best]
	for _, t := range ScoredTypes[1:] {
		if scores[t] > top {
			best, top = t, scores[t]
		}
	}
	second := math.Inf(-1)
	for _, t := range ScoredTypes {
		if t != best && scores[t] > second {
			second = scores[t]
		}
	}
	return best, top, second
}

// Confidence maps the winning margin into [0, 1):
//
//	top / (top + softness + max(second, 0))   for top > 0
//	0                                          otherwise
//
// It rises with the top score and falls as the runner-up approaches it.
// softness keeps a lone small score from reaching full confidence.
func Confidence(top, second, softness float64) float64 {
	if top <= 0 {
		return 0
	}
	denom := top + softness + math.Max(second, 0)
	if denom <= 0 {
		return 0
	}
	return clamp01(top / denom)
}
