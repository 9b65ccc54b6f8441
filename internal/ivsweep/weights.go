package ivsweep

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultWeightsVersion is the version of the built-in weight table.
//
// Version history of the scoring table:
//
//	1.0  initial additive scorer
//	1.1  graduated ohmic tiers instead of a single linear rule
//	1.2  penalty for hysteresis without switching (noise artifacts on resistors)
//	1.3  bonus for switching together with nonlinearity, so offset switching
//	     devices without a perfect zero crossing stop scoring memcapacitive
//	1.4  double zero crossing becomes the memcapacitive signal; plain unpinched
//	     hysteresis is kept only as a weak legacy contribution and the pinched
//	     penalty is raised
const DefaultWeightsVersion = "1.4"

// Scoring rule names. They double as keys of the external weight table.
const (
	RuleMemristiveHysteresis         = "memristive_hysteresis"
	RuleMemristiveSwitching          = "memristive_switching"
	RuleMemristiveSwitchingNonlinear = "memristive_switching_plus_nonlinear_bonus"
	RuleMemristivePinched            = "memristive_pinched"
	RuleMemristivePolarity           = "memristive_polarity"
	RuleMemristivePenaltyLinear      = "memristive_penalty_linear"
	RuleMemristivePenaltyOhmic       = "memristive_penalty_ohmic"
	RuleMemristivePenaltyNoSwitching = "memristive_penalty_hysteresis_without_switching"
	RuleOhmicStrong                  = "ohmic_strong"
	RuleOhmicLinear                  = "ohmic_linear"
	RuleOhmicWeakHysteresis          = "ohmic_weak_hysteresis"
	RuleOhmicSomeHysteresis          = "ohmic_some_hysteresis"
	RuleOhmicPenaltySwitching        = "ohmic_penalty_switching_hysteresis"
	RuleOhmicPenaltyNonlinear        = "ohmic_penalty_nonlinear"
	RuleCapacitiveUnpinched          = "capacitive_unpinched_hysteresis"
	RuleCapacitivePhase              = "capacitive_phase"
	RuleCapacitiveElliptical         = "capacitive_elliptical"
	RuleCapacitiveNoSwitching        = "capacitive_no_switching"
	RuleCapacitivePenaltySwitching   = "capacitive_penalty_switching"
	RuleCapacitivePenaltyPinched     = "capacitive_penalty_pinched"
	RuleMemcapDoubleZeroCrossing     = "memcapacitive_double_zero_crossing"
	RuleMemcapPhase                  = "memcapacitive_phase"
	RuleMemcapWeakSwitching          = "memcapacitive_weak_switching"
	RuleMemcapLobeShape              = "memcapacitive_lobe_shape"
	RuleMemcapUnpinchedLegacy        = "memcapacitive_unpinched_hysteresis_legacy"
	RuleMemcapPenaltyPinched         = "memcapacitive_penalty_pinched"
	RuleMemcapPenaltyStrongSwitching = "memcapacitive_penalty_strong_switching"
)

func defaultWeightTable() map[string]float64 {
	return map[string]float64{
		RuleMemristiveHysteresis:         20,
		RuleMemristiveSwitching:          25,
		RuleMemristiveSwitchingNonlinear: 30,
		RuleMemristivePinched:            20,
		RuleMemristivePolarity:           5,
		RuleMemristivePenaltyLinear:      -30,
		RuleMemristivePenaltyOhmic:       -20,
		RuleMemristivePenaltyNoSwitching: -30,
		RuleOhmicStrong:                  60,
		RuleOhmicLinear:                  45,
		RuleOhmicWeakHysteresis:          40,
		RuleOhmicSomeHysteresis:          20,
		RuleOhmicPenaltySwitching:        -40,
		RuleOhmicPenaltyNonlinear:        -30,
		RuleCapacitiveUnpinched:          20,
		RuleCapacitivePhase:              30,
		RuleCapacitiveElliptical:         15,
		RuleCapacitiveNoSwitching:        10,
		RuleCapacitivePenaltySwitching:   -20,
		RuleCapacitivePenaltyPinched:     -20,
		RuleMemcapDoubleZeroCrossing:     60,
		RuleMemcapPhase:                  10,
		RuleMemcapWeakSwitching:          10,
		RuleMemcapLobeShape:              5,
		RuleMemcapUnpinchedLegacy:        10,
		RuleMemcapPenaltyPinched:         -30,
		RuleMemcapPenaltyStrongSwitching: -25,
	}
}

// Weights is an immutable, versioned table of rule weights. Every known rule
// always resolves: missing entries fall back to the built-in table.
type Weights struct {
	version string
	table   map[string]float64
}

// DefaultWeights returns the built-in table.
func DefaultWeights() Weights {
	return Weights{version: DefaultWeightsVersion, table: defaultWeightTable()}
}

// NewWeights merges overrides onto the built-in table. Unknown rule names are
// rejected so a misspelt key cannot silently leave a default in place.
func NewWeights(version string, overrides map[string]float64) (Weights, error) {
	w := DefaultWeights()
	if version != "" {
		w.version = version
	}
	for name, v := range overrides {
		if _, ok := w.table[name]; !ok {
			return Weights{}, fmt.Errorf("unknown scoring rule %q", name)
		}
		if !isFinite(v) {
			return Weights{}, fmt.Errorf("weight for %q must be finite, got %v", name, v)
		}
		w.table[name] = v
	}
	return w, nil
}

// Version returns the table version.
func (w Weights) Version() string {
	if w.table == nil {
		return DefaultWeightsVersion
	}
	return w.version
}

// Get returns the weight of a rule; zero for names the table does not know.
func (w Weights) Get(rule string) float64 {
	if w.table == nil {
		return defaultWeightTable()[rule]
	}
	return w.table[rule]
}

// With returns a copy of w with one rule re-weighted.
func (w Weights) With(rule string, v float64) Weights {
	out := Weights{version: w.Version(), table: w.Table()}
	out.table[rule] = v
	return out
}

// Table returns a copy of the full rule table.
func (w Weights) Table() map[string]float64 {
	src := w.table
	if src == nil {
		src = defaultWeightTable()
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// RuleNames returns the known rule names sorted alphabetically.
func RuleNames() []string {
	table := defaultWeightTable()
	names := make([]string, 0, len(table))
	for k := range table {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type weightsJSON struct {
	Version string             `json:"version"`
	Weights map[string]float64 `json:"weights"`
}

// MarshalJSON encodes the table in the external configuration schema.
func (w Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal(weightsJSON{Version: w.Version(), Weights: w.Table()})
}

// UnmarshalJSON decodes the external schema, merging onto the defaults.
func (w *Weights) UnmarshalJSON(data []byte) error {
	var raw weightsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewWeights(raw.Version, raw.Weights)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
