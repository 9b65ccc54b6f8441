package ivsweep

// ruleInput is everything a rule condition may look at.
type ruleInput struct {
	F Features
	R ResistanceMetrics
	H HysteresisMetrics
	T Thresholds
}

func (in ruleInput) weakHysteresis() bool {
	return in.F.HasHysteresis && in.F.NormalizedLoopArea < in.T.WeakHysteresisMax
}

func (in ruleInput) strongHysteresis() bool {
	return in.F.HasHysteresis && !in.weakHysteresis()
}

func (in ruleInput) unpinchedHysteresis() bool {
	return in.F.HasHysteresis && !in.F.PinchedHysteresis && !in.F.DoubleZeroCrossing
}

// Rule adds the weight named Name to the score of Device when When holds.
type Rule struct {
	Name   string
	Device DeviceType
	When   func(ruleInput) bool
}

// DefaultRules returns the scoring rules in evaluation order. The ohmic
// tiers are mutually exclusive: at most one of strong, linear, weak and some
// hysteresis fires for any sweep.
func DefaultRules() []Rule {
	return []Rule{
		{RuleMemristiveHysteresis, Memristive, func(in ruleInput) bool { return in.F.HasHysteresis }},
		{RuleMemristiveSwitching, Memristive, func(in ruleInput) bool { return in.F.SwitchingBehavior }},
		{RuleMemristiveSwitchingNonlinear, Memristive, func(in ruleInput) bool {
			return in.F.SwitchingBehavior && in.F.NonlinearIV
		}},
		{RuleMemristivePinched, Memristive, func(in ruleInput) bool { return in.F.PinchedHysteresis }},
		{RuleMemristivePolarity, Memristive, func(in ruleInput) bool {
			return in.F.PolarityDependent && in.F.SwitchingBehavior
		}},
		{RuleMemristivePenaltyLinear, Memristive, func(in ruleInput) bool { return in.F.LinearIV }},
		{RuleMemristivePenaltyOhmic, Memristive, func(in ruleInput) bool { return in.F.OhmicFit }},
		{RuleMemristivePenaltyNoSwitching, Memristive, func(in ruleInput) bool {
			return in.F.HasHysteresis && !in.F.SwitchingBehavior
		}},

		{RuleOhmicStrong, Ohmic, func(in ruleInput) bool {
			return in.F.LinearIV && in.F.OhmicFit && !in.F.HasHysteresis
		}},
		{RuleOhmicLinear, Ohmic, func(in ruleInput) bool {
			return in.F.LinearIV && !in.F.OhmicFit && !in.F.HasHysteresis
		}},
		{RuleOhmicWeakHysteresis, Ohmic, func(in ruleInput) bool {
			return in.F.LinearIV && in.weakHysteresis() && !in.F.SwitchingBehavior
		}},
		{RuleOhmicSomeHysteresis, Ohmic, func(in ruleInput) bool {
			return in.F.LinearIV && in.strongHysteresis() && !in.F.SwitchingBehavior
		}},
		{RuleOhmicPenaltySwitching, Ohmic, func(in ruleInput) bool {
			return in.strongHysteresis() && in.F.SwitchingBehavior
		}},
		{RuleOhmicPenaltyNonlinear, Ohmic, func(in ruleInput) bool { return in.F.NonlinearIV }},

		{RuleCapacitiveUnpinched, Capacitive, ruleInput.unpinchedHysteresis},
		{RuleCapacitivePhase, Capacitive, func(in ruleInput) bool {
			return in.F.PhaseShiftDeg > in.T.CapacitivePhaseDeg
		}},
		{RuleCapacitiveElliptical, Capacitive, func(in ruleInput) bool { return in.H.Shape == ShapeElliptical }},
		{RuleCapacitiveNoSwitching, Capacitive, func(in ruleInput) bool {
			return in.F.HasHysteresis && !in.F.SwitchingBehavior
		}},
		{RuleCapacitivePenaltySwitching, Capacitive, func(in ruleInput) bool { return in.F.SwitchingBehavior }},
		{RuleCapacitivePenaltyPinched, Capacitive, func(in ruleInput) bool { return in.F.PinchedHysteresis }},

		{RuleMemcapDoubleZeroCrossing, Memcapacitive, func(in ruleInput) bool { return in.F.DoubleZeroCrossing }},
		{RuleMemcapPhase, Memcapacitive, func(in ruleInput) bool {
			return in.F.PhaseShiftDeg > in.T.MemcapacitivePhaseDeg
		}},
		{RuleMemcapWeakSwitching, Memcapacitive, func(in ruleInput) bool {
			return in.F.SwitchingRatio >= in.T.WeakSwitchingRatioMin && in.F.SwitchingRatio <= in.T.SwitchingRatioMin
		}},
		{RuleMemcapLobeShape, Memcapacitive, func(in ruleInput) bool {
			return in.H.Shape == ShapeButterfly || in.H.Shape == ShapeElliptical
		}},
		{RuleMemcapUnpinchedLegacy, Memcapacitive, ruleInput.unpinchedHysteresis},
		{RuleMemcapPenaltyPinched, Memcapacitive, func(in ruleInput) bool { return in.F.PinchedHysteresis }},
		{RuleMemcapPenaltyStrongSwitching, Memcapacitive, func(in ruleInput) bool { return in.F.SwitchingBehavior }},
	}
}
