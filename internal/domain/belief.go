package domain

import (
	"time"

	"github.com/google/uuid"
)

// Regime classifies the prevailing market environment. The label is produced
// by the external regime detector; the core only stores and reports it.
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeSideways Regime = "sideways"
	RegimeVolatile Regime = "volatile"
	RegimeRecovery Regime = "recovery"
)

func ValidRegime(s string) bool {
	switch Regime(s) {
	case RegimeBull, RegimeBear, RegimeSideways, RegimeVolatile, RegimeRecovery:
		return true
	}
	return false
}

// ImpactDirection tags how an insight relates to performance.
type ImpactDirection string

const (
	ImpactPositive ImpactDirection = "positive"
	ImpactNegative ImpactDirection = "negative"
	ImpactNeutral  ImpactDirection = "neutral"
)

func ValidImpactDirection(s string) bool {
	switch ImpactDirection(s) {
	case ImpactPositive, ImpactNegative, ImpactNeutral:
		return true
	}
	return false
}

// ConceptualPrior is one learned insight. Priors are append-only: once added
// to a belief state they are never mutated or removed.
type ConceptualPrior struct {
	ID              uuid.UUID       `json:"id"`
	Type            string          `json:"type"`
	Concept         string          `json:"concept"`
	Evidence        []string        `json:"evidence"`
	Confidence      float64         `json:"confidence"`
	SourceEpisodeID uuid.UUID       `json:"source_episode_id"`
	ImpactDirection ImpactDirection `json:"impact_direction"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ParamBounds is the valid range for one scalar risk parameter.
type ParamBounds struct {
	Min float64
	Max float64
}

// RiskParamBounds documents the valid range of every scalar risk parameter.
// Updates outside a range are clamped to the nearest bound, never rejected.
var RiskParamBounds = map[string]ParamBounds{
	"riskTolerance":          {Min: 0.0, Max: 1.0},
	"maxDrawdownThreshold":   {Min: 0.01, Max: 0.50},
	"volatilityTarget":       {Min: 0.01, Max: 1.0},
	"momentumHorizon":        {Min: 1, Max: 252},
	"meanReversionThreshold": {Min: 0.1, Max: 5.0},
	"concentrationLimit":     {Min: 0.01, Max: 1.0},
	"minPositionSize":        {Min: 0.0, Max: 0.25},
	"rebalanceThreshold":     {Min: 0.001, Max: 0.50},
}

// ClampRiskParam clamps v to the declared bounds of the named parameter.
// Unknown parameters are returned unchanged.
func ClampRiskParam(field string, v float64) float64 {
	b, ok := RiskParamBounds[field]
	if !ok {
		return v
	}
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Clamp01 clamps v into [0, 1]. Used for confidences and position weights.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BeliefState is the versioned singleton holding everything the system
// currently trusts: factor weights and confidences, scalar risk parameters,
// the externally detected regime, and the accumulated conceptual priors.
//
// Version increases by exactly 1 on each successful update and never goes
// backward. The state is replaced whole on update, never field-by-field.
type BeliefState struct {
	Version int64 `json:"version"`

	FactorWeights     map[string]float64 `json:"factor_weights"`
	FactorConfidences map[string]float64 `json:"factor_confidences"`

	RiskTolerance          float64 `json:"risk_tolerance"`
	MaxDrawdownThreshold   float64 `json:"max_drawdown_threshold"`
	VolatilityTarget       float64 `json:"volatility_target"`
	MomentumHorizon        float64 `json:"momentum_horizon"`
	MeanReversionThreshold float64 `json:"mean_reversion_threshold"`
	ConcentrationLimit     float64 `json:"concentration_limit"`
	MinPositionSize        float64 `json:"min_position_size"`
	RebalanceThreshold     float64 `json:"rebalance_threshold"`

	CurrentRegime    Regime  `json:"current_regime"`
	RegimeConfidence float64 `json:"regime_confidence"`

	ConceptualPriors []ConceptualPrior `json:"conceptual_priors"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultBeliefState is the state created on first use, before any cycle
// has run. Weights start flat across the canonical factors.
func DefaultBeliefState() *BeliefState {
	now := time.Now()
	weights := make(map[string]float64, len(CanonicalFactors))
	confidences := make(map[string]float64, len(CanonicalFactors))
	for _, f := range CanonicalFactors {
		weights[f] = 0.0
		confidences[f] = 0.5
	}
	return &BeliefState{
		Version:                1,
		FactorWeights:          weights,
		FactorConfidences:      confidences,
		RiskTolerance:          0.5,
		MaxDrawdownThreshold:   0.15,
		VolatilityTarget:       0.12,
		MomentumHorizon:        20,
		MeanReversionThreshold: 2.0,
		ConcentrationLimit:     0.25,
		MinPositionSize:        0.01,
		RebalanceThreshold:     0.05,
		CurrentRegime:          RegimeSideways,
		RegimeConfidence:       0.5,
		ConceptualPriors:       []ConceptualPrior{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Clone returns a deep copy. Readers always receive clones so a published
// snapshot can never be mutated through a returned reference.
func (b *BeliefState) Clone() *BeliefState {
	c := *b
	c.FactorWeights = make(map[string]float64, len(b.FactorWeights))
	for k, v := range b.FactorWeights {
		c.FactorWeights[k] = v
	}
	c.FactorConfidences = make(map[string]float64, len(b.FactorConfidences))
	for k, v := range b.FactorConfidences {
		c.FactorConfidences[k] = v
	}
	c.ConceptualPriors = make([]ConceptualPrior, len(b.ConceptualPriors))
	copy(c.ConceptualPriors, b.ConceptualPriors)
	for i := range c.ConceptualPriors {
		ev := make([]string, len(b.ConceptualPriors[i].Evidence))
		copy(ev, b.ConceptualPriors[i].Evidence)
		c.ConceptualPriors[i].Evidence = ev
	}
	return &c
}
