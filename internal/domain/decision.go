package domain

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of trading action a decision records.
type Action string

const (
	ActionBuy       Action = "buy"
	ActionSell      Action = "sell"
	ActionHold      Action = "hold"
	ActionRebalance Action = "rebalance"
)

func ValidAction(s string) bool {
	switch Action(s) {
	case ActionBuy, ActionSell, ActionHold, ActionRebalance:
		return true
	}
	return false
}

// CanonicalFactors is the fixed factor vocabulary shared with the external
// factor model. It also fixes the dimension of episode factor profiles.
var CanonicalFactors = []string{
	"momentum",
	"value",
	"quality",
	"growth",
	"volatility",
	"sentiment",
	"liquidity",
	"mean_reversion",
}

// FactorExposure is one factor attribution tuple supplied by the external
// factor model for a decision. The core treats it as opaque input.
type FactorExposure struct {
	Factor       string  `json:"factor"`
	Exposure     float64 `json:"exposure"`
	TStat        float64 `json:"t_stat"`
	Confidence   float64 `json:"confidence"`
	Contribution float64 `json:"contribution"`
}

// Decision is one recorded trading action. Immutable once created; belongs
// to exactly one episode (the one active at creation time).
type Decision struct {
	ID           uuid.UUID        `json:"id"`
	EpisodeID    uuid.UUID        `json:"episode_id"`
	Timestamp    time.Time        `json:"timestamp"`
	Symbol       string           `json:"symbol"`
	Action       Action           `json:"action"`
	WeightBefore float64          `json:"weight_before"`
	WeightAfter  float64          `json:"weight_after"`
	Reason       string           `json:"reason"`
	Confidence   float64          `json:"confidence"`
	Factors      []FactorExposure `json:"factors"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Signature identifies a decision for cross-episode overlap comparison.
// Two decisions match when they act on the same symbol in the same way.
func (d *Decision) Signature() string {
	return d.Symbol + "|" + string(d.Action)
}

// RecordDecisionInput is the fully-typed input for recording a decision.
// Confidence is a pointer so an explicitly supplied zero is preserved and
// only an absent value defaults to 0.5.
type RecordDecisionInput struct {
	Symbol       string           `json:"symbol"`
	Action       string           `json:"action"`
	WeightBefore float64          `json:"weight_before"`
	WeightAfter  float64          `json:"weight_after"`
	Reason       string           `json:"reason"`
	Confidence   *float64         `json:"confidence"`
	Factors      []FactorExposure `json:"factors"`
	Timestamp    time.Time        `json:"timestamp"`
}

// FactorProfile aggregates decisions into a fixed-dimension vector of mean
// exposures over the canonical factor set. Exposures for factors outside the
// vocabulary are ignored. Used for similar-episode lookup.
func FactorProfile(decisions []Decision) []float32 {
	sums := make(map[string]float64, len(CanonicalFactors))
	counts := make(map[string]int, len(CanonicalFactors))
	for _, d := range decisions {
		for _, f := range d.Factors {
			sums[f.Factor] += f.Exposure
			counts[f.Factor]++
		}
	}
	profile := make([]float32, len(CanonicalFactors))
	for i, f := range CanonicalFactors {
		if counts[f] > 0 {
			profile[i] = float32(sums[f] / float64(counts[f]))
		}
	}
	return profile
}
