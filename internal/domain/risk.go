package domain

import "time"

// AdjustmentType is the kind of corrective action a risk breach calls for.
type AdjustmentType string

const (
	AdjustmentNone           AdjustmentType = "none"
	AdjustmentReduceExposure AdjustmentType = "reduce_exposure"
	AdjustmentHedge          AdjustmentType = "hedge"
	AdjustmentRebalance      AdjustmentType = "rebalance"
)

func ValidAdjustmentType(s string) bool {
	switch AdjustmentType(s) {
	case AdjustmentNone, AdjustmentReduceExposure, AdjustmentHedge, AdjustmentRebalance:
		return true
	}
	return false
}

// RiskMetrics is the within-episode input to an assessment, supplied by the
// portfolio accounting collaborator.
type RiskMetrics struct {
	// RecentReturns is the recent per-period return series, oldest first.
	RecentReturns []float64 `json:"recent_returns"`

	// PositionWeights is the current portfolio weight per symbol.
	PositionWeights map[string]float64 `json:"position_weights"`
}

// RiskAdjustment is the recommended corrective action for a breach.
type RiskAdjustment struct {
	Type      AdjustmentType `json:"type"`
	Magnitude float64        `json:"magnitude"`
	Targets   []string       `json:"targets"`
}

// WithinEpisodeRisk is the fast CVaR check against the current belief state.
type WithinEpisodeRisk struct {
	CVaR       float64        `json:"cvar"`
	Limit      float64        `json:"limit"`
	Triggered  bool           `json:"triggered"`
	Adjustment RiskAdjustment `json:"adjustment"`
}

// OverEpisodeRisk is the slow, learned signal read from the latest cycle.
type OverEpisodeRisk struct {
	InsufficientHistory bool                `json:"insufficient_history"`
	LearningRate        float64             `json:"learning_rate"`
	BeliefDeltas        []BeliefFieldUpdate `json:"belief_deltas,omitempty"`
	MetaPrompt          *MetaPrompt         `json:"meta_prompt,omitempty"`
}

// RiskAssessment blends the within-episode check with cross-episode learning
// into a single recommendation. Transient: computed on demand, not persisted.
type RiskAssessment struct {
	GeneratedAt            time.Time         `json:"generated_at"`
	WithinEpisode          WithinEpisodeRisk `json:"within_episode"`
	OverEpisode            OverEpisodeRisk   `json:"over_episode"`
	CombinedRecommendation string            `json:"combined_recommendation"`
}
