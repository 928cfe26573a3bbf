package domain

import (
	"time"

	"github.com/google/uuid"
)

// EpisodeComparison summarizes how the just-completed episode relates to the
// previous one.
type EpisodeComparison struct {
	PreviousEpisodeReturn float64 `json:"previous_episode_return"`
	CurrentEpisodeReturn  float64 `json:"current_episode_return"`
	PerformanceDelta      float64 `json:"performance_delta"`

	// DecisionOverlap is the Jaccard similarity of the two episodes'
	// (symbol, action) decision signature sets, in [0, 1]. Defined as 0
	// when both sets are empty.
	DecisionOverlap float64 `json:"decision_overlap"`
}

// LearningRate treats low decision overlap as high informativeness: when the
// strategy changed a lot, the episode has more to teach.
func (c EpisodeComparison) LearningRate() float64 {
	return 1 - c.DecisionOverlap
}

// BeliefFieldUpdate records one field change applied during a cycle.
type BeliefFieldUpdate struct {
	Field    string  `json:"field"`
	OldValue float64 `json:"old_value"`
	NewValue float64 `json:"new_value"`
}

// MetaPrompt is the generated natural-language summary of one cycle's
// learning, for human or downstream-agent consumption.
type MetaPrompt struct {
	OptimizationDirection string             `json:"optimization_direction"`
	KeyLearnings          []string           `json:"key_learnings"`
	FactorAdjustments     map[string]float64 `json:"factor_adjustments"`
	RiskGuidance          string             `json:"risk_guidance"`
	TimingInsights        string             `json:"timing_insights"`
	GeneratedAt           time.Time          `json:"generated_at"`
}

// CycleResult is the output of one belief-revision cycle. Cycle history is
// append-only and ordered by timestamp, which equals episode-completion order.
type CycleResult struct {
	ID                uuid.UUID           `json:"id"`
	Timestamp         time.Time           `json:"timestamp"`
	EpisodeComparison EpisodeComparison   `json:"episode_comparison"`
	ExtractedInsights []ConceptualPrior   `json:"extracted_insights"`
	BeliefUpdates     []BeliefFieldUpdate `json:"belief_updates"`
	NewBeliefState    BeliefState         `json:"new_belief_state"`
	MetaPrompt        MetaPrompt          `json:"meta_prompt"`
}
