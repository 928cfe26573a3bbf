package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
)

// buildMetaPrompt renders one cycle's learning into a deterministic
// human-readable summary: no model inference, just the numbers in words.
func buildMetaPrompt(cmp domain.EpisodeComparison, updates []domain.BeliefFieldUpdate, regime domain.Regime, maxDrawdown float64) domain.MetaPrompt {
	factorAdjustments := make(map[string]float64)
	var weightUpdates []domain.BeliefFieldUpdate
	for _, u := range updates {
		if name, ok := strings.CutPrefix(u.Field, "factorWeights."); ok {
			factorAdjustments[name] = u.NewValue - u.OldValue
			weightUpdates = append(weightUpdates, u)
		}
	}
	sort.Slice(weightUpdates, func(i, j int) bool {
		return math.Abs(weightUpdates[i].NewValue-weightUpdates[i].OldValue) >
			math.Abs(weightUpdates[j].NewValue-weightUpdates[j].OldValue)
	})

	return domain.MetaPrompt{
		OptimizationDirection: optimizationDirection(cmp, regime),
		KeyLearnings:          keyLearnings(cmp, weightUpdates),
		FactorAdjustments:     factorAdjustments,
		RiskGuidance:          riskGuidance(cmp, maxDrawdown),
		TimingInsights:        timingInsights(cmp),
		GeneratedAt:           time.Now(),
	}
}

func optimizationDirection(cmp domain.EpisodeComparison, regime domain.Regime) string {
	if cmp.PerformanceDelta >= 0 {
		return fmt.Sprintf(
			"Performance improved by %.2f%% episode-over-episode in a %s regime: reinforce the current factor tilts and keep position sizing steady.",
			cmp.PerformanceDelta*100, regime,
		)
	}
	return fmt.Sprintf(
		"Performance deteriorated by %.2f%% episode-over-episode in a %s regime: rotate away from the factors that drove the decline and favor defensive positioning.",
		-cmp.PerformanceDelta*100, regime,
	)
}

func keyLearnings(cmp domain.EpisodeComparison, weightUpdates []domain.BeliefFieldUpdate) []string {
	learnings := []string{
		fmt.Sprintf("Episode return moved from %+.2f%% to %+.2f%% (delta %+.2f%%).",
			cmp.PreviousEpisodeReturn*100, cmp.CurrentEpisodeReturn*100, cmp.PerformanceDelta*100),
		fmt.Sprintf("Decision overlap with the previous episode was %.0f%%, implying a learning rate of %.2f.",
			cmp.DecisionOverlap*100, cmp.LearningRate()),
	}
	for i, u := range weightUpdates {
		if i >= 2 {
			break
		}
		name := strings.TrimPrefix(u.Field, "factorWeights.")
		learnings = append(learnings, fmt.Sprintf("Largest belief shift #%d: %s weight %+.4f -> %+.4f.",
			i+1, name, u.OldValue, u.NewValue))
	}
	return learnings
}

func riskGuidance(cmp domain.EpisodeComparison, maxDrawdown float64) string {
	if cmp.PerformanceDelta < 0 {
		return fmt.Sprintf(
			"Returns fell %.2f%% versus the prior episode with a maximum drawdown of %.2f%%: tighten the drawdown budget and scale back the riskiest factor bets until the trend stabilizes.",
			-cmp.PerformanceDelta*100, -maxDrawdown*100,
		)
	}
	return fmt.Sprintf(
		"Returns improved %.2f%% versus the prior episode with a maximum drawdown of %.2f%%: current risk limits are holding, keep the drawdown budget unchanged.",
		cmp.PerformanceDelta*100, -maxDrawdown*100,
	)
}

func timingInsights(cmp domain.EpisodeComparison) string {
	switch {
	case cmp.DecisionOverlap >= 0.7:
		return fmt.Sprintf("Decision overlap of %.0f%% shows a stable strategy; most of this episode's result traces to held positions rather than turnover.",
			cmp.DecisionOverlap*100)
	case cmp.DecisionOverlap <= 0.3:
		return fmt.Sprintf("Decision overlap of only %.0f%% shows heavy turnover; treat this episode's outcome as highly informative about the new positioning.",
			cmp.DecisionOverlap*100)
	default:
		return fmt.Sprintf("Decision overlap of %.0f%% shows a partial rotation; attribute the performance change to the positions that turned over.",
			cmp.DecisionOverlap*100)
	}
}
