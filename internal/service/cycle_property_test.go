package service

import (
	"math"
	"testing"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// decisionSetGen generates a random set of decisions drawn from a small
// symbol and action vocabulary, so overlapping signature sets are common.
func decisionSetGen() gopter.Gen {
	symbols := []string{"AAPL", "MSFT", "NVDA", "GOOG", "AMZN", "TSLA"}
	actions := []domain.Action{domain.ActionBuy, domain.ActionSell, domain.ActionHold, domain.ActionRebalance}

	return gen.SliceOf(gen.IntRange(0, len(symbols)*len(actions)-1)).Map(func(indices []int) []domain.Decision {
		decisions := make([]domain.Decision, 0, len(indices))
		for _, idx := range indices {
			decisions = append(decisions, domain.Decision{
				Symbol:     symbols[idx/len(actions)],
				Action:     actions[idx%len(actions)],
				Confidence: 0.5,
				Timestamp:  time.Now(),
			})
		}
		return decisions
	})
}

func propertyEpisode(decisions []domain.Decision) *domain.Episode {
	return &domain.Episode{
		EpisodeNumber: 1,
		Status:        domain.EpisodeCompleted,
		Decisions:     decisions,
	}
}

func TestProperty_DecisionOverlapWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("overlap is within [0, 1] and learning rate is its complement", prop.ForAll(
		func(prevDecisions, currDecisions []domain.Decision) bool {
			prev := propertyEpisode(prevDecisions)
			curr := propertyEpisode(currDecisions)

			overlap := decisionOverlap(prev, curr)
			if overlap < 0 || overlap > 1 {
				return false
			}

			cmp := domain.EpisodeComparison{DecisionOverlap: overlap}
			rate := cmp.LearningRate()
			return rate >= 0 && rate <= 1 && math.Abs(overlap+rate-1) < 1e-12
		},
		decisionSetGen(),
		decisionSetGen(),
	))

	properties.Property("overlap with itself is 1 for any non-empty decision set", prop.ForAll(
		func(decisions []domain.Decision) bool {
			episode := propertyEpisode(decisions)
			if len(decisions) == 0 {
				return decisionOverlap(episode, episode) == 0
			}
			return decisionOverlap(episode, episode) == 1
		},
		decisionSetGen(),
	))

	properties.Property("overlap is symmetric", prop.ForAll(
		func(prevDecisions, currDecisions []domain.Decision) bool {
			prev := propertyEpisode(prevDecisions)
			curr := propertyEpisode(currDecisions)
			return decisionOverlap(prev, curr) == decisionOverlap(curr, prev)
		},
		decisionSetGen(),
		decisionSetGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_BeliefClampingIsTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("any numeric update lands inside the field's bounds", prop.ForAll(
		func(weight, confidence, drawdown float64) bool {
			base := domain.DefaultBeliefState()
			next, _, err := computeUpdate(base, base.Version, map[string]any{
				"factorWeights.momentum":     weight,
				"factorConfidences.momentum": confidence,
				"maxDrawdownThreshold":       drawdown,
			}, nil)
			if err != nil {
				return false
			}

			w := next.FactorWeights["momentum"]
			c := next.FactorConfidences["momentum"]
			d := next.MaxDrawdownThreshold
			return w >= -1 && w <= 1 &&
				c >= 0 && c <= 1 &&
				d >= 0.01 && d <= 0.5 &&
				next.Version == base.Version+1
		},
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}
