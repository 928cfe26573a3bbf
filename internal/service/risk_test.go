package service

import (
	"strings"
	"testing"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/stretchr/testify/assert"
)

func riskBeliefs(riskTolerance, drawdownThreshold float64) *domain.BeliefState {
	state := domain.DefaultBeliefState()
	state.RiskTolerance = riskTolerance
	state.MaxDrawdownThreshold = drawdownThreshold
	return state
}

// lossSeries builds a 20-return series whose single tail observation at 95%
// is the given loss.
func lossSeries(loss float64) []float64 {
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.005
	}
	returns[4] = -loss
	return returns
}

func TestRiskService_AssessWithinLimit(t *testing.T) {
	svc := NewRiskService(testLogger(), 0.95, 20)

	assessment := svc.Assess(domain.RiskMetrics{
		RecentReturns: lossSeries(0.01),
	}, riskBeliefs(0.5, 0.10), nil)

	assert.False(t, assessment.WithinEpisode.Triggered)
	assert.Equal(t, domain.AdjustmentNone, assessment.WithinEpisode.Adjustment.Type)
	assert.InDelta(t, 0.01, assessment.WithinEpisode.CVaR, 1e-9)
	// Limit = 0.10 * (0.5 + 0.5*0.5) = 0.075.
	assert.InDelta(t, 0.075, assessment.WithinEpisode.Limit, 1e-9)
	assert.Contains(t, assessment.CombinedRecommendation, "contained")
}

func TestRiskService_AssessSeverityTiers(t *testing.T) {
	svc := NewRiskService(testLogger(), 0.95, 20)
	beliefs := riskBeliefs(0.5, 0.10) // limit 0.075
	weights := map[string]float64{
		"AAPL": 0.30, "MSFT": 0.25, "NVDA": 0.20, "GOOG": 0.15, "AMZN": 0.10,
	}

	cases := []struct {
		name string
		loss float64
		want domain.AdjustmentType
	}{
		{"just past the limit", 0.08, domain.AdjustmentRebalance},
		{"1.5x the limit", 0.12, domain.AdjustmentReduceExposure},
		{"2x the limit", 0.16, domain.AdjustmentHedge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assessment := svc.Assess(domain.RiskMetrics{
				RecentReturns:   lossSeries(tc.loss),
				PositionWeights: weights,
			}, beliefs, nil)

			within := assessment.WithinEpisode
			assert.True(t, within.Triggered)
			assert.Equal(t, tc.want, within.Adjustment.Type)
			assert.GreaterOrEqual(t, within.Adjustment.Magnitude, 0.1)
			assert.LessOrEqual(t, within.Adjustment.Magnitude, 1.0)
			assert.NotEmpty(t, within.Adjustment.Targets)
			// Targets are the heaviest positions first.
			assert.Equal(t, "AAPL", within.Adjustment.Targets[0])
			assert.True(t, strings.HasPrefix(assessment.CombinedRecommendation, "URGENT:"))
		})
	}
}

func TestRiskService_AssessInsufficientHistory(t *testing.T) {
	svc := NewRiskService(testLogger(), 0.95, 20)

	assessment := svc.Assess(domain.RiskMetrics{}, riskBeliefs(0.5, 0.10), nil)

	assert.True(t, assessment.OverEpisode.InsufficientHistory)
	assert.Nil(t, assessment.OverEpisode.MetaPrompt)
	assert.Contains(t, assessment.CombinedRecommendation, "insufficient history")
}

func TestRiskService_AssessBlendsLatestCycle(t *testing.T) {
	svc := NewRiskService(testLogger(), 0.95, 20)

	latest := &domain.CycleResult{
		EpisodeComparison: domain.EpisodeComparison{DecisionOverlap: 0.4},
		BeliefUpdates: []domain.BeliefFieldUpdate{
			{Field: "factorWeights.momentum", OldValue: 0, NewValue: 0.02},
		},
		MetaPrompt: domain.MetaPrompt{
			RiskGuidance: "Returns fell 3.00% versus the prior episode with a maximum drawdown of 4.00%: tighten the drawdown budget and scale back the riskiest factor bets until the trend stabilizes.",
		},
	}

	assessment := svc.Assess(domain.RiskMetrics{
		RecentReturns: lossSeries(0.01),
	}, riskBeliefs(0.5, 0.10), latest)

	over := assessment.OverEpisode
	assert.False(t, over.InsufficientHistory)
	assert.InDelta(t, 0.6, over.LearningRate, 1e-9)
	assert.Len(t, over.BeliefDeltas, 1)
	assert.Contains(t, assessment.CombinedRecommendation, "tighten the drawdown budget")
	assert.Contains(t, assessment.CombinedRecommendation, "learning rate 0.60")
}

func TestRiskService_AssessWindowTrimsOldReturns(t *testing.T) {
	svc := NewRiskService(testLogger(), 0.95, 20)

	// A catastrophic loss 30 periods ago has aged out of the window.
	returns := make([]float64, 30)
	for i := range returns {
		returns[i] = 0.004
	}
	returns[0] = -0.50

	assessment := svc.Assess(domain.RiskMetrics{
		RecentReturns: returns,
	}, riskBeliefs(0.5, 0.10), nil)

	assert.False(t, assessment.WithinEpisode.Triggered)
	assert.Zero(t, assessment.WithinEpisode.CVaR)
}
