package service

import (
	"testing"

	"github.com/frontier-alpha/cvrf/internal/domain"
)

func TestComputeStats_EmptyInputs(t *testing.T) {
	stats := computeStats(nil, nil, domain.DefaultBeliefState())

	if stats.EpisodeCount != 0 || stats.CompletedEpisodes != 0 || stats.CycleCount != 0 {
		t.Errorf("expected zero counts, got %+v", stats)
	}
	if stats.WinRate != 0 || stats.AverageReturn != 0 {
		t.Errorf("expected zero averages, got %+v", stats)
	}
	if stats.BeliefVersion != 1 {
		t.Errorf("belief version = %d, want 1", stats.BeliefVersion)
	}
}

func TestComputeStats_SkipsActiveEpisodes(t *testing.T) {
	episodes := []domain.Episode{
		{EpisodeNumber: 1, Status: domain.EpisodeCompleted, PortfolioReturn: 0.04, SharpeRatio: 1.2, MaxDrawdown: -0.02},
		{EpisodeNumber: 2, Status: domain.EpisodeCompleted, PortfolioReturn: -0.02, SharpeRatio: -0.4, MaxDrawdown: -0.06},
		{EpisodeNumber: 3, Status: domain.EpisodeActive, PortfolioReturn: 0.99},
	}

	stats := computeStats(episodes, nil, domain.DefaultBeliefState())

	if stats.EpisodeCount != 3 {
		t.Errorf("episode count = %d, want 3", stats.EpisodeCount)
	}
	if stats.CompletedEpisodes != 2 {
		t.Errorf("completed = %d, want 2", stats.CompletedEpisodes)
	}
	if !almostEqual(stats.AverageReturn, 0.01) {
		t.Errorf("average return = %f, want 0.01", stats.AverageReturn)
	}
	if stats.WinRate != 0.5 {
		t.Errorf("win rate = %f, want 0.5", stats.WinRate)
	}
	if stats.WorstDrawdown != -0.06 {
		t.Errorf("worst drawdown = %f, want -0.06", stats.WorstDrawdown)
	}
}

func TestComputeStats_TopFactorsRankByMagnitude(t *testing.T) {
	beliefs := domain.DefaultBeliefState()
	beliefs.FactorWeights["momentum"] = 0.10
	beliefs.FactorWeights["value"] = -0.30
	beliefs.FactorWeights["quality"] = 0.20
	beliefs.FactorWeights["growth"] = 0.05
	beliefs.FactorWeights["volatility"] = -0.15
	beliefs.FactorWeights["sentiment"] = 0.01

	stats := computeStats(nil, nil, beliefs)

	if len(stats.TopFactors) != 5 {
		t.Fatalf("top factors = %d, want 5", len(stats.TopFactors))
	}
	if stats.TopFactors[0].Factor != "value" {
		t.Errorf("top factor = %s, want value", stats.TopFactors[0].Factor)
	}
	if stats.TopFactors[1].Factor != "quality" {
		t.Errorf("second factor = %s, want quality", stats.TopFactors[1].Factor)
	}
	for i := 1; i < len(stats.TopFactors); i++ {
		prev := stats.TopFactors[i-1].Weight
		curr := stats.TopFactors[i].Weight
		if abs(curr) > abs(prev) {
			t.Errorf("factors not sorted by magnitude at %d: %f after %f", i, curr, prev)
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
