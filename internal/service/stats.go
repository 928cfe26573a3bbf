package service

import (
	"math"
	"sort"

	"github.com/frontier-alpha/cvrf/internal/domain"
)

// FactorWeight is one entry of the ranked factor-weight view.
type FactorWeight struct {
	Factor string  `json:"factor"`
	Weight float64 `json:"weight"`
}

// AggregateStats are the derived display views consumed by the external
// reporting layer. Pure reads over episodes, cycles, and beliefs.
type AggregateStats struct {
	EpisodeCount      int     `json:"episode_count"`
	CompletedEpisodes int     `json:"completed_episodes"`
	CycleCount        int     `json:"cycle_count"`
	BeliefVersion     int64   `json:"belief_version"`
	InsightCount      int     `json:"insight_count"`
	AverageReturn     float64 `json:"average_return"`
	WinRate           float64 `json:"win_rate"`
	AverageSharpe     float64 `json:"average_sharpe"`
	WorstDrawdown     float64 `json:"worst_drawdown"`
	AverageOverlap    float64 `json:"average_overlap"`
	AverageLearning   float64 `json:"average_learning_rate"`

	TopFactors []FactorWeight `json:"top_factors"`
}

// computeStats derives the aggregate views from in-memory snapshots.
func computeStats(episodes []domain.Episode, cycles []domain.CycleResult, beliefs *domain.BeliefState) AggregateStats {
	stats := AggregateStats{
		EpisodeCount:  len(episodes),
		CycleCount:    len(cycles),
		BeliefVersion: beliefs.Version,
		InsightCount:  len(beliefs.ConceptualPriors),
	}

	var wins int
	for _, e := range episodes {
		if e.Status != domain.EpisodeCompleted {
			continue
		}
		stats.CompletedEpisodes++
		stats.AverageReturn += e.PortfolioReturn
		stats.AverageSharpe += e.SharpeRatio
		if e.PortfolioReturn > 0 {
			wins++
		}
		if e.MaxDrawdown < stats.WorstDrawdown {
			stats.WorstDrawdown = e.MaxDrawdown
		}
	}
	if stats.CompletedEpisodes > 0 {
		n := float64(stats.CompletedEpisodes)
		stats.AverageReturn /= n
		stats.AverageSharpe /= n
		stats.WinRate = float64(wins) / n
	}

	for _, c := range cycles {
		stats.AverageOverlap += c.EpisodeComparison.DecisionOverlap
		stats.AverageLearning += c.EpisodeComparison.LearningRate()
	}
	if len(cycles) > 0 {
		stats.AverageOverlap /= float64(len(cycles))
		stats.AverageLearning /= float64(len(cycles))
	}

	for factor, weight := range beliefs.FactorWeights {
		stats.TopFactors = append(stats.TopFactors, FactorWeight{Factor: factor, Weight: weight})
	}
	sort.Slice(stats.TopFactors, func(i, j int) bool {
		wi, wj := math.Abs(stats.TopFactors[i].Weight), math.Abs(stats.TopFactors[j].Weight)
		if wi != wj {
			return wi > wj
		}
		return stats.TopFactors[i].Factor < stats.TopFactors[j].Factor
	})
	if len(stats.TopFactors) > 5 {
		stats.TopFactors = stats.TopFactors[:5]
	}

	return stats
}
