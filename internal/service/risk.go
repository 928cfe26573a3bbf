package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"go.uber.org/zap"
)

// Severity tiers for a CVaR breach, as multiples of the loss limit.
const (
	severityRebalance = 1.0
	severityReduce    = 1.5
	severityHedge     = 2.0
)

// RiskService blends a fast within-episode CVaR check against the slow,
// learned cross-episode signal from the latest cycle.
type RiskService struct {
	logger *zap.Logger

	cvarConfidence float64
	cvarWindow     int
}

func NewRiskService(logger *zap.Logger, cvarConfidence float64, cvarWindow int) *RiskService {
	return &RiskService{
		logger:         logger,
		cvarConfidence: cvarConfidence,
		cvarWindow:     cvarWindow,
	}
}

// Assess computes the combined recommendation from the supplied
// within-episode metrics, the current belief state, and the most recent
// cycle result (nil before the first cycle). Pure: nothing is persisted.
func (s *RiskService) Assess(metrics domain.RiskMetrics, beliefs *domain.BeliefState, latest *domain.CycleResult) domain.RiskAssessment {
	within := s.withinEpisode(metrics, beliefs)
	over := overEpisode(latest)

	assessment := domain.RiskAssessment{
		GeneratedAt:            time.Now(),
		WithinEpisode:          within,
		OverEpisode:            over,
		CombinedRecommendation: combinedRecommendation(within, over),
	}

	if within.Triggered {
		s.logger.Warn("within-episode risk limit breached",
			zap.Float64("cvar", within.CVaR),
			zap.Float64("limit", within.Limit),
			zap.String("adjustment", string(within.Adjustment.Type)),
		)
	}
	return assessment
}

func (s *RiskService) withinEpisode(metrics domain.RiskMetrics, beliefs *domain.BeliefState) domain.WithinEpisodeRisk {
	returns := metrics.RecentReturns
	if len(returns) > s.cvarWindow {
		returns = returns[len(returns)-s.cvarWindow:]
	}

	cvar := historicalCVaR(returns, s.cvarConfidence)

	// The per-period loss budget is the drawdown threshold scaled by how
	// much risk the belief state currently tolerates.
	limit := beliefs.MaxDrawdownThreshold * (0.5 + 0.5*beliefs.RiskTolerance)

	within := domain.WithinEpisodeRisk{
		CVaR:       cvar,
		Limit:      limit,
		Adjustment: domain.RiskAdjustment{Type: domain.AdjustmentNone, Targets: []string{}},
	}
	if limit <= 0 || cvar < limit {
		return within
	}

	within.Triggered = true
	severity := cvar / limit
	magnitude := clampMagnitude(severity - 1)

	switch {
	case severity >= severityHedge:
		within.Adjustment = domain.RiskAdjustment{
			Type:      domain.AdjustmentHedge,
			Magnitude: magnitude,
			Targets:   topPositions(metrics.PositionWeights, 3),
		}
	case severity >= severityReduce:
		within.Adjustment = domain.RiskAdjustment{
			Type:      domain.AdjustmentReduceExposure,
			Magnitude: magnitude,
			Targets:   topPositions(metrics.PositionWeights, 3),
		}
	default:
		within.Adjustment = domain.RiskAdjustment{
			Type:      domain.AdjustmentRebalance,
			Magnitude: magnitude,
			Targets:   topPositions(metrics.PositionWeights, 5),
		}
	}
	return within
}

func overEpisode(latest *domain.CycleResult) domain.OverEpisodeRisk {
	if latest == nil {
		return domain.OverEpisodeRisk{InsufficientHistory: true}
	}
	prompt := latest.MetaPrompt
	return domain.OverEpisodeRisk{
		LearningRate: latest.EpisodeComparison.LearningRate(),
		BeliefDeltas: append([]domain.BeliefFieldUpdate(nil), latest.BeliefUpdates...),
		MetaPrompt:   &prompt,
	}
}

func combinedRecommendation(within domain.WithinEpisodeRisk, over domain.OverEpisodeRisk) string {
	var b strings.Builder

	if within.Triggered {
		fmt.Fprintf(&b,
			"URGENT: current CVaR of %.2f%% breaches the %.2f%% loss limit; %s (magnitude %.2f) immediately.",
			within.CVaR*100, within.Limit*100,
			adjustmentVerb(within.Adjustment.Type), within.Adjustment.Magnitude,
		)
		if len(within.Adjustment.Targets) > 0 {
			fmt.Fprintf(&b, " Focus on %s.", strings.Join(within.Adjustment.Targets, ", "))
		}
	} else {
		fmt.Fprintf(&b,
			"Within-episode risk is contained: CVaR of %.2f%% is inside the %.2f%% loss limit.",
			within.CVaR*100, within.Limit*100,
		)
	}

	if over.InsufficientHistory {
		b.WriteString(" Cross-episode context: insufficient history, no completed learning cycle yet.")
		return b.String()
	}

	fmt.Fprintf(&b, " Longer-horizon context (learning rate %.2f): %s",
		over.LearningRate, over.MetaPrompt.RiskGuidance)
	return b.String()
}

func adjustmentVerb(t domain.AdjustmentType) string {
	switch t {
	case domain.AdjustmentReduceExposure:
		return "reduce exposure"
	case domain.AdjustmentHedge:
		return "hedge the largest positions"
	case domain.AdjustmentRebalance:
		return "rebalance toward target weights"
	default:
		return "hold course"
	}
}

func topPositions(weights map[string]float64, n int) []string {
	type position struct {
		symbol string
		weight float64
	}
	positions := make([]position, 0, len(weights))
	for symbol, weight := range weights {
		positions = append(positions, position{symbol, weight})
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].weight != positions[j].weight {
			return positions[i].weight > positions[j].weight
		}
		return positions[i].symbol < positions[j].symbol
	})
	if len(positions) > n {
		positions = positions[:n]
	}
	symbols := make([]string, len(positions))
	for i, p := range positions {
		symbols[i] = p.symbol
	}
	return symbols
}

func clampMagnitude(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1 {
		return 1
	}
	return v
}
