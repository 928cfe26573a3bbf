package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// confidenceNudge is added to a factor's confidence (scaled by learning
// rate) when a cycle extracts an insight about it.
const confidenceNudge = 0.05

// CycleService runs one belief-revision cycle per episode transition:
// compare the two most recent completed episodes, extract insights, compute
// belief deltas, generate the meta-prompt, and commit it all atomically.
type CycleService struct {
	episodeStore domain.EpisodeStore
	cycleStore   domain.CycleStore
	beliefs      *BeliefService
	detector     domain.RegimeDetector
	logger       *zap.Logger

	insightThreshold   float64
	beliefStep         float64
	precedentThreshold float32
}

func NewCycleService(
	es domain.EpisodeStore,
	cs domain.CycleStore,
	beliefs *BeliefService,
	detector domain.RegimeDetector,
	logger *zap.Logger,
	insightThreshold, beliefStep float64,
	precedentThreshold float32,
) *CycleService {
	return &CycleService{
		episodeStore:       es,
		cycleStore:         cs,
		beliefs:            beliefs,
		detector:           detector,
		logger:             logger,
		insightThreshold:   insightThreshold,
		beliefStep:         beliefStep,
		precedentThreshold: precedentThreshold,
	}
}

// Run executes one cycle over the previous and current completed episodes.
// The completed episode, the cycle result, and the new belief state are
// committed in one storage transaction; the new belief snapshot is only
// published after that commit. A cancelled context before the commit
// leaves no trace. A non-nil regime overrides whatever the configured
// detector would report for this cycle.
func (s *CycleService) Run(ctx context.Context, prev, curr *domain.Episode, regime *domain.RegimeSignal) (*domain.CycleResult, error) {
	base := s.beliefs.Current()

	comparison := compareEpisodes(prev, curr)
	learningRate := comparison.LearningRate()

	prevContrib := factorContributions(prev.Decisions)
	currContrib := factorContributions(curr.Decisions)

	insights := s.extractInsights(ctx, curr, prevContrib, currContrib, comparison)
	updates := s.beliefDeltas(base, prevContrib, currContrib, comparison, learningRate)

	if regime == nil && s.detector != nil {
		signal, err := s.detector.DetectRegime(ctx)
		if err != nil {
			s.logger.Warn("regime detection failed, keeping previous regime", zap.Error(err))
		} else {
			regime = signal
		}
	}
	if regime != nil {
		updates["currentRegime"] = string(regime.Regime)
		updates["regimeConfidence"] = regime.Confidence
	}

	cycleID := uuid.New()
	newState, fieldUpdates, err := computeUpdate(base, base.Version, updates, insights)
	if err != nil {
		return nil, err
	}

	result := &domain.CycleResult{
		ID:                cycleID,
		Timestamp:         time.Now(),
		EpisodeComparison: comparison,
		ExtractedInsights: insights,
		BeliefUpdates:     fieldUpdates,
		NewBeliefState:    *newState.Clone(),
		MetaPrompt:        buildMetaPrompt(comparison, fieldUpdates, newState.CurrentRegime, curr.MaxDrawdown),
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = s.beliefs.commitAndPublish(newState, func() error {
		if err := s.cycleStore.CommitCycle(ctx, result, newState, curr); err != nil {
			return domain.NewStorageError("commit cycle", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("belief revision cycle complete",
		zap.Int("episode", curr.EpisodeNumber),
		zap.Float64("performance_delta", comparison.PerformanceDelta),
		zap.Float64("decision_overlap", comparison.DecisionOverlap),
		zap.Int("insights", len(insights)),
		zap.Int64("belief_version", newState.Version),
	)
	return result, nil
}

func compareEpisodes(prev, curr *domain.Episode) domain.EpisodeComparison {
	return domain.EpisodeComparison{
		PreviousEpisodeReturn: prev.PortfolioReturn,
		CurrentEpisodeReturn:  curr.PortfolioReturn,
		PerformanceDelta:      curr.PortfolioReturn - prev.PortfolioReturn,
		DecisionOverlap:       decisionOverlap(prev, curr),
	}
}

// decisionOverlap is the Jaccard similarity of the two episodes'
// (symbol, action) signature sets: 1 for identical sets, 0 for disjoint
// ones, and 0 by definition when both are empty.
func decisionOverlap(a, b *domain.Episode) float64 {
	sigA, sigB := a.Signatures(), b.Signatures()
	if len(sigA) == 0 && len(sigB) == 0 {
		return 0
	}

	intersection := 0
	for sig := range sigA {
		if _, ok := sigB[sig]; ok {
			intersection++
		}
	}
	union := len(sigA) + len(sigB) - intersection
	return float64(intersection) / float64(union)
}

// factorContributions aggregates the decision-weighted mean contribution per
// factor, weighting each decision by its confidence. When every weight is
// zero the plain mean is used instead.
func factorContributions(decisions []domain.Decision) map[string]float64 {
	weighted := make(map[string]float64)
	weights := make(map[string]float64)
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, d := range decisions {
		for _, f := range d.Factors {
			weighted[f.Factor] += f.Contribution * d.Confidence
			weights[f.Factor] += d.Confidence
			sums[f.Factor] += f.Contribution
			counts[f.Factor]++
		}
	}

	out := make(map[string]float64, len(counts))
	for factor, n := range counts {
		if weights[factor] > 0 {
			out[factor] = weighted[factor] / weights[factor]
		} else {
			out[factor] = sums[factor] / float64(n)
		}
	}
	return out
}

// extractInsights emits one conceptual prior per factor whose contribution
// diverged between episodes by at least the configured threshold. Impact
// direction follows the sign of the divergence against the performance
// delta. Historical precedent from similar episodes is attached as
// additional evidence, best effort.
func (s *CycleService) extractInsights(ctx context.Context, curr *domain.Episode, prevContrib, currContrib map[string]float64, cmp domain.EpisodeComparison) []domain.ConceptualPrior {
	var precedent []domain.EpisodeWithScore
	if len(curr.FactorProfile) > 0 {
		found, err := s.episodeStore.FindSimilar(ctx, curr.FactorProfile, s.precedentThreshold, 3)
		if err != nil {
			s.logger.Warn("similar-episode lookup failed", zap.Error(err))
		} else {
			precedent = found
		}
	}

	var insights []domain.ConceptualPrior
	for _, factor := range sortedFactorUnion(prevContrib, currContrib) {
		divergence := currContrib[factor] - prevContrib[factor]
		if math.Abs(divergence) < s.insightThreshold {
			continue
		}

		evidence := []string{
			fmt.Sprintf("mean contribution moved from %.4f to %.4f", prevContrib[factor], currContrib[factor]),
			fmt.Sprintf("performance delta across episodes: %+.4f", cmp.PerformanceDelta),
		}
		for _, p := range precedent {
			if p.ID == curr.ID {
				continue
			}
			evidence = append(evidence, fmt.Sprintf(
				"episode %d had a similar factor profile (similarity %.2f) and returned %+.4f",
				p.EpisodeNumber, p.Score, p.PortfolioReturn,
			))
		}

		insights = append(insights, domain.ConceptualPrior{
			ID:   uuid.New(),
			Type: "factor_divergence",
			Concept: fmt.Sprintf("%s contribution shifted %+.4f against a %+.4f performance delta",
				factor, divergence, cmp.PerformanceDelta),
			Evidence:        evidence,
			Confidence:      domain.Clamp01(0.4 + math.Abs(divergence)),
			SourceEpisodeID: curr.ID,
			ImpactDirection: impactDirection(divergence, cmp.PerformanceDelta),
		})
	}
	return insights
}

func impactDirection(divergence, performanceDelta float64) domain.ImpactDirection {
	product := divergence * performanceDelta
	switch {
	case product > 0:
		return domain.ImpactPositive
	case product < 0:
		return domain.ImpactNegative
	default:
		return domain.ImpactNeutral
	}
}

// beliefDeltas steps each factor's weight toward behaviour correlated with
// positive performance deltas and away from behaviour correlated with
// negative ones. Steps scale with the learning rate and with the factor's
// existing confidence: low-confidence factors move more slowly. A drawdown
// breach in the completed episode additionally tightens risk tolerance.
func (s *CycleService) beliefDeltas(base *domain.BeliefState, prevContrib, currContrib map[string]float64, cmp domain.EpisodeComparison, learningRate float64) map[string]any {
	updates := make(map[string]any)

	for _, factor := range sortedFactorUnion(prevContrib, currContrib) {
		divergence := currContrib[factor] - prevContrib[factor]
		direction := sign(divergence * cmp.PerformanceDelta)
		if direction == 0 {
			continue
		}

		confidence, ok := base.FactorConfidences[factor]
		if !ok {
			confidence = DefaultFactorConfidence
		}

		delta := s.beliefStep * learningRate * confidence * direction * math.Min(1, math.Abs(divergence))
		if delta == 0 {
			continue
		}
		updates["factorWeights."+factor] = base.FactorWeights[factor] + delta

		// A divergence large enough to produce an insight also firms up
		// trust in the factor's weight estimate.
		if math.Abs(divergence) >= s.insightThreshold {
			updates["factorConfidences."+factor] = confidence + confidenceNudge*learningRate
		}
	}

	if base.MaxDrawdownThreshold > 0 && -cmp.CurrentEpisodeReturn > base.MaxDrawdownThreshold {
		updates["riskTolerance"] = base.RiskTolerance - s.beliefStep*learningRate
	}

	return updates
}

func sortedFactorUnion(a, b map[string]float64) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for f := range a {
		set[f] = struct{}{}
	}
	for f := range b {
		set[f] = struct{}{}
	}
	factors := make([]string, 0, len(set))
	for f := range set {
		factors = append(factors, f)
	}
	sort.Strings(factors)
	return factors
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
