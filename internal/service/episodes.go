package service

import (
	"context"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDecisionConfidence is assumed when a decision arrives without an
// explicit confidence.
const DefaultDecisionConfidence = 0.5

// EpisodeService manages the episode lifecycle and the append-only decision
// log. It is not internally locked: the manager serializes all mutating
// calls, which is what preserves the single-active-episode invariant.
type EpisodeService struct {
	decisionStore domain.DecisionStore
	episodeStore  domain.EpisodeStore
	logger        *zap.Logger

	active        *domain.Episode
	lastCompleted *domain.Episode
	nextNumber    int
}

func NewEpisodeService(ds domain.DecisionStore, es domain.EpisodeStore, logger *zap.Logger) *EpisodeService {
	return &EpisodeService{
		decisionStore: ds,
		episodeStore:  es,
		logger:        logger,
		nextNumber:    1,
	}
}

// Restore rebuilds in-memory lifecycle state from persisted episodes,
// ordered by episode number ascending.
func (s *EpisodeService) Restore(episodes []domain.Episode) {
	for i := range episodes {
		e := episodes[i]
		if e.EpisodeNumber >= s.nextNumber {
			s.nextNumber = e.EpisodeNumber + 1
		}
		switch e.Status {
		case domain.EpisodeActive:
			s.active = &e
		case domain.EpisodeCompleted:
			if s.lastCompleted == nil || e.EpisodeNumber > s.lastCompleted.EpisodeNumber {
				s.lastCompleted = &e
			}
		}
	}
}

// RecordDecision validates and appends one decision to the active episode.
// When no episode is active, one is started implicitly: lazy episode
// creation on the first decision is part of the contract, not a side effect.
func (s *EpisodeService) RecordDecision(ctx context.Context, input domain.RecordDecisionInput) (*domain.Decision, error) {
	if input.Symbol == "" {
		return nil, domain.NewValidationError("symbol", "symbol is required")
	}
	if input.Action == "" {
		return nil, domain.NewValidationError("action", "action is required")
	}
	if !domain.ValidAction(input.Action) {
		return nil, domain.NewValidationError("action", "unknown action "+input.Action)
	}

	ts := input.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	// An explicitly supplied zero confidence is kept; only absence
	// defaults to 0.5.
	confidence := DefaultDecisionConfidence
	if input.Confidence != nil {
		confidence = domain.Clamp01(*input.Confidence)
	}

	factors := input.Factors
	if factors == nil {
		factors = []domain.FactorExposure{}
	}

	if s.active == nil {
		if err := s.startEpisode(ctx, ts); err != nil {
			return nil, err
		}
	}

	decision := &domain.Decision{
		ID:           uuid.New(),
		EpisodeID:    s.active.ID,
		Timestamp:    ts,
		Symbol:       input.Symbol,
		Action:       domain.Action(input.Action),
		WeightBefore: domain.Clamp01(input.WeightBefore),
		WeightAfter:  domain.Clamp01(input.WeightAfter),
		Reason:       input.Reason,
		Confidence:   confidence,
		Factors:      factors,
	}

	// Decision appends are not provably idempotent, so a failure is
	// surfaced immediately rather than retried.
	if err := s.decisionStore.Append(ctx, decision); err != nil {
		return nil, domain.NewStorageError("append decision", err)
	}

	s.active.Decisions = append(s.active.Decisions, *decision)

	s.logger.Debug("recorded decision",
		zap.String("decision_id", decision.ID.String()),
		zap.String("symbol", decision.Symbol),
		zap.String("action", string(decision.Action)),
		zap.Int("episode", s.active.EpisodeNumber),
	)

	cp := *decision
	return &cp, nil
}

func (s *EpisodeService) startEpisode(ctx context.Context, start time.Time) error {
	episode := &domain.Episode{
		ID:            uuid.New(),
		EpisodeNumber: s.nextNumber,
		StartDate:     start,
		Status:        domain.EpisodeActive,
		Decisions:     []domain.Decision{},
	}
	if err := s.episodeStore.Save(ctx, episode); err != nil {
		return domain.NewStorageError("save episode", err)
	}
	s.active = episode
	s.nextNumber++

	s.logger.Info("started episode", zap.Int("episode", episode.EpisodeNumber))
	return nil
}

// FinalizeActive validates the completion inputs and computes the frozen
// performance metrics for the active episode. It mutates nothing: the
// caller commits the returned episode either through the cycle runner's
// atomic commit or, on cold start, through CommitColdStart.
func (s *EpisodeService) FinalizeActive(input domain.CompleteEpisodeInput) (*domain.Episode, error) {
	if s.active == nil {
		return nil, domain.NewStateError("complete episode", "no active episode")
	}
	if len(s.active.Decisions) == 0 {
		return nil, domain.NewStateError("complete episode", "active episode has no decisions")
	}
	if input.StartValue <= 0 {
		return nil, domain.NewValidationError("start_value", "start value must be positive")
	}

	valuations := input.Valuations
	if len(valuations) < 2 {
		valuations = []float64{input.StartValue, input.EndValue}
	}
	returns := returnsFromValuations(valuations)

	episode := *s.active
	episode.Decisions = append([]domain.Decision(nil), s.active.Decisions...)
	end := time.Now()
	episode.EndDate = &end
	episode.Status = domain.EpisodeCompleted
	episode.PortfolioReturn = (input.EndValue - input.StartValue) / input.StartValue
	episode.SharpeRatio = sharpeRatio(returns)
	episode.MaxDrawdown = maxDrawdown(returns)
	episode.FactorProfile = domain.FactorProfile(episode.Decisions)

	return &episode, nil
}

// Previous returns the most recently completed episode, nil on cold start.
func (s *EpisodeService) Previous() *domain.Episode {
	return s.lastCompleted
}

// Active reports whether an episode is currently active.
func (s *EpisodeService) Active() *domain.Episode {
	if s.active == nil {
		return nil
	}
	cp := *s.active
	cp.Decisions = append([]domain.Decision(nil), s.active.Decisions...)
	return &cp
}

// CommitColdStart persists the first completed episode, which becomes the
// baseline for the next comparison. No cycle result is emitted.
func (s *EpisodeService) CommitColdStart(ctx context.Context, episode *domain.Episode) error {
	if err := s.episodeStore.Save(ctx, episode); err != nil {
		return domain.NewStorageError("save episode", err)
	}
	s.MarkCompleted(episode)
	s.logger.Info("completed baseline episode",
		zap.Int("episode", episode.EpisodeNumber),
		zap.Float64("return", episode.PortfolioReturn),
	)
	return nil
}

// MarkCompleted publishes the completed episode into lifecycle state after
// it has been durably committed.
func (s *EpisodeService) MarkCompleted(episode *domain.Episode) {
	s.lastCompleted = episode
	s.active = nil
}
