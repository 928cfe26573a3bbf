package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/frontier-alpha/cvrf/internal/buildconfig"
	"github.com/frontier-alpha/cvrf/internal/config"
	"github.com/frontier-alpha/cvrf/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Stores bundles the storage interfaces the manager wires together.
type Stores struct {
	Beliefs   domain.BeliefStore
	Decisions domain.DecisionStore
	Episodes  domain.EpisodeStore
	Cycles    domain.CycleStore
}

// ManagerConfig carries the tuning constants; see the config package for
// the documented defaults.
type ManagerConfig struct {
	InsightThreshold   float64
	BeliefStep         float64
	CVaRConfidence     float64
	CVaRWindow         int
	PrecedentThreshold float32
	StorageTimeout     time.Duration
	ReadRetries        int
}

// EnvManagerConfig builds a ManagerConfig from the environment.
func EnvManagerConfig() ManagerConfig {
	return ManagerConfig{
		InsightThreshold:   config.InsightThreshold(),
		BeliefStep:         config.BeliefStep(),
		CVaRConfidence:     config.CVaRConfidence(),
		CVaRWindow:         config.CVaRWindow(),
		PrecedentThreshold: config.PrecedentThreshold(),
		StorageTimeout:     config.StorageTimeout(),
		ReadRetries:        config.ReadRetries(),
	}
}

// Manager is the public CVRF contract consumed by the HTTP layer that lives
// outside this module. It owns all mutable engine state: there are no
// package-level globals. One mutex serializes every mutating operation,
// which is what upholds the single-active-episode and version-by-exactly-1
// invariants under concurrent callers; reads serve committed snapshots and
// never block behind a cycle.
type Manager struct {
	beliefs  *BeliefService
	episodes *EpisodeService
	cycles   *CycleService
	risk     *RiskService
	logger   *zap.Logger

	episodeStore domain.EpisodeStore

	storageTimeout time.Duration
	readRetries    int
	retryLimiter   *rate.Limiter

	mu      sync.RWMutex
	history []domain.CycleResult
}

// NewManager wires the services and restores state from storage: the belief
// state (created with defaults on first use), the episode lifecycle, and
// the cycle history.
func NewManager(ctx context.Context, stores Stores, detector domain.RegimeDetector, logger *zap.Logger, cfg ManagerConfig) (*Manager, error) {
	beliefs := NewBeliefService(stores.Beliefs, logger)
	episodes := NewEpisodeService(stores.Decisions, stores.Episodes, logger)
	cycles := NewCycleService(stores.Episodes, stores.Cycles, beliefs, detector, logger,
		cfg.InsightThreshold, cfg.BeliefStep, cfg.PrecedentThreshold)
	risk := NewRiskService(logger, cfg.CVaRConfidence, cfg.CVaRWindow)

	m := &Manager{
		beliefs:        beliefs,
		episodes:       episodes,
		cycles:         cycles,
		risk:           risk,
		logger:         logger,
		episodeStore:   stores.Episodes,
		storageTimeout: cfg.StorageTimeout,
		readRetries:    cfg.ReadRetries,
		retryLimiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}

	bootCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	if err := beliefs.Bootstrap(bootCtx); err != nil {
		return nil, err
	}

	persisted, err := m.listEpisodes(ctx)
	if err != nil {
		return nil, err
	}
	episodes.Restore(persisted)

	if err := m.retryRead(ctx, "list cycle results", func(ctx context.Context) error {
		history, err := stores.Cycles.List(ctx)
		if err != nil {
			return err
		}
		m.history = history
		return nil
	}); err != nil {
		return nil, err
	}

	logger.Info("cvrf manager ready",
		zap.String("version", buildconfig.Version()),
		zap.Int("episodes", len(persisted)),
		zap.Int("cycles", len(m.history)),
		zap.Int64("belief_version", beliefs.Current().Version),
	)
	return m, nil
}

// RecordDecision appends one decision to the active episode, starting one
// lazily when none is active.
func (m *Manager) RecordDecision(ctx context.Context, input domain.RecordDecisionInput) (*domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, m.storageTimeout)
	defer cancel()
	return m.episodes.RecordDecision(opCtx, input)
}

// CompleteEpisode freezes the active episode's metrics and, when a previous
// completed episode exists, runs one belief-revision cycle over the pair.
// The first completed episode becomes the comparison baseline and yields no
// cycle result.
func (m *Manager) CompleteEpisode(ctx context.Context, input domain.CompleteEpisodeInput) (*domain.Episode, *domain.CycleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	episode, err := m.episodes.FinalizeActive(input)
	if err != nil {
		return nil, nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, m.storageTimeout)
	defer cancel()

	prev := m.episodes.Previous()
	if prev == nil {
		if err := m.episodes.CommitColdStart(opCtx, episode); err != nil {
			return nil, nil, err
		}
		return episode, nil, nil
	}

	result, err := m.cycles.Run(opCtx, prev, episode, input.Regime)
	if err != nil {
		return nil, nil, err
	}
	m.episodes.MarkCompleted(episode)
	m.history = append(m.history, *result)

	return episode, result, nil
}

// Assess produces the combined risk recommendation from the supplied
// within-episode metrics and the latest cross-episode signal. It reads only
// in-memory state and never touches storage.
func (m *Manager) Assess(metrics domain.RiskMetrics) domain.RiskAssessment {
	m.mu.RLock()
	var latest *domain.CycleResult
	if len(m.history) > 0 {
		last := m.history[len(m.history)-1]
		latest = &last
	}
	m.mu.RUnlock()

	return m.risk.Assess(metrics, m.beliefs.Current(), latest)
}

// GetCurrentBeliefs returns a snapshot of the latest committed belief state.
func (m *Manager) GetCurrentBeliefs() *domain.BeliefState {
	return m.beliefs.Current()
}

// GetCycleHistory returns all cycle results, oldest first.
func (m *Manager) GetCycleHistory() []domain.CycleResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.CycleResult(nil), m.history...)
}

// GetLatestMetaPrompt returns the most recent cycle's meta-prompt, or nil
// when no cycle has run yet.
func (m *Manager) GetLatestMetaPrompt() *domain.MetaPrompt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return nil
	}
	prompt := m.history[len(m.history)-1].MetaPrompt
	return &prompt
}

// GetRecentEpisodes returns all persisted episodes ordered by episode
// number ascending, decisions included.
func (m *Manager) GetRecentEpisodes(ctx context.Context) ([]domain.Episode, error) {
	return m.listEpisodes(ctx)
}

// GetEpisode returns the episode with the given number, decisions included.
func (m *Manager) GetEpisode(ctx context.Context, number int) (*domain.Episode, error) {
	episodes, err := m.listEpisodes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range episodes {
		if episodes[i].EpisodeNumber == number {
			return &episodes[i], nil
		}
	}
	return nil, domain.NewNotFoundError("episode", strconv.Itoa(number))
}

// Stats computes the derived display aggregates for the reporting layer.
func (m *Manager) Stats(ctx context.Context) (AggregateStats, error) {
	episodes, err := m.listEpisodes(ctx)
	if err != nil {
		return AggregateStats{}, err
	}
	return computeStats(episodes, m.GetCycleHistory(), m.beliefs.Current()), nil
}

func (m *Manager) listEpisodes(ctx context.Context) ([]domain.Episode, error) {
	var episodes []domain.Episode
	err := m.retryRead(ctx, "list episodes", func(ctx context.Context) error {
		listed, err := m.episodeStore.List(ctx)
		if err != nil {
			return err
		}
		episodes = listed
		return nil
	})
	return episodes, err
}

// retryRead runs an idempotent storage read with a bounded retry budget,
// pacing attempts through the shared limiter so a flapping store is not
// hammered. Each attempt is individually bounded by the storage timeout.
func (m *Manager) retryRead(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= m.readRetries; attempt++ {
		if attempt > 0 {
			if err := m.retryLimiter.Wait(ctx); err != nil {
				return domain.NewStorageError(op, err)
			}
			m.logger.Warn("retrying storage read",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		opCtx, cancel := context.WithTimeout(ctx, m.storageTimeout)
		lastErr = fn(opCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return domain.NewStorageError(op, lastErr)
}
