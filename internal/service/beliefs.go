package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/frontier-alpha/cvrf/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// FactorWeightBound caps factor weights to [-1, 1]. Sign is
	// unconstrained; magnitude is not.
	FactorWeightBound = 1.0

	// DefaultFactorConfidence is assumed for factors the belief state has
	// not seen before.
	DefaultFactorConfidence = 0.5
)

// BeliefService owns the versioned belief-state singleton. Every successful
// update bumps the version by exactly 1 and is durably written before the new
// snapshot is published. updateMu serializes the check-save-publish sequence,
// so of two writers racing on the same base version exactly one wins and the
// other gets a StateError.
type BeliefService struct {
	store  domain.BeliefStore
	logger *zap.Logger

	updateMu sync.Mutex

	mu      sync.RWMutex
	current *domain.BeliefState
}

func NewBeliefService(st domain.BeliefStore, logger *zap.Logger) *BeliefService {
	return &BeliefService{store: st, logger: logger}
}

// Bootstrap loads the persisted state, creating and persisting the default
// state on first use.
func (s *BeliefService) Bootstrap(ctx context.Context) error {
	state, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.NewStorageError("load belief state", err)
		}
		state = domain.DefaultBeliefState()
		if err := s.store.Save(ctx, state); err != nil {
			return domain.NewStorageError("save initial belief state", err)
		}
		s.logger.Info("initialized default belief state", zap.Int64("version", state.Version))
	}

	s.mu.Lock()
	s.current = state
	s.mu.Unlock()
	return nil
}

// Current returns a deep-copied snapshot of the latest committed state.
func (s *BeliefService) Current() *domain.BeliefState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// ApplyUpdate validates and applies a field-to-value update map against the
// given base version, clamping out-of-range numerics and incrementing the
// version by exactly 1. The new state is persisted before it is published;
// on any failure the previous snapshot stays in effect.
func (s *BeliefService) ApplyUpdate(ctx context.Context, baseVersion int64, updates map[string]any, priors []domain.ConceptualPrior, sourceCycleID uuid.UUID) (*domain.BeliefState, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	base := s.Current()

	next, fieldUpdates, err := computeUpdate(base, baseVersion, updates, priors)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, next); err != nil {
		return nil, domain.NewStorageError("save belief state", err)
	}
	s.publish(next)

	s.logger.Debug("applied belief update",
		zap.Int64("version", next.Version),
		zap.Int("fields_changed", len(fieldUpdates)),
		zap.String("source_cycle", sourceCycleID.String()),
	)
	return next.Clone(), nil
}

// publish swaps in a fully computed state. Readers never observe a
// partially applied update.
func (s *BeliefService) publish(state *domain.BeliefState) {
	s.mu.Lock()
	s.current = state
	s.mu.Unlock()
}

// commitAndPublish runs commit and publishes next under the update lock.
// next must be the direct successor of the currently published state; if
// another writer got there first the commit is refused with a StateError
// and nothing is persisted.
func (s *BeliefService) commitAndPublish(next *domain.BeliefState, commit func() error) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.RLock()
	published := s.current.Version
	s.mu.RUnlock()
	if next.Version != published+1 {
		return domain.NewStateError("commit belief update",
			"stale base version: state has moved on")
	}

	if err := commit(); err != nil {
		return err
	}
	s.publish(next)
	return nil
}

// computeUpdate builds the successor state off to the side: validate types,
// clamp ranges, bump the version, append priors. Pure; shared by ApplyUpdate
// and the cycle runner's atomic commit path.
func computeUpdate(base *domain.BeliefState, baseVersion int64, updates map[string]any, priors []domain.ConceptualPrior) (*domain.BeliefState, []domain.BeliefFieldUpdate, error) {
	if base.Version != baseVersion {
		return nil, nil, domain.NewStateError("apply belief update",
			"stale base version: state has moved on")
	}

	next := base.Clone()
	var fieldUpdates []domain.BeliefFieldUpdate

	// Deterministic application order.
	fields := make([]string, 0, len(updates))
	for f := range updates {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := updates[field]

		if field == "currentRegime" {
			str, ok := value.(string)
			if !ok {
				return nil, nil, domain.NewValidationError(field, "regime must be a string")
			}
			if !domain.ValidRegime(str) {
				return nil, nil, domain.NewValidationError(field, "unknown regime "+str)
			}
			next.CurrentRegime = domain.Regime(str)
			continue
		}

		num, ok := toFloat(value)
		if !ok {
			return nil, nil, domain.NewValidationError(field, "value must be numeric")
		}

		old, clamped, err := applyNumericField(next, field, num)
		if err != nil {
			return nil, nil, err
		}
		if old != clamped {
			fieldUpdates = append(fieldUpdates, domain.BeliefFieldUpdate{
				Field:    field,
				OldValue: old,
				NewValue: clamped,
			})
		}
	}

	now := time.Now()
	for _, p := range priors {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		next.ConceptualPriors = append(next.ConceptualPriors, p)
	}

	next.Version = base.Version + 1
	next.UpdatedAt = now
	return next, fieldUpdates, nil
}

func applyNumericField(state *domain.BeliefState, field string, v float64) (old, applied float64, err error) {
	if name, ok := strings.CutPrefix(field, "factorWeights."); ok {
		old = state.FactorWeights[name]
		applied = clampAbs(v, FactorWeightBound)
		state.FactorWeights[name] = applied
		return old, applied, nil
	}
	if name, ok := strings.CutPrefix(field, "factorConfidences."); ok {
		old, exists := state.FactorConfidences[name]
		if !exists {
			old = DefaultFactorConfidence
		}
		applied = domain.Clamp01(v)
		state.FactorConfidences[name] = applied
		return old, applied, nil
	}

	switch field {
	case "regimeConfidence":
		old = state.RegimeConfidence
		applied = domain.Clamp01(v)
		state.RegimeConfidence = applied
	case "riskTolerance":
		old = state.RiskTolerance
		applied = domain.ClampRiskParam(field, v)
		state.RiskTolerance = applied
	case "maxDrawdownThreshold":
		old = state.MaxDrawdownThreshold
		applied = domain.ClampRiskParam(field, v)
		state.MaxDrawdownThreshold = applied
	case "volatilityTarget":
		old = state.VolatilityTarget
		applied = domain.ClampRiskParam(field, v)
		state.VolatilityTarget = applied
	case "momentumHorizon":
		old = state.MomentumHorizon
		applied = domain.ClampRiskParam(field, v)
		state.MomentumHorizon = applied
	case "meanReversionThreshold":
		old = state.MeanReversionThreshold
		applied = domain.ClampRiskParam(field, v)
		state.MeanReversionThreshold = applied
	case "concentrationLimit":
		old = state.ConcentrationLimit
		applied = domain.ClampRiskParam(field, v)
		state.ConcentrationLimit = applied
	case "minPositionSize":
		old = state.MinPositionSize
		applied = domain.ClampRiskParam(field, v)
		state.MinPositionSize = applied
	case "rebalanceThreshold":
		old = state.RebalanceThreshold
		applied = domain.ClampRiskParam(field, v)
		state.RebalanceThreshold = applied
	default:
		return 0, 0, domain.NewValidationError(field, "unknown belief field")
	}
	return old, applied, nil
}

func clampAbs(v, bound float64) float64 {
	if v < -bound {
		return -bound
	}
	if v > bound {
		return bound
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
