package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BeliefStore persists the singleton belief state in one row.
type BeliefStore struct {
	db *pgxpool.Pool
}

func NewBeliefStore(db *pgxpool.Pool) *BeliefStore {
	return &BeliefStore{db: db}
}

func (s *BeliefStore) Load(ctx context.Context) (*domain.BeliefState, error) {
	return loadBeliefState(ctx, s.db)
}

func (s *BeliefStore) Save(ctx context.Context, state *domain.BeliefState) error {
	return saveBeliefState(ctx, s.db, state)
}

func loadBeliefState(ctx context.Context, q querier) (*domain.BeliefState, error) {
	b := &domain.BeliefState{}
	var weightsJSON, confidencesJSON, priorsJSON []byte

	err := q.QueryRow(ctx,
		`SELECT version, factor_weights, factor_confidences,
			risk_tolerance, max_drawdown_threshold, volatility_target,
			momentum_horizon, mean_reversion_threshold, concentration_limit,
			min_position_size, rebalance_threshold,
			current_regime, regime_confidence, conceptual_priors,
			created_at, updated_at
		FROM belief_state WHERE id = 1`,
	).Scan(
		&b.Version, &weightsJSON, &confidencesJSON,
		&b.RiskTolerance, &b.MaxDrawdownThreshold, &b.VolatilityTarget,
		&b.MomentumHorizon, &b.MeanReversionThreshold, &b.ConcentrationLimit,
		&b.MinPositionSize, &b.RebalanceThreshold,
		&b.CurrentRegime, &b.RegimeConfidence, &priorsJSON,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load belief state: %w", err)
	}

	if err := json.Unmarshal(weightsJSON, &b.FactorWeights); err != nil {
		return nil, fmt.Errorf("unmarshal factor_weights: %w", err)
	}
	if err := json.Unmarshal(confidencesJSON, &b.FactorConfidences); err != nil {
		return nil, fmt.Errorf("unmarshal factor_confidences: %w", err)
	}
	if len(priorsJSON) > 0 {
		if err := json.Unmarshal(priorsJSON, &b.ConceptualPriors); err != nil {
			return nil, fmt.Errorf("unmarshal conceptual_priors: %w", err)
		}
	}

	return b, nil
}

func saveBeliefState(ctx context.Context, q querier, b *domain.BeliefState) error {
	weightsJSON, err := json.Marshal(copyMap(b.FactorWeights))
	if err != nil {
		return fmt.Errorf("marshal factor_weights: %w", err)
	}
	confidencesJSON, err := json.Marshal(copyMap(b.FactorConfidences))
	if err != nil {
		return fmt.Errorf("marshal factor_confidences: %w", err)
	}
	priorsJSON, err := json.Marshal(b.ConceptualPriors)
	if err != nil {
		return fmt.Errorf("marshal conceptual_priors: %w", err)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO belief_state (
			id, version, factor_weights, factor_confidences,
			risk_tolerance, max_drawdown_threshold, volatility_target,
			momentum_horizon, mean_reversion_threshold, concentration_limit,
			min_position_size, rebalance_threshold,
			current_regime, regime_confidence, conceptual_priors,
			created_at, updated_at
		) VALUES (
			1, $1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11,
			$12, $13, $14,
			$15, $16
		)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			factor_weights = EXCLUDED.factor_weights,
			factor_confidences = EXCLUDED.factor_confidences,
			risk_tolerance = EXCLUDED.risk_tolerance,
			max_drawdown_threshold = EXCLUDED.max_drawdown_threshold,
			volatility_target = EXCLUDED.volatility_target,
			momentum_horizon = EXCLUDED.momentum_horizon,
			mean_reversion_threshold = EXCLUDED.mean_reversion_threshold,
			concentration_limit = EXCLUDED.concentration_limit,
			min_position_size = EXCLUDED.min_position_size,
			rebalance_threshold = EXCLUDED.rebalance_threshold,
			current_regime = EXCLUDED.current_regime,
			regime_confidence = EXCLUDED.regime_confidence,
			conceptual_priors = EXCLUDED.conceptual_priors,
			updated_at = EXCLUDED.updated_at`,
		b.Version, weightsJSON, confidencesJSON,
		b.RiskTolerance, b.MaxDrawdownThreshold, b.VolatilityTarget,
		b.MomentumHorizon, b.MeanReversionThreshold, b.ConcentrationLimit,
		b.MinPositionSize, b.RebalanceThreshold,
		b.CurrentRegime, b.RegimeConfidence, priorsJSON,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save belief state: %w", err)
	}
	return nil
}

// copyMap shallow-copies a factor mapping so callers cannot mutate it
// mid-marshal. Key ordering in the serialized form comes from
// encoding/json, which emits map keys sorted.
func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
