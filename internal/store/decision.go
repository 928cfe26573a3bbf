package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DecisionStore is the append-only Postgres record of trading decisions.
type DecisionStore struct {
	db *pgxpool.Pool
}

func NewDecisionStore(db *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{db: db}
}

func (s *DecisionStore) Append(ctx context.Context, d *domain.Decision) error {
	return appendDecision(ctx, s.db, d)
}

func appendDecision(ctx context.Context, q querier, d *domain.Decision) error {
	factorsJSON, err := json.Marshal(d.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}

	return q.QueryRow(ctx,
		`INSERT INTO decisions (
			id, episode_id, ts, symbol, action,
			weight_before, weight_after, reason, confidence, factors
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		) RETURNING created_at`,
		d.ID, d.EpisodeID, d.Timestamp, d.Symbol, d.Action,
		d.WeightBefore, d.WeightAfter, d.Reason, d.Confidence, factorsJSON,
	).Scan(&d.CreatedAt)
}
