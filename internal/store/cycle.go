package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CycleStore persists the append-only cycle history.
type CycleStore struct {
	db *pgxpool.Pool
}

func NewCycleStore(db *pgxpool.Pool) *CycleStore {
	return &CycleStore{db: db}
}

func (s *CycleStore) Append(ctx context.Context, r *domain.CycleResult) error {
	return appendCycleResult(ctx, s.db, r)
}

func appendCycleResult(ctx context.Context, q querier, r *domain.CycleResult) error {
	comparisonJSON, err := json.Marshal(r.EpisodeComparison)
	if err != nil {
		return fmt.Errorf("marshal episode_comparison: %w", err)
	}
	insightsJSON, err := json.Marshal(r.ExtractedInsights)
	if err != nil {
		return fmt.Errorf("marshal extracted_insights: %w", err)
	}
	updatesJSON, err := json.Marshal(r.BeliefUpdates)
	if err != nil {
		return fmt.Errorf("marshal belief_updates: %w", err)
	}
	stateJSON, err := json.Marshal(r.NewBeliefState)
	if err != nil {
		return fmt.Errorf("marshal new_belief_state: %w", err)
	}
	promptJSON, err := json.Marshal(r.MetaPrompt)
	if err != nil {
		return fmt.Errorf("marshal meta_prompt: %w", err)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO cycle_results (
			id, ts, episode_comparison, extracted_insights,
			belief_updates, new_belief_state, meta_prompt
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Timestamp, comparisonJSON, insightsJSON,
		updatesJSON, stateJSON, promptJSON,
	)
	if err != nil {
		return fmt.Errorf("append cycle result: %w", err)
	}
	return nil
}

func (s *CycleStore) List(ctx context.Context) ([]domain.CycleResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, ts, episode_comparison, extracted_insights,
			belief_updates, new_belief_state, meta_prompt
		FROM cycle_results
		ORDER BY ts ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycle results query: %w", err)
	}
	defer rows.Close()

	var results []domain.CycleResult
	for rows.Next() {
		var r domain.CycleResult
		var comparisonJSON, insightsJSON, updatesJSON, stateJSON, promptJSON []byte
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &comparisonJSON, &insightsJSON,
			&updatesJSON, &stateJSON, &promptJSON,
		); err != nil {
			return nil, fmt.Errorf("scan cycle result row: %w", err)
		}
		if err := json.Unmarshal(comparisonJSON, &r.EpisodeComparison); err != nil {
			return nil, fmt.Errorf("unmarshal episode_comparison: %w", err)
		}
		if len(insightsJSON) > 0 {
			if err := json.Unmarshal(insightsJSON, &r.ExtractedInsights); err != nil {
				return nil, fmt.Errorf("unmarshal extracted_insights: %w", err)
			}
		}
		if len(updatesJSON) > 0 {
			if err := json.Unmarshal(updatesJSON, &r.BeliefUpdates); err != nil {
				return nil, fmt.Errorf("unmarshal belief_updates: %w", err)
			}
		}
		if err := json.Unmarshal(stateJSON, &r.NewBeliefState); err != nil {
			return nil, fmt.Errorf("unmarshal new_belief_state: %w", err)
		}
		if err := json.Unmarshal(promptJSON, &r.MetaPrompt); err != nil {
			return nil, fmt.Errorf("unmarshal meta_prompt: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CommitCycle lands the completed episode, the cycle result, and the new
// belief state in one transaction so a cancelled or failed cycle leaves
// nothing half-applied.
func (s *CycleStore) CommitCycle(ctx context.Context, r *domain.CycleResult, state *domain.BeliefState, episode *domain.Episode) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cycle commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := saveEpisode(ctx, tx, episode); err != nil {
		return err
	}
	if err := appendCycleResult(ctx, tx, r); err != nil {
		return err
	}
	if err := saveBeliefState(ctx, tx, state); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}
