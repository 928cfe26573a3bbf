package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// EpisodeStore persists episodes and their decisions in Postgres.
type EpisodeStore struct {
	db *pgxpool.Pool
}

func NewEpisodeStore(db *pgxpool.Pool) *EpisodeStore {
	return &EpisodeStore{db: db}
}

func (s *EpisodeStore) Save(ctx context.Context, e *domain.Episode) error {
	return saveEpisode(ctx, s.db, e)
}

func saveEpisode(ctx context.Context, q querier, e *domain.Episode) error {
	var profile *pgvector.Vector
	if len(e.FactorProfile) > 0 {
		v := pgvector.NewVector(e.FactorProfile)
		profile = &v
	}

	_, err := q.Exec(ctx,
		`INSERT INTO episodes (
			id, episode_number, start_date, end_date, status,
			portfolio_return, sharpe_ratio, max_drawdown, factor_profile,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			now(), now()
		)
		ON CONFLICT (id) DO UPDATE SET
			end_date = EXCLUDED.end_date,
			status = EXCLUDED.status,
			portfolio_return = EXCLUDED.portfolio_return,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			max_drawdown = EXCLUDED.max_drawdown,
			factor_profile = EXCLUDED.factor_profile,
			updated_at = now()`,
		e.ID, e.EpisodeNumber, e.StartDate, e.EndDate, e.Status,
		e.PortfolioReturn, e.SharpeRatio, e.MaxDrawdown, profile,
	)
	if err != nil {
		return fmt.Errorf("save episode: %w", err)
	}
	return nil
}

func (s *EpisodeStore) List(ctx context.Context) ([]domain.Episode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, episode_number, start_date, end_date, status,
			portfolio_return, sharpe_ratio, max_drawdown,
			created_at, updated_at
		FROM episodes
		ORDER BY episode_number ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes query: %w", err)
	}
	defer rows.Close()

	var episodes []domain.Episode
	for rows.Next() {
		var e domain.Episode
		if err := rows.Scan(
			&e.ID, &e.EpisodeNumber, &e.StartDate, &e.EndDate, &e.Status,
			&e.PortfolioReturn, &e.SharpeRatio, &e.MaxDrawdown,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list episodes rows: %w", err)
	}

	for i := range episodes {
		decisions, err := s.listDecisions(ctx, episodes[i].ID)
		if err != nil {
			return nil, err
		}
		episodes[i].Decisions = decisions
	}

	return episodes, nil
}

func (s *EpisodeStore) listDecisions(ctx context.Context, episodeID uuid.UUID) ([]domain.Decision, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, episode_id, ts, symbol, action,
			weight_before, weight_after, reason, confidence, factors, created_at
		FROM decisions
		WHERE episode_id = $1
		ORDER BY ts ASC`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions query: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var d domain.Decision
		var factorsJSON []byte
		if err := rows.Scan(
			&d.ID, &d.EpisodeID, &d.Timestamp, &d.Symbol, &d.Action,
			&d.WeightBefore, &d.WeightAfter, &d.Reason, &d.Confidence, &factorsJSON, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		if len(factorsJSON) > 0 {
			if err := json.Unmarshal(factorsJSON, &d.Factors); err != nil {
				return nil, fmt.Errorf("unmarshal factors: %w", err)
			}
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func (s *EpisodeStore) FindSimilar(ctx context.Context, profile []float32, threshold float32, limit int) ([]domain.EpisodeWithScore, error) {
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(profile)

	rows, err := s.db.Query(ctx,
		`SELECT id, episode_number, start_date, end_date, status,
			portfolio_return, sharpe_ratio, max_drawdown,
			created_at, updated_at,
			1 - (factor_profile <=> $1) AS score
		FROM episodes
		WHERE status = 'completed' AND factor_profile IS NOT NULL
			AND 1 - (factor_profile <=> $1) >= $2
		ORDER BY score DESC
		LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar episodes query: %w", err)
	}
	defer rows.Close()

	var results []domain.EpisodeWithScore
	for rows.Next() {
		var e domain.EpisodeWithScore
		if err := rows.Scan(
			&e.ID, &e.EpisodeNumber, &e.StartDate, &e.EndDate, &e.Status,
			&e.PortfolioReturn, &e.SharpeRatio, &e.MaxDrawdown,
			&e.CreatedAt, &e.UpdatedAt,
			&e.Score,
		); err != nil {
			return nil, fmt.Errorf("scan similar episode row: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
