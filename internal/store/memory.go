package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of every storage interface,
// used by the examples and as the default test double. All methods are
// safe for concurrent use and CommitCycle is atomic under the store mutex.
type MemoryStore struct {
	mu        sync.Mutex
	belief    *domain.BeliefState
	episodes  map[uuid.UUID]*domain.Episode
	decisions map[uuid.UUID][]domain.Decision
	cycles    []domain.CycleResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		episodes:  make(map[uuid.UUID]*domain.Episode),
		decisions: make(map[uuid.UUID][]domain.Decision),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (*domain.BeliefState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.belief == nil {
		return nil, ErrNotFound
	}
	return s.belief.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, state *domain.BeliefState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.belief = state.Clone()
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, d *domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.decisions[d.EpisodeID] = append(s.decisions[d.EpisodeID], *d)
	return nil
}

func (s *MemoryStore) SaveEpisode(ctx context.Context, e *domain.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveEpisodeLocked(e)
	return nil
}

func (s *MemoryStore) saveEpisodeLocked(e *domain.Episode) {
	cp := *e
	cp.Decisions = nil
	if e.EndDate != nil {
		end := *e.EndDate
		cp.EndDate = &end
	}
	if len(e.FactorProfile) > 0 {
		cp.FactorProfile = append([]float32(nil), e.FactorProfile...)
	}
	s.episodes[e.ID] = &cp
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	episodes := make([]domain.Episode, 0, len(s.episodes))
	for _, e := range s.episodes {
		cp := *e
		cp.Decisions = append([]domain.Decision(nil), s.decisions[e.ID]...)
		episodes = append(episodes, cp)
	}
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].EpisodeNumber < episodes[j].EpisodeNumber
	})
	return episodes, nil
}

func (s *MemoryStore) FindSimilar(ctx context.Context, profile []float32, threshold float32, limit int) ([]domain.EpisodeWithScore, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []domain.EpisodeWithScore
	for _, e := range s.episodes {
		if e.Status != domain.EpisodeCompleted || len(e.FactorProfile) == 0 {
			continue
		}
		score := cosineSimilarity(profile, e.FactorProfile)
		if score < threshold {
			continue
		}
		cp := *e
		cp.Decisions = append([]domain.Decision(nil), s.decisions[e.ID]...)
		results = append(results, domain.EpisodeWithScore{Episode: cp, Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) AppendCycle(ctx context.Context, r *domain.CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, *r)
	return nil
}

func (s *MemoryStore) ListCycles(ctx context.Context) ([]domain.CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CycleResult(nil), s.cycles...), nil
}

func (s *MemoryStore) CommitCycle(ctx context.Context, r *domain.CycleResult, state *domain.BeliefState, episode *domain.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveEpisodeLocked(episode)
	s.cycles = append(s.cycles, *r)
	s.belief = state.Clone()
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Adapter views so one MemoryStore can stand in for each interface without
// method-name collisions between CycleStore and DecisionStore.
type memoryCycleStore struct{ *MemoryStore }

func (s memoryCycleStore) Append(ctx context.Context, r *domain.CycleResult) error {
	return s.AppendCycle(ctx, r)
}

func (s memoryCycleStore) List(ctx context.Context) ([]domain.CycleResult, error) {
	return s.ListCycles(ctx)
}

// Cycles returns the store viewed as a domain.CycleStore.
func (s *MemoryStore) Cycles() domain.CycleStore {
	return memoryCycleStore{s}
}

type memoryEpisodeStore struct{ *MemoryStore }

func (s memoryEpisodeStore) Save(ctx context.Context, e *domain.Episode) error {
	return s.SaveEpisode(ctx, e)
}

// Episodes returns the store viewed as a domain.EpisodeStore.
func (s *MemoryStore) Episodes() domain.EpisodeStore {
	return memoryEpisodeStore{s}
}
