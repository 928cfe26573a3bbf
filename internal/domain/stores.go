package domain

import "context"

// BeliefStore persists the singleton belief state. Save replaces the stored
// state whole; a successful Save guarantees the state is retrievable by
// subsequent Loads.
type BeliefStore interface {
	Load(ctx context.Context) (*BeliefState, error)
	Save(ctx context.Context, state *BeliefState) error
}

// DecisionStore is the append-only record of trading decisions.
type DecisionStore interface {
	Append(ctx context.Context, d *Decision) error
}

// EpisodeStore persists episodes and serves historical reads.
type EpisodeStore interface {
	Save(ctx context.Context, e *Episode) error
	// List returns all episodes ordered by episode number ascending,
	// decisions included.
	List(ctx context.Context) ([]Episode, error)
	// FindSimilar returns completed episodes whose factor profile is within
	// the cosine-similarity threshold of the given profile, best first.
	FindSimilar(ctx context.Context, profile []float32, threshold float32, limit int) ([]EpisodeWithScore, error)
}

// CycleStore persists the append-only cycle history.
type CycleStore interface {
	Append(ctx context.Context, r *CycleResult) error
	// List returns all cycle results ordered by timestamp ascending.
	List(ctx context.Context) ([]CycleResult, error)
	// CommitCycle persists one whole belief-revision cycle atomically: the
	// completed episode, the cycle result, and the new belief state either
	// all land or none do.
	CommitCycle(ctx context.Context, r *CycleResult, state *BeliefState, episode *Episode) error
}

// RegimeDetector is the external regime model boundary. The core performs no
// inference; it only consumes the label and confidence.
type RegimeDetector interface {
	DetectRegime(ctx context.Context) (*RegimeSignal, error)
}
