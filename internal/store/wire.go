package store

import "github.com/frontier-alpha/cvrf/internal/domain"

// Ensure stores satisfy the domain interfaces at compile time.
var (
	_ domain.BeliefStore   = (*BeliefStore)(nil)
	_ domain.DecisionStore = (*DecisionStore)(nil)
	_ domain.EpisodeStore  = (*EpisodeStore)(nil)
	_ domain.CycleStore    = (*CycleStore)(nil)

	_ domain.BeliefStore   = (*MemoryStore)(nil)
	_ domain.DecisionStore = (*MemoryStore)(nil)
	_ domain.EpisodeStore  = (memoryEpisodeStore{})
	_ domain.CycleStore    = (memoryCycleStore{})
)
