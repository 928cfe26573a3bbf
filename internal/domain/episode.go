package domain

import (
	"time"

	"github.com/google/uuid"
)

// EpisodeStatus is the lifecycle state of an episode.
type EpisodeStatus string

const (
	EpisodeActive    EpisodeStatus = "active"
	EpisodeCompleted EpisodeStatus = "completed"
)

func ValidEpisodeStatus(s string) bool {
	switch EpisodeStatus(s) {
	case EpisodeActive, EpisodeCompleted:
		return true
	}
	return false
}

// Episode is one bounded trading period. At most one episode is active at a
// time; an episode is immutable once completed.
type Episode struct {
	ID            uuid.UUID     `json:"id"`
	EpisodeNumber int           `json:"episode_number"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
	Status        EpisodeStatus `json:"status"`

	Decisions []Decision `json:"decisions"`

	// Performance metrics, computed and frozen on completion.
	PortfolioReturn float64 `json:"portfolio_return"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`

	// Mean canonical-factor exposure over this episode's decisions.
	// Populated on completion; used for historical-precedent lookup.
	FactorProfile []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Signatures returns the set of (symbol, action) decision signatures.
func (e *Episode) Signatures() map[string]struct{} {
	set := make(map[string]struct{}, len(e.Decisions))
	for i := range e.Decisions {
		set[e.Decisions[i].Signature()] = struct{}{}
	}
	return set
}

// EpisodeWithScore is an Episode with a similarity score from precedent lookup.
type EpisodeWithScore struct {
	Episode
	Score float32 `json:"score"`
}

// CompleteEpisodeInput carries the externally supplied inputs for closing an
// episode: portfolio valuations from the accounting collaborator and the
// current output of the external regime detector, when available.
type CompleteEpisodeInput struct {
	StartValue float64 `json:"start_value"`
	EndValue   float64 `json:"end_value"`

	// Valuations is the full portfolio valuation series over the episode,
	// oldest first, when the collaborator can supply it. When absent the
	// series degenerates to [StartValue, EndValue] and the Sharpe ratio and
	// drawdown are computed from the single resulting return.
	Valuations []float64 `json:"valuations,omitempty"`

	Regime *RegimeSignal `json:"regime,omitempty"`
}

// RegimeSignal is the output of the external regime detector.
type RegimeSignal struct {
	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"`
}
