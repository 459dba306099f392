// Package matching composes presence, calendar and rates into ranked search
// results: musicians for an event, or events for a musician.
package matching

import (
	"time"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
)

// SearchState tracks where a search ended in its state machine.
type SearchState string

const (
	StateInitiated        SearchState = "INITIATED"
	StateCandidatesFound  SearchState = "CANDIDATES_FOUND"
	StateConflictFiltered SearchState = "CONFLICT_FILTERED"
	StatePriced           SearchState = "PRICED"
	StateRanked           SearchState = "RANKED"
	StateEmptyResult      SearchState = "EMPTY_RESULT"
)

// MatchCandidate is one musician under consideration for an event, annotated
// with the snapshot, rate and score that ranked it. Transient, built per
// search.
type MatchCandidate struct {
	MusicianID string                    `json:"musician_id"`
	Presence   presence.MusicianPresence `json:"presence"`
	Rate       *rates.RateResult         `json:"rate"`
	Score      float64                   `json:"score"`
}

// EventCandidate is one open event under consideration for a musician.
type EventCandidate struct {
	Event domain.Event      `json:"event"`
	Rate  *rates.RateResult `json:"rate"`
	Score float64           `json:"score"`
}

// SearchMetadata annotates a result with per-stage counts and timing.
type SearchMetadata struct {
	SearchID         string      `json:"search_id"`
	State            SearchState `json:"state"`
	OnlineCandidates int         `json:"online_candidates"`
	AfterConflicts   int         `json:"after_conflicts"`
	Priced           int         `json:"priced"`
	Excluded         int         `json:"excluded"`
	StartedAt        time.Time   `json:"started_at"`
	DurationMS       int64       `json:"duration_ms"`
	FromCache        bool        `json:"from_cache,omitempty"`
}

// MusicianSearchResult answers "find musicians for this event".
type MusicianSearchResult struct {
	Candidates []MatchCandidate `json:"candidates"`
	Metadata   SearchMetadata   `json:"search_metadata"`
}

// EventSearchResult answers "find events for this musician".
type EventSearchResult struct {
	Candidates []EventCandidate `json:"candidates"`
	Metadata   SearchMetadata   `json:"search_metadata"`
}
