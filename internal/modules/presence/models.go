// Package presence tracks each musician's online and availability state from
// periodic heartbeats. One row per musician, upserted last-write-wins, never
// hard-deleted: a musician that stops heartbeating goes stale instead.
package presence

import (
	"time"

	"github.com/stagefinder/stagefinder/internal/domain"
)

// Availability is the musician-declared availability window
type Availability struct {
	IsAvailable   bool       `json:"is_available"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	AvailableTo   *time.Time `json:"available_to,omitempty"`
}

// Performance holds externally-sourced quality counters. Rating comes from
// the review system; only the event counters are merged by this engine.
type Performance struct {
	Rating                  float64 `json:"rating"` // 0-5
	TotalEvents             int     `json:"total_events"`
	CompletedEvents         int     `json:"completed_events"`
	AverageResponseTimeSecs float64 `json:"average_response_time_seconds"`
}

// MusicianPresence is the stored presence snapshot for one musician
type MusicianPresence struct {
	MusicianID      string              `json:"musician_id"`
	IsOnline        bool                `json:"is_online"`
	LastHeartbeatAt time.Time           `json:"last_heartbeat_at"`
	CurrentLocation *domain.Coordinates `json:"current_location,omitempty"`
	Availability    Availability        `json:"availability"`
	Performance     Performance         `json:"performance"`

	// Matching attributes carried on the presence row so candidate filtering
	// needs a single read.
	Instruments []string `json:"instruments"`
	EventTypes  []string `json:"event_types"`
	HourlyRate  float64  `json:"hourly_rate"`
	Location    string   `json:"location"`
}

// StatusUpdate is a partial explicit state change. Nil fields are left
// untouched by UpdateStatus.
type StatusUpdate struct {
	IsOnline        *bool               `json:"is_online,omitempty"`
	Availability    *Availability       `json:"availability,omitempty"`
	CurrentLocation *domain.Coordinates `json:"current_location,omitempty"`
	Instruments     []string            `json:"instruments,omitempty"`
	EventTypes      []string            `json:"event_types,omitempty"`
	HourlyRate      *float64            `json:"hourly_rate,omitempty"`
	Location        *string             `json:"location,omitempty"`
}

// PerformanceDelta merges completed-event counters after an event closes.
// Rating is externally sourced and not recomputed here.
type PerformanceDelta struct {
	TotalEvents             int      `json:"total_events"`
	CompletedEvents         int      `json:"completed_events"`
	AverageResponseTimeSecs *float64 `json:"average_response_time_seconds,omitempty"`
}

// Filters narrow GetOnlineMusicians results. Zero values mean "no filter".
type Filters struct {
	Location   string
	RadiusKM   float64 // Only meaningful with Coords set
	Coords     *domain.Coordinates
	EventType  domain.EventType
	Instrument string
	BudgetMin  float64
	BudgetMax  float64
}
