// Package domain provides core domain models and types shared across modules.
package domain

import "time"

// EventType categorizes a booking request. The set is open-ended; unknown
// types fall back to generic pricing and affinity weights.
type EventType string

const (
	EventTypeWedding   EventType = "wedding"
	EventTypeCorporate EventType = "corporate"
	EventTypeFestival  EventType = "festival"
	EventTypeConcert   EventType = "concert"
	EventTypeBirthday  EventType = "birthday"
	EventTypePrivate   EventType = "private"
	EventTypeGeneric   EventType = "generic"
)

// Coordinates is a geographic point. Zero value means "unknown location".
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the coordinates were never set.
func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two half-open windows intersect.
// [a.Start, a.End) and [b.Start, b.End) overlap iff a.Start < b.End && b.Start < a.End.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// IsValid reports whether the window is well-formed (positive length).
func (w TimeWindow) IsValid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}

// Event is a booking request record consumed from the marketplace's document
// store. Read-only to this engine.
type Event struct {
	ID         string        `json:"id"`
	EventType  EventType     `json:"event_type"`
	Instrument string        `json:"instrument"`
	Date       time.Time     `json:"date"`
	Duration   time.Duration `json:"duration"`
	Budget     float64       `json:"budget"`
	Location   string        `json:"location"`
	Coords     Coordinates   `json:"coords,omitempty"`
}

// Window returns the event's requested time window.
func (e Event) Window() TimeWindow {
	return TimeWindow{Start: e.Date, End: e.Date.Add(e.Duration)}
}

// MusicianProfile is the slice of the musician record this engine needs.
// Read-only to this engine; identity and the rest of the profile live in the
// marketplace's document store.
type MusicianProfile struct {
	MusicianID      string   `json:"musician_id"`
	BaseRate        float64  `json:"base_rate"` // Hourly, in the marketplace currency
	ExperienceYears int      `json:"experience_years"`
	Instruments     []string `json:"instruments"`
	Location        string   `json:"location"`
}

// PlaysInstrument reports whether the profile lists the given instrument.
func (p MusicianProfile) PlaysInstrument(instrument string) bool {
	if instrument == "" {
		return true
	}
	for _, i := range p.Instruments {
		if i == instrument {
			return true
		}
	}
	return false
}
