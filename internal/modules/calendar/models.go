// Package calendar holds booked time intervals per musician and answers
// interval-overlap questions. All intervals are half-open [start, end).
package calendar

import (
	"time"

	"github.com/stagefinder/stagefinder/internal/domain"
)

// EntryStatus is the booking state of a calendar entry
type EntryStatus string

const (
	// StatusConfirmed entries participate in the no-overlap invariant
	StatusConfirmed EntryStatus = "confirmed"
	// StatusTentative entries are held but do not block other bookings
	StatusTentative EntryStatus = "tentative"
)

// Entry is one booked interval on a musician's calendar. Created when a
// booking is accepted, deleted on cancellation or completion.
type Entry struct {
	ID         string      `json:"id"`
	MusicianID string      `json:"musician_id"`
	EventID    string      `json:"event_id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Location   string      `json:"location"`
	Status     EntryStatus `json:"status"`
}

// Window returns the entry's interval.
func (e Entry) Window() domain.TimeWindow {
	return domain.TimeWindow{Start: e.StartTime, End: e.EndTime}
}

// ConflictCheckResult is the answer to a CheckConflicts question.
// A detected conflict is a normal result, never an error.
type ConflictCheckResult struct {
	HasConflict     bool                `json:"has_conflict"`
	Conflicts       []Entry             `json:"conflicts"`
	AvailableSlots  []domain.TimeWindow `json:"available_slots"`
	RecommendedTime *time.Time          `json:"recommended_time,omitempty"`
}

// AvailabilityPartition partitions musician ids by whether they are free in a
// window. The cheap path: the overlap test only, no slot computation.
type AvailabilityPartition struct {
	AvailableMusicians   []string `json:"available_musicians"`
	UnavailableMusicians []string `json:"unavailable_musicians"`
}

// DailyAvailability is a read-only projection used by clients to render a
// single calendar day.
type DailyAvailability struct {
	Date      time.Time           `json:"date"`
	Busy      []Entry             `json:"busy"`
	FreeSlots []domain.TimeWindow `json:"free_slots"`
}
