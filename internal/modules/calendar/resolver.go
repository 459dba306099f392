package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/events"
)

const (
	// DayOpenHour / DayCloseHour bound the day window that free slots are
	// computed within. Bookings outside the window still count as busy; the
	// engine just never proposes slots outside it.
	DayOpenHour  = 8
	DayCloseHour = 22

	// fetchBuffer widens the entry fetch around the requested window so
	// bookings straddling midnight are not missed.
	fetchBuffer = 24 * time.Hour

	// MinSlotDuration floors degenerate requests when proposing slots.
	MinSlotDuration = 30 * time.Minute
)

// RepositoryInterface defines the storage contract for the resolver
// Used to enable testing with mocks
type RepositoryInterface interface {
	GetConfirmedOverlapping(musicianID string, window domain.TimeWindow) ([]Entry, error)
	GetByMusician(musicianID string, window domain.TimeWindow) ([]Entry, error)
	GetByID(id string) (*Entry, error)
	InsertChecked(ctx context.Context, entry Entry) error
	Delete(id string) (bool, error)
}

// EventEmitter is the slice of the event manager the resolver needs
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Resolver answers interval-overlap questions and proposes free slots.
// Read paths take no locks: a stale read only means a caller may see a slot
// as free when it was booked moments earlier, which the insert-time guard in
// the repository resolves by rejecting that insert.
type Resolver struct {
	repo    RepositoryInterface
	emitter EventEmitter // Optional; nil disables event emission
	log     zerolog.Logger
}

// NewResolver creates a new conflict resolver
func NewResolver(repo RepositoryInterface, emitter EventEmitter, log zerolog.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		emitter: emitter,
		log:     log.With().Str("component", "conflict_resolver").Logger(),
	}
}

// CheckConflicts reports whether [start, end) collides with a confirmed
// booking, and proposes alternatives. A detected conflict is a normal
// result, never an error.
func (r *Resolver) CheckConflicts(musicianID string, window domain.TimeWindow, location string) (*ConflictCheckResult, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}
	if !window.IsValid() {
		return nil, domain.NewValidationError("window", "start must be before end")
	}

	duration := window.Duration()
	if duration < MinSlotDuration {
		duration = MinSlotDuration
	}

	// Fetch everything intersecting the requested day plus a buffer, wide
	// enough to contain [start, end) and the slot-scan day window.
	fetchWindow := domain.TimeWindow{
		Start: window.Start.Add(-fetchBuffer),
		End:   window.End.Add(fetchBuffer),
	}
	entries, err := r.repo.GetConfirmedOverlapping(musicianID, fetchWindow)
	if err != nil {
		return nil, domain.NewDependencyError("calendar store", err)
	}

	result := &ConflictCheckResult{Conflicts: []Entry{}}
	for _, entry := range entries {
		if entry.Window().Overlaps(window) {
			result.Conflicts = append(result.Conflicts, entry)
		}
	}
	result.HasConflict = len(result.Conflicts) > 0

	result.AvailableSlots = freeSlots(entries, window.Start, duration)

	if len(result.AvailableSlots) > 0 {
		recommended := result.AvailableSlots[0].Start
		result.RecommendedTime = &recommended
	} else {
		// Nothing fits today: propose the next calendar day's opening slot
		nextOpen := dayOpen(window.Start.AddDate(0, 0, 1))
		result.RecommendedTime = &nextOpen
	}

	return result, nil
}

// CheckMultipleMusiciansAvailability partitions musician ids by whether they
// are free in [start, end). Same overlap test as CheckConflicts but with no
// slot computation - the cheaper path for candidate filtering.
func (r *Resolver) CheckMultipleMusiciansAvailability(musicianIDs []string, window domain.TimeWindow) (*AvailabilityPartition, error) {
	if !window.IsValid() {
		return nil, domain.NewValidationError("window", "start must be before end")
	}

	partition := &AvailabilityPartition{
		AvailableMusicians:   []string{},
		UnavailableMusicians: []string{},
	}

	for _, id := range musicianIDs {
		overlapping, err := r.repo.GetConfirmedOverlapping(id, window)
		if err != nil {
			return nil, domain.NewDependencyError("calendar store", err)
		}
		if len(overlapping) > 0 {
			partition.UnavailableMusicians = append(partition.UnavailableMusicians, id)
		} else {
			partition.AvailableMusicians = append(partition.AvailableMusicians, id)
		}
	}

	return partition, nil
}

// AddEvent books an interval. The overlap re-check happens inside the
// repository's immediate transaction immediately before insert, so of two
// near-simultaneous accepts for the same musician/window at most one
// succeeds; the loser receives a ConflictError.
func (r *Resolver) AddEvent(ctx context.Context, entry Entry) (*Entry, error) {
	if entry.MusicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}
	if entry.EventID == "" {
		return nil, domain.NewValidationError("eventId", "must not be empty")
	}
	if !entry.Window().IsValid() {
		return nil, domain.NewValidationError("window", "start must be before end")
	}
	if entry.Status == "" {
		entry.Status = StatusConfirmed
	}
	if entry.Status != StatusConfirmed && entry.Status != StatusTentative {
		return nil, domain.NewValidationError("status", "must be confirmed or tentative")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if err := r.repo.InsertChecked(ctx, entry); err != nil {
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, domain.NewDependencyError("calendar store", err)
	}

	r.log.Info().
		Str("entry_id", entry.ID).
		Str("musician_id", entry.MusicianID).
		Time("start", entry.StartTime).
		Time("end", entry.EndTime).
		Msg("Calendar entry added")

	if r.emitter != nil {
		r.emitter.EmitTyped(events.BookingConfirmed, "calendar", &events.BookingConfirmedData{
			EntryID:    entry.ID,
			MusicianID: entry.MusicianID,
			EventID:    entry.EventID,
			Start:      entry.StartTime.UTC().Format(time.RFC3339),
			End:        entry.EndTime.UTC().Format(time.RFC3339),
		})
	}

	return &entry, nil
}

// RemoveEvent deletes an entry. Idempotent: removing a nonexistent id is not
// an error.
func (r *Resolver) RemoveEvent(id string) error {
	if id == "" {
		return domain.NewValidationError("id", "must not be empty")
	}

	entry, err := r.repo.GetByID(id)
	if err != nil {
		return domain.NewDependencyError("calendar store", err)
	}

	removed, err := r.repo.Delete(id)
	if err != nil {
		return domain.NewDependencyError("calendar store", err)
	}

	if removed && entry != nil && r.emitter != nil {
		r.emitter.EmitTyped(events.BookingCancelled, "calendar", &events.BookingCancelledData{
			EntryID:    id,
			MusicianID: entry.MusicianID,
		})
	}

	return nil
}

// GetMusicianEvents returns entries intersecting [start, end) for rendering
// a musician's calendar. Read-only.
func (r *Resolver) GetMusicianEvents(musicianID string, window domain.TimeWindow) ([]Entry, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}
	if !window.IsValid() {
		return nil, domain.NewValidationError("window", "start must be before end")
	}

	entries, err := r.repo.GetByMusician(musicianID, window)
	if err != nil {
		return nil, domain.NewDependencyError("calendar store", err)
	}
	if entries == nil {
		entries = []Entry{}
	}

	return entries, nil
}

// GetDailyAvailability projects one calendar day: busy entries plus the free
// slots between them. Read-only.
func (r *Resolver) GetDailyAvailability(musicianID string, date time.Time) (*DailyAvailability, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}

	open := dayOpen(date)
	window := domain.TimeWindow{Start: open, End: dayClose(date)}

	entries, err := r.repo.GetConfirmedOverlapping(musicianID, window)
	if err != nil {
		return nil, domain.NewDependencyError("calendar store", err)
	}
	if entries == nil {
		entries = []Entry{}
	}

	return &DailyAvailability{
		Date:      open,
		Busy:      entries,
		FreeSlots: freeSlots(entries, date, MinSlotDuration),
	}, nil
}

// freeSlots computes the gaps within the bounded day window of `day` that are
// at least minDuration long, given the confirmed busy entries.
func freeSlots(busy []Entry, day time.Time, minDuration time.Duration) []domain.TimeWindow {
	open := dayOpen(day)
	close := dayClose(day)

	// Clip busy intervals to the day window and sort by start
	var intervals []domain.TimeWindow
	for _, entry := range busy {
		w := entry.Window()
		if !w.Overlaps(domain.TimeWindow{Start: open, End: close}) {
			continue
		}
		if w.Start.Before(open) {
			w.Start = open
		}
		if w.End.After(close) {
			w.End = close
		}
		intervals = append(intervals, w)
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})

	slots := []domain.TimeWindow{}
	cursor := open
	for _, iv := range intervals {
		if iv.Start.After(cursor) && iv.Start.Sub(cursor) >= minDuration {
			slots = append(slots, domain.TimeWindow{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if close.After(cursor) && close.Sub(cursor) >= minDuration {
		slots = append(slots, domain.TimeWindow{Start: cursor, End: close})
	}

	return slots
}

// dayOpen returns the day window opening time on the given calendar day.
func dayOpen(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), DayOpenHour, 0, 0, 0, t.Location())
}

// dayClose returns the day window closing time on the given calendar day.
func dayClose(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), DayCloseHour, 0, 0, 0, t.Location())
}
