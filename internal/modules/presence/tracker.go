package presence

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/events"
)

// RepositoryInterface defines the storage contract for the tracker
// Used to enable testing with mocks
type RepositoryInterface interface {
	Get(musicianID string) (*MusicianPresence, error)
	Upsert(p *MusicianPresence) error
	GetAllOnlineFlagged() ([]MusicianPresence, error)
}

// EventEmitter is the slice of the event manager the tracker needs
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Tracker maintains each musician's online/availability state from periodic
// heartbeats. All reads derive online state through the shared staleness
// predicate; stale rows are never returned as online and never flipped in
// storage by a read.
type Tracker struct {
	repo    RepositoryInterface
	ttl     time.Duration
	emitter EventEmitter // Optional; nil disables event emission
	now     func() time.Time
	log     zerolog.Logger
}

// NewTracker creates a new presence tracker
func NewTracker(repo RepositoryInterface, ttl time.Duration, emitter EventEmitter, log zerolog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		repo:    repo,
		ttl:     ttl,
		emitter: emitter,
		now:     time.Now,
		log:     log.With().Str("component", "presence_tracker").Logger(),
	}
}

// SetClock overrides the time source. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// TTL returns the configured staleness threshold.
func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

// Heartbeat upserts lastHeartbeatAt = now and isOnline = true, merging the
// location if one is given. Idempotent; concurrent heartbeats from the same
// musician are last-write-wins.
func (t *Tracker) Heartbeat(musicianID string, location *domain.Coordinates) (*MusicianPresence, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}

	now := t.now().UTC()

	stored, err := t.repo.Get(musicianID)
	if err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}

	wasOnline := false
	if stored == nil {
		stored = &MusicianPresence{
			MusicianID:   musicianID,
			Availability: Availability{IsAvailable: true},
		}
	} else {
		wasOnline = DerivedOnline(stored, now, t.ttl)
	}

	stored.IsOnline = true
	stored.LastHeartbeatAt = now
	if location != nil {
		stored.CurrentLocation = location
	}

	if err := t.repo.Upsert(stored); err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}

	if !wasOnline && t.emitter != nil {
		t.emitter.EmitTyped(events.PresenceChanged, "presence", &events.PresenceChangedData{
			MusicianID: musicianID,
			IsOnline:   true,
		})
	}

	return stored, nil
}

// UpdateStatus applies an explicit state change (musician manually goes
// offline, or becomes busy after accepting a job). Nil fields are untouched.
func (t *Tracker) UpdateStatus(musicianID string, update StatusUpdate) (*MusicianPresence, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}

	now := t.now().UTC()

	stored, err := t.repo.Get(musicianID)
	if err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}
	if stored == nil {
		return nil, domain.NewNotFoundError("musician presence", musicianID)
	}

	wasOnline := DerivedOnline(stored, now, t.ttl)

	if update.IsOnline != nil {
		stored.IsOnline = *update.IsOnline
		if *update.IsOnline {
			// An explicit "I am online" counts as liveness
			stored.LastHeartbeatAt = now
		}
	}
	if update.Availability != nil {
		stored.Availability = *update.Availability
	}
	if update.CurrentLocation != nil {
		stored.CurrentLocation = update.CurrentLocation
	}
	if update.Instruments != nil {
		stored.Instruments = update.Instruments
	}
	if update.EventTypes != nil {
		stored.EventTypes = update.EventTypes
	}
	if update.HourlyRate != nil {
		stored.HourlyRate = *update.HourlyRate
	}
	if update.Location != nil {
		stored.Location = *update.Location
	}

	if err := t.repo.Upsert(stored); err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}

	nowOnline := DerivedOnline(stored, now, t.ttl)
	if nowOnline != wasOnline && t.emitter != nil {
		t.emitter.EmitTyped(events.PresenceChanged, "presence", &events.PresenceChangedData{
			MusicianID: musicianID,
			IsOnline:   nowOnline,
		})
	}

	return stored, nil
}

// GetStatus returns the stored snapshot with the DERIVED online state: if the
// last heartbeat is older than the TTL the musician is reported offline
// regardless of the stored flag. The read never mutates storage.
func (t *Tracker) GetStatus(musicianID string) (*MusicianPresence, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}

	stored, err := t.repo.Get(musicianID)
	if err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}
	if stored == nil {
		return nil, domain.NewNotFoundError("musician presence", musicianID)
	}

	// Derived view only - the stored flag stays as written
	snapshot := *stored
	snapshot.IsOnline = DerivedOnline(stored, t.now().UTC(), t.ttl)

	return &snapshot, nil
}

// GetOnlineMusicians returns all presences passing the staleness check and
// matching the filters. Staleness is applied BEFORE filters so stale rows
// never leak into results.
func (t *Tracker) GetOnlineMusicians(filters Filters) ([]MusicianPresence, error) {
	flagged, err := t.repo.GetAllOnlineFlagged()
	if err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}

	now := t.now().UTC()

	online := make([]MusicianPresence, 0, len(flagged))
	for _, p := range flagged {
		if IsStale(p.LastHeartbeatAt, now, t.ttl) {
			continue
		}
		online = append(online, p)
	}

	result := make([]MusicianPresence, 0, len(online))
	for _, p := range online {
		if !matchesFilters(&p, filters) {
			continue
		}
		result = append(result, p)
	}

	t.log.Debug().
		Int("flagged", len(flagged)).
		Int("online", len(online)).
		Int("matched", len(result)).
		Msg("Online musicians fetched")

	return result, nil
}

// UpdatePerformance merges completed-event counters after an event closes.
// Rating is externally sourced and not recomputed here.
func (t *Tracker) UpdatePerformance(musicianID string, delta PerformanceDelta) (*MusicianPresence, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}

	stored, err := t.repo.Get(musicianID)
	if err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}
	if stored == nil {
		return nil, domain.NewNotFoundError("musician presence", musicianID)
	}

	stored.Performance.TotalEvents += delta.TotalEvents
	stored.Performance.CompletedEvents += delta.CompletedEvents
	if delta.AverageResponseTimeSecs != nil {
		stored.Performance.AverageResponseTimeSecs = *delta.AverageResponseTimeSecs
	}

	if err := t.repo.Upsert(stored); err != nil {
		return nil, domain.NewDependencyError("presence store", err)
	}

	return stored, nil
}

// matchesFilters applies search filters to a live presence row
func matchesFilters(p *MusicianPresence, f Filters) bool {
	if !p.Availability.IsAvailable {
		return false
	}

	if f.Instrument != "" && !containsString(p.Instruments, f.Instrument) {
		return false
	}

	if f.EventType != "" && len(p.EventTypes) > 0 &&
		!containsString(p.EventTypes, string(f.EventType)) {
		return false
	}

	if f.BudgetMax > 0 && p.HourlyRate > f.BudgetMax {
		return false
	}
	if f.BudgetMin > 0 && p.HourlyRate > 0 && p.HourlyRate < f.BudgetMin {
		return false
	}

	// Radius filter needs coordinates on both sides; fall back to the
	// location label when either side has none.
	if f.Coords != nil && f.RadiusKM > 0 {
		if p.CurrentLocation == nil {
			return f.Location == "" || p.Location == f.Location
		}
		if haversineKM(*f.Coords, *p.CurrentLocation) > f.RadiusKM {
			return false
		}
	} else if f.Location != "" && p.Location != f.Location {
		return false
	}

	return true
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// haversineKM returns the great-circle distance between two points
func haversineKM(a, b domain.Coordinates) float64 {
	const earthRadiusKM = 6371.0

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
