package presence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
)

// presenceColumns is the list of columns for the musician_presence table.
// Used to avoid SELECT * which can break when schema changes.
const presenceColumns = `musician_id, is_online, last_heartbeat_at, latitude, longitude,
is_available, available_from, available_to,
rating, total_events, completed_events, avg_response_time_seconds,
instruments, event_types, hourly_rate, location`

// Repository handles presence database operations
type Repository struct {
	presenceDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new presence repository
func NewRepository(presenceDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		presenceDB: presenceDB,
		log:        log.With().Str("repo", "presence").Logger(),
	}
}

// Get returns the stored presence snapshot for a musician, or nil if none exists
func (r *Repository) Get(musicianID string) (*MusicianPresence, error) {
	query := "SELECT " + presenceColumns + " FROM musician_presence WHERE musician_id = ?"

	rows, err := r.presenceDB.Query(query, strings.TrimSpace(musicianID))
	if err != nil {
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil // No presence recorded yet
	}

	p, err := scanPresence(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan presence: %w", err)
	}

	return &p, nil
}

// Upsert writes the full presence row, last-write-wins. Each musician only
// writes their own row, so no cross-musician coordination is needed.
func (r *Repository) Upsert(p *MusicianPresence) error {
	instruments, err := json.Marshal(p.Instruments)
	if err != nil {
		return fmt.Errorf("failed to encode instruments: %w", err)
	}
	eventTypes, err := json.Marshal(p.EventTypes)
	if err != nil {
		return fmt.Errorf("failed to encode event types: %w", err)
	}

	var lat, lon interface{}
	if p.CurrentLocation != nil {
		lat = p.CurrentLocation.Latitude
		lon = p.CurrentLocation.Longitude
	}

	var availFrom, availTo interface{}
	if p.Availability.AvailableFrom != nil {
		availFrom = p.Availability.AvailableFrom.UTC().Format(time.RFC3339)
	}
	if p.Availability.AvailableTo != nil {
		availTo = p.Availability.AvailableTo.UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO musician_presence (` + presenceColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(musician_id) DO UPDATE SET
			is_online = excluded.is_online,
			last_heartbeat_at = excluded.last_heartbeat_at,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			is_available = excluded.is_available,
			available_from = excluded.available_from,
			available_to = excluded.available_to,
			rating = excluded.rating,
			total_events = excluded.total_events,
			completed_events = excluded.completed_events,
			avg_response_time_seconds = excluded.avg_response_time_seconds,
			instruments = excluded.instruments,
			event_types = excluded.event_types,
			hourly_rate = excluded.hourly_rate,
			location = excluded.location,
			updated_at = datetime('now')`

	_, err = r.presenceDB.Exec(query,
		p.MusicianID,
		boolToInt(p.IsOnline),
		p.LastHeartbeatAt.UTC().Format(time.RFC3339),
		lat, lon,
		boolToInt(p.Availability.IsAvailable),
		availFrom, availTo,
		p.Performance.Rating,
		p.Performance.TotalEvents,
		p.Performance.CompletedEvents,
		p.Performance.AverageResponseTimeSecs,
		string(instruments),
		string(eventTypes),
		p.HourlyRate,
		p.Location,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence for %s: %w", p.MusicianID, err)
	}

	return nil
}

// GetAllOnlineFlagged returns all rows whose stored flag says online.
// Staleness is NOT applied here; the tracker derives it at read time so the
// predicate lives in exactly one place.
func (r *Repository) GetAllOnlineFlagged() ([]MusicianPresence, error) {
	query := "SELECT " + presenceColumns + " FROM musician_presence WHERE is_online = 1"

	rows, err := r.presenceDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query online presences: %w", err)
	}
	defer rows.Close()

	var presences []MusicianPresence
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan presence row: %w", err)
		}
		presences = append(presences, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating presence rows: %w", err)
	}

	return presences, nil
}

// CountOnlineFlagged returns the number of rows whose stored flag says online.
// Used by the census maintenance job.
func (r *Repository) CountOnlineFlagged() (int, error) {
	var count int
	err := r.presenceDB.QueryRow("SELECT COUNT(*) FROM musician_presence WHERE is_online = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count online presences: %w", err)
	}
	return count, nil
}

// scanPresence reads one presence row. Works for both Query and QueryRow paths.
func scanPresence(rows *sql.Rows) (MusicianPresence, error) {
	var p MusicianPresence
	var isOnline, isAvailable int
	var lastHeartbeat string
	var lat, lon sql.NullFloat64
	var availFrom, availTo sql.NullString
	var instruments, eventTypes string

	err := rows.Scan(
		&p.MusicianID,
		&isOnline,
		&lastHeartbeat,
		&lat, &lon,
		&isAvailable,
		&availFrom, &availTo,
		&p.Performance.Rating,
		&p.Performance.TotalEvents,
		&p.Performance.CompletedEvents,
		&p.Performance.AverageResponseTimeSecs,
		&instruments,
		&eventTypes,
		&p.HourlyRate,
		&p.Location,
	)
	if err != nil {
		return p, err
	}

	p.IsOnline = isOnline != 0
	p.Availability.IsAvailable = isAvailable != 0

	if p.LastHeartbeatAt, err = time.Parse(time.RFC3339, lastHeartbeat); err != nil {
		return p, fmt.Errorf("invalid last_heartbeat_at %q: %w", lastHeartbeat, err)
	}

	if lat.Valid && lon.Valid {
		p.CurrentLocation = &domain.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}

	if availFrom.Valid {
		if t, err := time.Parse(time.RFC3339, availFrom.String); err == nil {
			p.Availability.AvailableFrom = &t
		}
	}
	if availTo.Valid {
		if t, err := time.Parse(time.RFC3339, availTo.String); err == nil {
			p.Availability.AvailableTo = &t
		}
	}

	if err := json.Unmarshal([]byte(instruments), &p.Instruments); err != nil {
		return p, fmt.Errorf("invalid instruments JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(eventTypes), &p.EventTypes); err != nil {
		return p, fmt.Errorf("invalid event_types JSON: %w", err)
	}

	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
