// Package directory is the sqlite-backed projection of the marketplace's
// document store: musician profiles and open events. The engine only reads
// through the domain ports; writes come from the marketplace sync.
package directory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
)

const profileColumns = `musician_id, base_rate, experience_years, instruments, location`

const eventColumns = `id, event_type, instrument, event_date, duration_minutes, budget, location, latitude, longitude`

// Repository implements domain.MusicianDirectory and domain.EventDirectory
// over the directory database.
type Repository struct {
	directoryDB *sql.DB
	log         zerolog.Logger
}

// NewRepository creates a directory repository.
func NewRepository(directoryDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		directoryDB: directoryDB,
		log:         log.With().Str("repo", "directory").Logger(),
	}
}

// GetProfile returns the profile for a musician, or a NotFoundError.
func (r *Repository) GetProfile(musicianID string) (*domain.MusicianProfile, error) {
	row := r.directoryDB.QueryRow(
		`SELECT `+profileColumns+` FROM musician_profiles WHERE musician_id = ?`,
		musicianID,
	)

	var profile domain.MusicianProfile
	var instruments string
	err := row.Scan(
		&profile.MusicianID, &profile.BaseRate, &profile.ExperienceYears,
		&instruments, &profile.Location,
	)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("musician", musicianID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", musicianID, err)
	}

	if err := json.Unmarshal([]byte(instruments), &profile.Instruments); err != nil {
		return nil, fmt.Errorf("failed to decode instruments for %s: %w", musicianID, err)
	}

	return &profile, nil
}

// UpsertProfile writes one profile row. Called by the marketplace sync.
func (r *Repository) UpsertProfile(profile domain.MusicianProfile) error {
	instruments, err := json.Marshal(profile.Instruments)
	if err != nil {
		return fmt.Errorf("failed to encode instruments: %w", err)
	}

	_, err = r.directoryDB.Exec(
		`INSERT INTO musician_profiles (`+profileColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(musician_id) DO UPDATE SET
		     base_rate = excluded.base_rate,
		     experience_years = excluded.experience_years,
		     instruments = excluded.instruments,
		     location = excluded.location,
		     updated_at = excluded.updated_at`,
		profile.MusicianID, profile.BaseRate, profile.ExperienceYears,
		string(instruments), profile.Location,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", profile.MusicianID, err)
	}

	return nil
}

// GetEvent returns an event by id, or a NotFoundError.
func (r *Repository) GetEvent(eventID string) (*domain.Event, error) {
	row := r.directoryDB.QueryRow(
		`SELECT `+eventColumns+` FROM open_events WHERE id = ?`, eventID,
	)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("event", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", eventID, err)
	}

	return event, nil
}

// ListOpenEvents returns up to limit open events, soonest first. Events whose
// date has already passed are skipped.
func (r *Repository) ListOpenEvents(limit int) ([]domain.Event, error) {
	rows, err := r.directoryDB.Query(
		`SELECT `+eventColumns+` FROM open_events
		 WHERE event_date >= ?
		 ORDER BY event_date ASC LIMIT ?`,
		time.Now().UTC().Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// UpsertEvent writes one open event row. Called by the marketplace sync.
func (r *Repository) UpsertEvent(event domain.Event) error {
	var lat, lon interface{}
	if !event.Coords.IsZero() {
		lat, lon = event.Coords.Latitude, event.Coords.Longitude
	}

	_, err := r.directoryDB.Exec(
		`INSERT INTO open_events (`+eventColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     event_type = excluded.event_type,
		     instrument = excluded.instrument,
		     event_date = excluded.event_date,
		     duration_minutes = excluded.duration_minutes,
		     budget = excluded.budget,
		     location = excluded.location,
		     latitude = excluded.latitude,
		     longitude = excluded.longitude,
		     updated_at = excluded.updated_at`,
		event.ID, string(event.EventType), event.Instrument,
		event.Date.UTC().Format(time.RFC3339),
		int(event.Duration.Minutes()), event.Budget, event.Location,
		lat, lon,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", event.ID, err)
	}

	return nil
}

// RemoveEvent drops an event that is no longer open (booked or expired).
func (r *Repository) RemoveEvent(eventID string) error {
	_, err := r.directoryDB.Exec("DELETE FROM open_events WHERE id = ?", eventID)
	if err != nil {
		return fmt.Errorf("failed to remove event %s: %w", eventID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var event domain.Event
	var eventType, eventDate string
	var durationMinutes int
	var lat, lon sql.NullFloat64

	err := row.Scan(
		&event.ID, &eventType, &event.Instrument, &eventDate,
		&durationMinutes, &event.Budget, &event.Location, &lat, &lon,
	)
	if err != nil {
		return nil, err
	}

	event.EventType = domain.EventType(eventType)
	event.Duration = time.Duration(durationMinutes) * time.Minute
	event.Date, err = time.Parse(time.RFC3339, eventDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event date: %w", err)
	}
	if lat.Valid && lon.Valid {
		event.Coords = domain.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}

	return &event, nil
}
