package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/database"
	"github.com/stagefinder/stagefinder/internal/domain"
)

// entryColumns is the list of columns for the calendar_entries table.
// Used to avoid SELECT * which can break when schema changes.
const entryColumns = `id, musician_id, event_id, start_time, end_time, location, status`

// Times are stored as RFC3339 UTC strings; fixed-width, so lexicographic
// comparison in SQL matches chronological order.
const timeLayout = time.RFC3339

// Repository handles calendar database operations
type Repository struct {
	calendarDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new calendar repository
func NewRepository(calendarDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		calendarDB: calendarDB,
		log:        log.With().Str("repo", "calendar").Logger(),
	}
}

// GetConfirmedOverlapping returns confirmed entries for a musician whose
// interval intersects [start, end). The overlap test is
// entryStart < end && start < entryEnd on half-open intervals.
func (r *Repository) GetConfirmedOverlapping(musicianID string, window domain.TimeWindow) ([]Entry, error) {
	query := "SELECT " + entryColumns + ` FROM calendar_entries
		WHERE musician_id = ? AND status = ?
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time`

	rows, err := r.calendarDB.Query(query,
		musicianID, string(StatusConfirmed),
		window.End.UTC().Format(timeLayout),
		window.Start.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetByMusician returns all entries (any status) for a musician intersecting
// [start, end), ordered by start time.
func (r *Repository) GetByMusician(musicianID string, window domain.TimeWindow) ([]Entry, error) {
	query := "SELECT " + entryColumns + ` FROM calendar_entries
		WHERE musician_id = ?
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time`

	rows, err := r.calendarDB.Query(query,
		musicianID,
		window.End.UTC().Format(timeLayout),
		window.Start.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query musician entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetByID returns a single entry, or nil if it does not exist
func (r *Repository) GetByID(id string) (*Entry, error) {
	query := "SELECT " + entryColumns + " FROM calendar_entries WHERE id = ?"

	rows, err := r.calendarDB.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	entry, err := scanEntry(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	return &entry, nil
}

// InsertChecked inserts a confirmed entry only if no confirmed overlap exists
// at insert time. The check and the insert run inside one BEGIN IMMEDIATE
// transaction, so two near-simultaneous accepts for the same musician/window
// cannot both pass the check: exactly one wins, the other gets a
// ConflictError. This is the guard a naive check-then-insert lacks.
//
// Tentative entries skip the overlap check: they do not participate in the
// invariant.
func (r *Repository) InsertChecked(ctx context.Context, entry Entry) error {
	return database.WithImmediateTransaction(ctx, r.calendarDB, func(conn *sql.Conn) error {
		if entry.Status == StatusConfirmed {
			var overlaps int
			err := conn.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM calendar_entries
				 WHERE musician_id = ? AND status = ?
				   AND start_time < ? AND end_time > ?`,
				entry.MusicianID, string(StatusConfirmed),
				entry.EndTime.UTC().Format(timeLayout),
				entry.StartTime.UTC().Format(timeLayout),
			).Scan(&overlaps)
			if err != nil {
				return fmt.Errorf("failed overlap re-check: %w", err)
			}

			if overlaps > 0 {
				return domain.NewConflictError(entry.MusicianID, entry.Window())
			}
		}

		_, err := conn.ExecContext(ctx,
			`INSERT INTO calendar_entries (`+entryColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.MusicianID,
			entry.EventID,
			entry.StartTime.UTC().Format(timeLayout),
			entry.EndTime.UTC().Format(timeLayout),
			entry.Location,
			string(entry.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}

		return nil
	})
}

// Delete removes an entry by id. Idempotent: deleting a nonexistent id is not
// an error. Returns whether a row was actually removed.
func (r *Repository) Delete(id string) (bool, error) {
	result, err := r.calendarDB.Exec("DELETE FROM calendar_entries WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return affected > 0, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating entry rows: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var start, end, status string

	if err := rows.Scan(&e.ID, &e.MusicianID, &e.EventID, &start, &end, &e.Location, &status); err != nil {
		return e, err
	}

	var err error
	if e.StartTime, err = time.Parse(timeLayout, start); err != nil {
		return e, fmt.Errorf("invalid start_time %q: %w", start, err)
	}
	if e.EndTime, err = time.Parse(timeLayout, end); err != nil {
		return e, fmt.Errorf("invalid end_time %q: %w", end, err)
	}
	e.Status = EntryStatus(status)

	return e, nil
}
