package rates

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// marketColumns is the canonical market_data column list.
const marketColumns = `instrument, location, event_type, aggregate_rate, sample_count, last_updated_at`

// MarketRepository owns the market database: rolling aggregates plus the raw
// observation trail they derive from.
type MarketRepository struct {
	marketDB *sql.DB
	log      zerolog.Logger
}

// NewMarketRepository creates a market data repository.
func NewMarketRepository(marketDB *sql.DB, log zerolog.Logger) *MarketRepository {
	return &MarketRepository{
		marketDB: marketDB,
		log:      log.With().Str("repo", "market").Logger(),
	}
}

// Get returns the aggregate for one key, or nil if no observation has ever
// been recorded for it.
func (r *MarketRepository) Get(instrument, location, eventType string) (*MarketDataPoint, error) {
	row := r.marketDB.QueryRow(
		`SELECT `+marketColumns+` FROM market_data
		 WHERE instrument = ? AND location = ? AND event_type = ?`,
		instrument, location, eventType,
	)

	var point MarketDataPoint
	var updatedAt string
	err := row.Scan(
		&point.Instrument, &point.Location, &point.EventType,
		&point.AggregateRate, &point.SampleCount, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market data: %w", err)
	}

	point.LastUpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse market data timestamp: %w", err)
	}

	return &point, nil
}

// RecordObservation merges one observed rate into the aggregate with a
// running average:
//
//	newAvg = (oldAvg * n + observed) / (n + 1)
//
// and appends the raw observation for later quantile analysis. Losing one
// merge under contention is acceptable; observations are the durable trail.
func (r *MarketRepository) RecordObservation(instrument, location, eventType string, observedRate float64) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.marketDB.Exec(
		`INSERT INTO market_data (`+marketColumns+`)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(instrument, location, event_type) DO UPDATE SET
		     aggregate_rate = (aggregate_rate * sample_count + excluded.aggregate_rate) / (sample_count + 1),
		     sample_count = sample_count + 1,
		     last_updated_at = excluded.last_updated_at`,
		instrument, location, eventType, observedRate, now,
	)
	if err != nil {
		return fmt.Errorf("failed to merge market observation: %w", err)
	}

	_, err = r.marketDB.Exec(
		`INSERT INTO market_observations (instrument, location, event_type, observed_rate, observed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		instrument, location, eventType, observedRate, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append market observation: %w", err)
	}

	return nil
}

// RecentObservations returns up to limit observed rates for a key, most
// recent first. Used for quantile-based recommendations.
func (r *MarketRepository) RecentObservations(instrument, location, eventType string, limit int) ([]float64, error) {
	rows, err := r.marketDB.Query(
		`SELECT observed_rate FROM market_observations
		 WHERE instrument = ? AND location = ? AND event_type = ?
		 ORDER BY observed_at DESC LIMIT ?`,
		instrument, location, eventType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var rates []float64
	for rows.Next() {
		var rate float64
		if err := rows.Scan(&rate); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		rates = append(rates, rate)
	}

	return rates, rows.Err()
}

// PruneObservations deletes observations older than the cutoff. The
// aggregates they fed are kept. Returns the number of rows removed.
func (r *MarketRepository) PruneObservations(olderThan time.Time) (int64, error) {
	result, err := r.marketDB.Exec(
		"DELETE FROM market_observations WHERE observed_at < ?",
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune observations: %w", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune result: %w", err)
	}

	if pruned > 0 {
		r.log.Info().Int64("pruned", pruned).Msg("Pruned market observations")
	}

	return pruned, nil
}
