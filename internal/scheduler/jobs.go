package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/database"
	"github.com/stagefinder/stagefinder/internal/events"
	"github.com/stagefinder/stagefinder/internal/modules/matching"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
	"github.com/stagefinder/stagefinder/internal/reliability"
)

// Raw market observations older than this no longer influence quartiles
// and only take up space.
const marketObservationRetention = 90 * 24 * time.Hour

// WALCheckpointJob truncates WAL files across all databases to prevent bloat
type WALCheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates a WAL checkpoint job
func NewWALCheckpointJob(databases []*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checkpoints every database; a single failure does not stop the others
func (j *WALCheckpointJob) Run() error {
	var firstErr error
	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PresenceCensusJob counts online musicians and reports the census on the
// event bus. Since staleness is evaluated lazily at read time, the census
// also serves as the periodic sweep that surfaces expired heartbeats in logs.
type PresenceCensusJob struct {
	tracker *presence.Tracker
	emitter *events.Manager
	log     zerolog.Logger
}

// NewPresenceCensusJob creates a presence census job
func NewPresenceCensusJob(tracker *presence.Tracker, emitter *events.Manager, log zerolog.Logger) *PresenceCensusJob {
	return &PresenceCensusJob{
		tracker: tracker,
		emitter: emitter,
		log:     log.With().Str("job", "presence_census").Logger(),
	}
}

// Name returns the job name
func (j *PresenceCensusJob) Name() string {
	return "presence_census"
}

// Run counts currently-online musicians
func (j *PresenceCensusJob) Run() error {
	online, err := j.tracker.GetOnlineMusicians(presence.Filters{})
	if err != nil {
		return fmt.Errorf("failed to count online musicians: %w", err)
	}

	j.log.Info().Int("online", len(online)).Msg("Presence census")

	j.emitter.Emit(events.MaintenanceCompleted, "scheduler", map[string]interface{}{
		"job":    j.Name(),
		"online": len(online),
	})
	return nil
}

// BackupJob runs the nightly database backup
type BackupJob struct {
	service *reliability.BackupService
	emitter *events.Manager
	log     zerolog.Logger
}

// NewBackupJob creates a backup job
func NewBackupJob(service *reliability.BackupService, emitter *events.Manager, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		emitter: emitter,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates a backup archive
func (j *BackupJob) Run() error {
	manifest, err := j.service.Run(context.Background())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	j.emitter.Emit(events.MaintenanceCompleted, "scheduler", map[string]interface{}{
		"job":      j.Name(),
		"archive":  manifest.Archive,
		"uploaded": manifest.Uploaded,
	})
	return nil
}

// MarketPruneJob deletes raw market observations past the retention window
type MarketPruneJob struct {
	repo *rates.MarketRepository
	log  zerolog.Logger
}

// NewMarketPruneJob creates a market observation pruning job
func NewMarketPruneJob(repo *rates.MarketRepository, log zerolog.Logger) *MarketPruneJob {
	return &MarketPruneJob{
		repo: repo,
		log:  log.With().Str("job", "market_prune").Logger(),
	}
}

// Name returns the job name
func (j *MarketPruneJob) Name() string {
	return "market_prune"
}

// Run prunes old observations; aggregates are untouched
func (j *MarketPruneJob) Run() error {
	cutoff := time.Now().UTC().Add(-marketObservationRetention)

	pruned, err := j.repo.PruneObservations(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune market observations: %w", err)
	}

	if pruned > 0 {
		j.log.Info().Int64("pruned", pruned).Msg("Market observations pruned")
	}
	return nil
}

// CacheSweepJob removes expired search results from the cache database
type CacheSweepJob struct {
	cache *matching.SearchCache
	log   zerolog.Logger
}

// NewCacheSweepJob creates a search cache sweep job
func NewCacheSweepJob(cache *matching.SearchCache, log zerolog.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		cache: cache,
		log:   log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

// Run purges expired cache rows
func (j *CacheSweepJob) Run() error {
	purged, err := j.cache.PurgeExpired()
	if err != nil {
		return fmt.Errorf("failed to purge search cache: %w", err)
	}

	if purged > 0 {
		j.log.Debug().Int64("purged", purged).Msg("Search cache swept")
	}
	return nil
}
