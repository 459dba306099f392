package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/config"
	"github.com/stagefinder/stagefinder/internal/events"
	"github.com/stagefinder/stagefinder/internal/modules/calendar"
	"github.com/stagefinder/stagefinder/internal/modules/directory"
	"github.com/stagefinder/stagefinder/internal/modules/matching"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
	"github.com/stagefinder/stagefinder/internal/reliability"
)

// InitializeServices builds the event bus, repositories and services.
// Construction order follows the dependency graph: events, repositories,
// domain services, then the matching orchestrator on top.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	// Event bus first; every service that reports state changes needs it
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	// Repositories
	container.PresenceRepo = presence.NewRepository(container.PresenceDB.Conn(), log)
	container.CalendarRepo = calendar.NewRepository(container.CalendarDB.Conn(), log)
	container.MarketRepo = rates.NewMarketRepository(container.MarketDB.Conn(), log)
	container.DirectoryRepo = directory.NewRepository(container.DirectoryDB.Conn(), log)

	// Domain services
	container.PresenceTracker = presence.NewTracker(
		container.PresenceRepo,
		cfg.PresenceTTL,
		container.EventManager,
		log,
	)

	container.ConflictResolver = calendar.NewResolver(
		container.CalendarRepo,
		container.EventManager,
		log,
	)

	container.RateEngine = rates.NewEngine(
		container.DirectoryRepo,
		container.MarketRepo,
		container.EventManager,
		log,
	)

	// Matching sits on top of everything else
	container.Ranker = matching.NewRanker()
	container.SearchCache = matching.NewSearchCache(container.CacheDB.Conn(), cfg.SearchCacheTTL, log)

	container.Orchestrator = matching.NewOrchestrator(
		container.PresenceTracker,
		container.ConflictResolver,
		container.RateEngine,
		container.Ranker,
		container.DirectoryRepo,
		container.SearchCache,
		container.EventManager,
		matching.Config{
			Concurrency: cfg.MatchConcurrency,
			RateTimeout: cfg.RateCallTimeout,
		},
		log,
	)

	// Backups; the S3 mirror is optional
	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize s3 client: %w", err)
		}
		container.S3Client = s3Client
	} else {
		log.Info().Msg("Cloud backup not configured, keeping local backups only")
	}

	container.BackupService = reliability.NewBackupService(
		container.Databases(),
		cfg.DataDir,
		container.S3Client,
		cfg.Backup.RetentionDays,
		log,
	)

	log.Info().Msg("Services initialized")
	return nil
}
