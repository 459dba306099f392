// Package main is the entry point for the StageFinder availability and
// matching engine. It connects musicians and event organizers in real time:
// tracks who is online, resolves booking conflicts, prices engagements and
// ranks candidates for both search directions.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/config"
	"github.com/stagefinder/stagefinder/internal/di"
	"github.com/stagefinder/stagefinder/internal/reliability"
	"github.com/stagefinder/stagefinder/internal/server"
	"github.com/stagefinder/stagefinder/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting StageFinder")

	// Restore missing databases from the newest local backup BEFORE any
	// connections are opened
	restoreMissingDatabases(cfg, log)

	// Wire all dependencies: databases, repositories, services, scheduler.
	// Uses a 5-database architecture:
	// - presence.db: Musician presence and performance counters
	// - calendar.db: Confirmed and tentative bookings (maximum durability)
	// - market.db: Market rate aggregates and raw observations
	// - directory.db: Musician profiles and open events
	// - cache.db: Ephemeral search result cache
	container, sched, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
	})

	// Maintenance jobs: WAL checkpoints, presence census, cache sweeps,
	// market observation pruning, nightly backups
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("StageFinder stopped")
}

// restoreMissingDatabases checks each expected database file and, when one is
// absent but a local backup archive exists, extracts it before startup
// continues. A missing file with no backup is normal on first boot.
func restoreMissingDatabases(cfg *config.Config, log zerolog.Logger) {
	restoreSvc := reliability.NewBackupService(nil, cfg.DataDir, nil, cfg.Backup.RetentionDays, log)

	for _, name := range []string{"presence", "calendar", "market", "directory", "cache"} {
		path := filepath.Join(cfg.DataDir, name+".db")
		if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
			continue
		}

		if err := restoreSvc.RestoreDatabase(name, path); err != nil {
			log.Debug().Err(err).Str("database", name).Msg("No backup to restore, starting fresh")
		}
	}
}
