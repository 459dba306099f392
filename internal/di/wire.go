package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/config"
	"github.com/stagefinder/stagefinder/internal/scheduler"
)

// Wire initializes all dependencies and returns a fully configured container
// plus the maintenance scheduler (not yet started).
// Order of operations:
// 1. Initialize databases
// 2. Initialize services
// 3. Register maintenance jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *scheduler.Scheduler, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	sched, err := RegisterJobs(container, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed")
	return container, sched, nil
}
