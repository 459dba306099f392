package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/config"
	"github.com/stagefinder/stagefinder/internal/database"
)

// InitializeDatabases opens all 5 databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. presence.db - Musician presence and performance counters
	presenceDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/presence.db",
		Profile: database.ProfileStandard,
		Name:    "presence",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize presence database: %w", err)
	}
	container.PresenceDB = presenceDB

	// 2. calendar.db - Bookings are the money trail, maximum durability
	calendarDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/calendar.db",
		Profile: database.ProfileLedger,
		Name:    "calendar",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize calendar database: %w", err)
	}
	container.CalendarDB = calendarDB

	// 3. market.db - Rate aggregates and raw observations
	marketDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/market.db",
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize market database: %w", err)
	}
	container.MarketDB = marketDB

	// 4. directory.db - Musician profiles and open events
	directoryDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/directory.db",
		Profile: database.ProfileStandard,
		Name:    "directory",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize directory database: %w", err)
	}
	container.DirectoryDB = directoryDB

	// 5. cache.db - Ephemeral search results, rebuilt on demand
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// Apply schemas (single source of truth per database)
	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Int("databases", len(container.Databases())).Msg("Databases initialized")
	return container, nil
}
