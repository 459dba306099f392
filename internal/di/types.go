// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/stagefinder/stagefinder/internal/database"
	"github.com/stagefinder/stagefinder/internal/events"
	"github.com/stagefinder/stagefinder/internal/modules/calendar"
	"github.com/stagefinder/stagefinder/internal/modules/directory"
	"github.com/stagefinder/stagefinder/internal/modules/matching"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
	"github.com/stagefinder/stagefinder/internal/reliability"
)

// Container holds all application dependencies.
// It is created by Wire() and passed to the server for handler access.
type Container struct {
	// Databases
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs
	PresenceDB  *database.DB // Musician presence and performance counters
	CalendarDB  *database.DB // Confirmed and tentative bookings (ledger profile)
	MarketDB    *database.DB // Market rate aggregates and raw observations
	DirectoryDB *database.DB // Musician profiles and open events
	CacheDB     *database.DB // Ephemeral search result cache

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	PresenceRepo  *presence.Repository
	CalendarRepo  *calendar.Repository
	MarketRepo    *rates.MarketRepository
	DirectoryRepo *directory.Repository

	// Services
	PresenceTracker  *presence.Tracker
	ConflictResolver *calendar.Resolver
	RateEngine       *rates.Engine
	Ranker           *matching.Ranker
	SearchCache      *matching.SearchCache
	Orchestrator     *matching.Orchestrator

	// Reliability
	S3Client      *reliability.S3Client // nil when cloud backups are not configured
	BackupService *reliability.BackupService
}

// Databases returns every managed database, in backup order
func (c *Container) Databases() []*database.DB {
	return []*database.DB{
		c.PresenceDB,
		c.CalendarDB,
		c.MarketDB,
		c.DirectoryDB,
		c.CacheDB,
	}
}

// Close closes all database connections
func (c *Container) Close() {
	for _, db := range c.Databases() {
		if db != nil {
			db.Close()
		}
	}
}
