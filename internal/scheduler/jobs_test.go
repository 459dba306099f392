package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagefinder/stagefinder/internal/database"
	"github.com/stagefinder/stagefinder/internal/events"
	"github.com/stagefinder/stagefinder/internal/modules/matching"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
)

func newJobTestDB(t *testing.T, profile database.DatabaseProfile, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:jobs_%s_%s?mode=memory&cache=shared", name, t.Name()),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWALCheckpointJob(t *testing.T) {
	presenceDB := newJobTestDB(t, database.ProfileStandard, "presence")
	calendarDB := newJobTestDB(t, database.ProfileLedger, "calendar")

	job := NewWALCheckpointJob([]*database.DB{presenceDB, calendarDB}, zerolog.Nop())

	assert.Equal(t, "wal_checkpoint", job.Name())
	require.NoError(t, job.Run())
}

func TestPresenceCensusJob(t *testing.T) {
	db := newJobTestDB(t, database.ProfileStandard, "presence")
	repo := presence.NewRepository(db.Conn(), zerolog.Nop())

	bus := events.NewBus()
	manager := events.NewManager(bus, zerolog.Nop())
	tracker := presence.NewTracker(repo, 120*time.Second, manager, zerolog.Nop())

	_, err := tracker.Heartbeat("m1", nil)
	require.NoError(t, err)
	_, err = tracker.Heartbeat("m2", nil)
	require.NoError(t, err)

	var censusEvents []*events.Event
	bus.Subscribe(events.MaintenanceCompleted, func(event *events.Event) {
		censusEvents = append(censusEvents, event)
	})

	job := NewPresenceCensusJob(tracker, manager, zerolog.Nop())

	assert.Equal(t, "presence_census", job.Name())
	require.NoError(t, job.Run())

	require.Len(t, censusEvents, 1)
	data := censusEvents[0].Data
	assert.Equal(t, "presence_census", data["job"])
	assert.Equal(t, 2, data["online"])
}

func TestMarketPruneJob(t *testing.T) {
	db := newJobTestDB(t, database.ProfileStandard, "market")
	repo := rates.NewMarketRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.RecordObservation("guitar", "berlin", "wedding", 150))

	// An observation recorded just now survives the 90-day cutoff
	job := NewMarketPruneJob(repo, zerolog.Nop())

	assert.Equal(t, "market_prune", job.Name())
	require.NoError(t, job.Run())

	recent, err := repo.RecentObservations("guitar", "berlin", "wedding", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestCacheSweepJob(t *testing.T) {
	db := newJobTestDB(t, database.ProfileCache, "cache")
	cache := matching.NewSearchCache(db.Conn(), -time.Second, zerolog.Nop())

	key, err := cache.Key("musicians", map[string]string{"event": "e1"})
	require.NoError(t, err)
	cache.Put(key, map[string]string{"result": "stale"})

	job := NewCacheSweepJob(cache, zerolog.Nop())

	assert.Equal(t, "cache_sweep", job.Name())
	require.NoError(t, job.Run())

	var out map[string]string
	assert.False(t, cache.Get(key, &out))
}

func TestSchedulerAddJob(t *testing.T) {
	s := New(zerolog.Nop())

	job := NewWALCheckpointJob(nil, zerolog.Nop())
	require.NoError(t, s.AddJob("@hourly", job))

	err := s.AddJob("not a schedule", job)
	require.Error(t, err)
}

func TestSchedulerRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	db := newJobTestDB(t, database.ProfileStandard, "presence")
	job := NewWALCheckpointJob([]*database.DB{db}, zerolog.Nop())

	require.NoError(t, s.RunNow(job))
}
