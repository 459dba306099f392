package presence

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/events"
)

// MockRepository is a mock presence repository for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(musicianID string) (*MusicianPresence, error) {
	args := m.Called(musicianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MusicianPresence), args.Error(1)
}

func (m *MockRepository) Upsert(p *MusicianPresence) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockRepository) GetAllOnlineFlagged() ([]MusicianPresence, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MusicianPresence), args.Error(1)
}

// MockEmitter records emitted events
type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitTyped(eventType events.EventType, module string, data events.EventData) {
	m.Called(eventType, module, data)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHeartbeatCreatesPresence(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(fixedClock(now))

	repo.On("Get", "m1").Return(nil, nil)
	repo.On("Upsert", mock.MatchedBy(func(p *MusicianPresence) bool {
		return p.MusicianID == "m1" && p.IsOnline && p.LastHeartbeatAt.Equal(now)
	})).Return(nil)

	p, err := tracker.Heartbeat("m1", nil)
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Equal(t, now, p.LastHeartbeatAt)
	repo.AssertExpectations(t)
}

func TestHeartbeatMergesLocation(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(fixedClock(now))

	existing := &MusicianPresence{
		MusicianID:      "m1",
		IsOnline:        true,
		LastHeartbeatAt: now.Add(-30 * time.Second),
	}
	repo.On("Get", "m1").Return(existing, nil)
	repo.On("Upsert", mock.Anything).Return(nil)

	loc := &domain.Coordinates{Latitude: 48.2, Longitude: 16.37}
	p, err := tracker.Heartbeat("m1", loc)
	require.NoError(t, err)
	require.NotNil(t, p.CurrentLocation)
	assert.Equal(t, 48.2, p.CurrentLocation.Latitude)
}

func TestHeartbeatEmitsOnOnlineEdge(t *testing.T) {
	repo := new(MockRepository)
	emitter := new(MockEmitter)
	tracker := NewTracker(repo, 120*time.Second, emitter, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(fixedClock(now))

	// Stored flag says online but the heartbeat is stale, so the derived
	// state was offline and this heartbeat is an offline->online edge.
	existing := &MusicianPresence{
		MusicianID:      "m1",
		IsOnline:        true,
		LastHeartbeatAt: now.Add(-10 * time.Minute),
	}
	repo.On("Get", "m1").Return(existing, nil)
	repo.On("Upsert", mock.Anything).Return(nil)
	emitter.On("EmitTyped", events.PresenceChanged, "presence", mock.Anything).Once()

	_, err := tracker.Heartbeat("m1", nil)
	require.NoError(t, err)
	emitter.AssertExpectations(t)
}

func TestGetStatusDerivesOfflineFromStaleHeartbeat(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	heartbeatAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stored := &MusicianPresence{
		MusicianID:      "m1",
		IsOnline:        true, // Stored flag never flipped by a write
		LastHeartbeatAt: heartbeatAt,
	}
	repo.On("Get", "m1").Return(stored, nil)

	// 180s after the heartbeat with TTL=120s the derived state is offline
	tracker.SetClock(fixedClock(heartbeatAt.Add(180 * time.Second)))

	p, err := tracker.GetStatus("m1")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)

	// The stored snapshot is untouched: no Upsert call happened
	repo.AssertNotCalled(t, "Upsert", mock.Anything)
	assert.True(t, stored.IsOnline)
}

func TestGetStatusUnknownMusicianReturnsNotFound(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	repo.On("Get", "ghost").Return(nil, nil)

	_, err := tracker.GetStatus("ghost")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestGetOnlineMusiciansAppliesStalenessBeforeFilters(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(fixedClock(now))

	flagged := []MusicianPresence{
		{
			MusicianID:      "fresh",
			IsOnline:        true,
			LastHeartbeatAt: now.Add(-30 * time.Second),
			Availability:    Availability{IsAvailable: true},
			Instruments:     []string{"piano"},
		},
		{
			MusicianID:      "stale",
			IsOnline:        true,
			LastHeartbeatAt: now.Add(-10 * time.Minute),
			Availability:    Availability{IsAvailable: true},
			Instruments:     []string{"piano"},
		},
	}
	repo.On("GetAllOnlineFlagged").Return(flagged, nil)

	result, err := tracker.GetOnlineMusicians(Filters{Instrument: "piano"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "fresh", result[0].MusicianID)
}

func TestGetOnlineMusiciansFilters(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	live := func(id string, mutate func(*MusicianPresence)) MusicianPresence {
		p := MusicianPresence{
			MusicianID:      id,
			IsOnline:        true,
			LastHeartbeatAt: now.Add(-10 * time.Second),
			Availability:    Availability{IsAvailable: true},
			Instruments:     []string{"guitar"},
			EventTypes:      []string{"wedding"},
			HourlyRate:      80,
			Location:        "vienna",
		}
		if mutate != nil {
			mutate(&p)
		}
		return p
	}

	tests := []struct {
		name    string
		rows    []MusicianPresence
		filters Filters
		want    []string
	}{
		{
			name:    "instrument filter",
			rows:    []MusicianPresence{live("a", nil), live("b", func(p *MusicianPresence) { p.Instruments = []string{"drums"} })},
			filters: Filters{Instrument: "guitar"},
			want:    []string{"a"},
		},
		{
			name:    "budget ceiling",
			rows:    []MusicianPresence{live("a", nil), live("b", func(p *MusicianPresence) { p.HourlyRate = 500 })},
			filters: Filters{BudgetMax: 100},
			want:    []string{"a"},
		},
		{
			name:    "location label",
			rows:    []MusicianPresence{live("a", nil), live("b", func(p *MusicianPresence) { p.Location = "graz" })},
			filters: Filters{Location: "vienna"},
			want:    []string{"a"},
		},
		{
			name:    "unavailable excluded",
			rows:    []MusicianPresence{live("a", func(p *MusicianPresence) { p.Availability.IsAvailable = false })},
			filters: Filters{},
			want:    []string{},
		},
		{
			name: "radius filter",
			rows: []MusicianPresence{
				live("near", func(p *MusicianPresence) {
					p.CurrentLocation = &domain.Coordinates{Latitude: 48.21, Longitude: 16.37}
				}),
				live("far", func(p *MusicianPresence) {
					p.CurrentLocation = &domain.Coordinates{Latitude: 47.07, Longitude: 15.44}
				}),
			},
			filters: Filters{Coords: &domain.Coordinates{Latitude: 48.20, Longitude: 16.37}, RadiusKM: 25},
			want:    []string{"near"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())
			tracker.SetClock(fixedClock(now))
			repo.On("GetAllOnlineFlagged").Return(tt.rows, nil)

			result, err := tracker.GetOnlineMusicians(tt.filters)
			require.NoError(t, err)

			got := make([]string, 0, len(result))
			for _, p := range result {
				got = append(got, p.MusicianID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdatePerformanceMergesCounters(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	stored := &MusicianPresence{
		MusicianID:      "m1",
		LastHeartbeatAt: time.Now().UTC(),
		Performance:     Performance{Rating: 4.5, TotalEvents: 10, CompletedEvents: 9},
	}
	repo.On("Get", "m1").Return(stored, nil)
	repo.On("Upsert", mock.Anything).Return(nil)

	respTime := 42.0
	p, err := tracker.UpdatePerformance("m1", PerformanceDelta{
		TotalEvents:             1,
		CompletedEvents:         1,
		AverageResponseTimeSecs: &respTime,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, p.Performance.TotalEvents)
	assert.Equal(t, 10, p.Performance.CompletedEvents)
	assert.Equal(t, 42.0, p.Performance.AverageResponseTimeSecs)
	// Rating untouched - externally sourced
	assert.Equal(t, 4.5, p.Performance.Rating)
}

func TestUpdateStatusExplicitOffline(t *testing.T) {
	repo := new(MockRepository)
	tracker := NewTracker(repo, 120*time.Second, nil, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(fixedClock(now))

	stored := &MusicianPresence{
		MusicianID:      "m1",
		IsOnline:        true,
		LastHeartbeatAt: now.Add(-5 * time.Second),
	}
	repo.On("Get", "m1").Return(stored, nil)
	repo.On("Upsert", mock.Anything).Return(nil)

	offline := false
	p, err := tracker.UpdateStatus("m1", StatusUpdate{IsOnline: &offline})
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}

func TestIsStalePredicate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsStale(now.Add(-119*time.Second), now, 120*time.Second))
	assert.False(t, IsStale(now.Add(-120*time.Second), now, 120*time.Second))
	assert.True(t, IsStale(now.Add(-121*time.Second), now, 120*time.Second))

	// Zero TTL falls back to the default
	assert.True(t, IsStale(now.Add(-3*time.Minute), now, 0))
}
