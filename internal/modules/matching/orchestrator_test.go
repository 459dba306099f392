package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/calendar"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
)

// MockPresence is a mock presence source for testing
type MockPresence struct {
	mock.Mock
}

func (m *MockPresence) GetOnlineMusicians(filters presence.Filters) ([]presence.MusicianPresence, error) {
	args := m.Called(filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]presence.MusicianPresence), args.Error(1)
}

func (m *MockPresence) GetStatus(musicianID string) (*presence.MusicianPresence, error) {
	args := m.Called(musicianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*presence.MusicianPresence), args.Error(1)
}

// MockAvailability is a mock conflict resolver for testing
type MockAvailability struct {
	mock.Mock
}

func (m *MockAvailability) CheckMultipleMusiciansAvailability(musicianIDs []string, window domain.TimeWindow) (*calendar.AvailabilityPartition, error) {
	args := m.Called(musicianIDs, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calendar.AvailabilityPartition), args.Error(1)
}

func (m *MockAvailability) CheckConflicts(musicianID string, window domain.TimeWindow, location string) (*calendar.ConflictCheckResult, error) {
	args := m.Called(musicianID, window, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calendar.ConflictCheckResult), args.Error(1)
}

// MockRates is a mock rate calculator for testing
type MockRates struct {
	mock.Mock
}

func (m *MockRates) CalculateRate(request rates.QuoteRequest) (*rates.RateResult, error) {
	args := m.Called(request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rates.RateResult), args.Error(1)
}

// MockEvents is a mock event directory for testing
type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) GetEvent(eventID string) (*domain.Event, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEvents) ListOpenEvents(limit int) ([]domain.Event, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

type orchestratorMocks struct {
	presence     *MockPresence
	availability *MockAvailability
	rates        *MockRates
	events       *MockEvents
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *orchestratorMocks) {
	t.Helper()

	mocks := &orchestratorMocks{
		presence:     new(MockPresence),
		availability: new(MockAvailability),
		rates:        new(MockRates),
		events:       new(MockEvents),
	}

	ranker := NewRanker()
	ranker.SetClock(func() time.Time {
		return time.Date(2025, 5, 26, 12, 0, 0, 0, time.UTC)
	})

	orchestrator := NewOrchestrator(
		mocks.presence, mocks.availability, mocks.rates, ranker, mocks.events,
		nil, nil,
		Config{Concurrency: 4, RateTimeout: time.Second},
		zerolog.Nop(),
	)
	return orchestrator, mocks
}

func weddingEvent() domain.Event {
	return domain.Event{
		ID:         "ev1",
		EventType:  domain.EventTypeWedding,
		Instrument: "piano",
		Date:       time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC),
		Duration:   2 * time.Hour,
		Budget:     600,
		Location:   "vienna",
	}
}

func onlinePresence(id string, rating float64) presence.MusicianPresence {
	return presence.MusicianPresence{
		MusicianID:   id,
		IsOnline:     true,
		Availability: presence.Availability{IsAvailable: true},
		Performance:  presence.Performance{Rating: rating, TotalEvents: 50, AverageResponseTimeSecs: 600},
		Instruments:  []string{"piano"},
		Location:     "vienna",
	}
}

func TestFindMusiciansNoOnlineCandidates(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)

	mocks.presence.On("GetOnlineMusicians", mock.Anything).Return([]presence.MusicianPresence{}, nil)

	result, err := orchestrator.FindMusiciansForEvent(context.Background(), weddingEvent())
	require.NoError(t, err)

	assert.Equal(t, StateEmptyResult, result.Metadata.State)
	assert.Empty(t, result.Candidates)
	assert.NotEmpty(t, result.Metadata.SearchID)
	mocks.availability.AssertNotCalled(t, "CheckMultipleMusiciansAvailability", mock.Anything, mock.Anything)
}

func TestFindMusiciansBudgetFilterIsHourly(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)

	var captured presence.Filters
	mocks.presence.On("GetOnlineMusicians", mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(0).(presence.Filters)
		}).
		Return([]presence.MusicianPresence{}, nil)

	// Presence carries hourly rates, so a 600 budget over 2 hours caps at 300/h
	_, err := orchestrator.FindMusiciansForEvent(context.Background(), weddingEvent())
	require.NoError(t, err)
	assert.InDelta(t, 300.0, captured.BudgetMax, 0.001)

	// Engagements below the billing floor are scaled by the floored duration
	short := weddingEvent()
	short.Duration = 15 * time.Minute
	short.Budget = 100
	_, err = orchestrator.FindMusiciansForEvent(context.Background(), short)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, captured.BudgetMax, 0.001)
}

func TestFindMusiciansFullPipeline(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)
	event := weddingEvent()

	online := []presence.MusicianPresence{
		onlinePresence("m1", 3.0),
		onlinePresence("m2", 5.0),
		onlinePresence("m3", 4.0),
	}
	mocks.presence.On("GetOnlineMusicians", mock.Anything).Return(online, nil)

	// m3 has a calendar collision and drops out before pricing
	mocks.availability.On("CheckMultipleMusiciansAvailability", []string{"m1", "m2", "m3"}, event.Window()).
		Return(&calendar.AvailabilityPartition{
			AvailableMusicians:   []string{"m1", "m2"},
			UnavailableMusicians: []string{"m3"},
		}, nil)

	mocks.rates.On("CalculateRate", mock.MatchedBy(func(r rates.QuoteRequest) bool { return r.MusicianID == "m1" })).
		Return(&rates.RateResult{MusicianID: "m1", FinalRate: 300}, nil)
	mocks.rates.On("CalculateRate", mock.MatchedBy(func(r rates.QuoteRequest) bool { return r.MusicianID == "m2" })).
		Return(&rates.RateResult{MusicianID: "m2", FinalRate: 400}, nil)

	result, err := orchestrator.FindMusiciansForEvent(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, StateRanked, result.Metadata.State)
	assert.Equal(t, 3, result.Metadata.OnlineCandidates)
	assert.Equal(t, 2, result.Metadata.AfterConflicts)
	assert.Equal(t, 2, result.Metadata.Priced)
	assert.Equal(t, 0, result.Metadata.Excluded)

	require.Len(t, result.Candidates, 2)
	// The 5.0-rated musician outranks the 3.0 one despite the higher quote
	assert.Equal(t, "m2", result.Candidates[0].MusicianID)
	assert.Equal(t, "m1", result.Candidates[1].MusicianID)
	assert.Greater(t, result.Candidates[0].Score, result.Candidates[1].Score)
	mocks.rates.AssertNotCalled(t, "CalculateRate", mock.MatchedBy(func(r rates.QuoteRequest) bool {
		return r.MusicianID == "m3"
	}))
}

// A failing rate call excludes only that candidate; the batch continues.
func TestFindMusiciansPerCandidateFailureExcluded(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)
	event := weddingEvent()

	online := []presence.MusicianPresence{
		onlinePresence("m1", 4.0),
		onlinePresence("m2", 4.0),
	}
	mocks.presence.On("GetOnlineMusicians", mock.Anything).Return(online, nil)
	mocks.availability.On("CheckMultipleMusiciansAvailability", mock.Anything, mock.Anything).
		Return(&calendar.AvailabilityPartition{AvailableMusicians: []string{"m1", "m2"}}, nil)

	mocks.rates.On("CalculateRate", mock.MatchedBy(func(r rates.QuoteRequest) bool { return r.MusicianID == "m1" })).
		Return(nil, errors.New("market db locked"))
	mocks.rates.On("CalculateRate", mock.MatchedBy(func(r rates.QuoteRequest) bool { return r.MusicianID == "m2" })).
		Return(&rates.RateResult{MusicianID: "m2", FinalRate: 400}, nil)

	result, err := orchestrator.FindMusiciansForEvent(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, StateRanked, result.Metadata.State)
	assert.Equal(t, 1, result.Metadata.Excluded)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "m2", result.Candidates[0].MusicianID)
}

func TestFindMusiciansSlowRateCallTimesOut(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)
	orchestrator.rateTimeout = 20 * time.Millisecond
	event := weddingEvent()

	mocks.presence.On("GetOnlineMusicians", mock.Anything).
		Return([]presence.MusicianPresence{onlinePresence("m1", 4.0)}, nil)
	mocks.availability.On("CheckMultipleMusiciansAvailability", mock.Anything, mock.Anything).
		Return(&calendar.AvailabilityPartition{AvailableMusicians: []string{"m1"}}, nil)
	mocks.rates.On("CalculateRate", mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(200 * time.Millisecond) }).
		Return(&rates.RateResult{MusicianID: "m1", FinalRate: 300}, nil)

	result, err := orchestrator.FindMusiciansForEvent(context.Background(), event)
	require.NoError(t, err)

	// The only candidate timed out, leaving an empty result
	assert.Equal(t, StateEmptyResult, result.Metadata.State)
	assert.Equal(t, 1, result.Metadata.Excluded)
	assert.Empty(t, result.Candidates)
}

func TestFindMusiciansValidation(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)

	_, err := orchestrator.FindMusiciansForEvent(context.Background(), domain.Event{Duration: time.Hour})
	assert.True(t, domain.IsValidation(err))

	_, err = orchestrator.FindMusiciansForEvent(context.Background(), domain.Event{
		Date: time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC),
	})
	assert.True(t, domain.IsValidation(err))
}

func TestFindEventsForOfflineMusician(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)

	offline := onlinePresence("m1", 4.0)
	offline.IsOnline = false
	mocks.presence.On("GetStatus", "m1").Return(&offline, nil)

	result, err := orchestrator.FindEventsForMusician(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, StateEmptyResult, result.Metadata.State)
	assert.Empty(t, result.Candidates)
	mocks.events.AssertNotCalled(t, "ListOpenEvents", mock.Anything)
}

func TestFindEventsForMusician(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)

	snapshot := onlinePresence("m1", 4.5)
	mocks.presence.On("GetStatus", "m1").Return(&snapshot, nil)

	soon := domain.Event{
		ID: "ev-soon", EventType: domain.EventTypeWedding, Instrument: "piano",
		Date: time.Date(2025, 5, 28, 18, 0, 0, 0, time.UTC), Duration: 2 * time.Hour,
		Budget: 800, Location: "vienna",
	}
	far := domain.Event{
		ID: "ev-far", EventType: domain.EventTypeBirthday, Instrument: "piano",
		Date: time.Date(2025, 6, 20, 18, 0, 0, 0, time.UTC), Duration: 2 * time.Hour,
		Budget: 300, Location: "vienna",
	}
	drums := domain.Event{
		ID: "ev-drums", EventType: domain.EventTypeWedding, Instrument: "drums",
		Date: time.Date(2025, 5, 29, 18, 0, 0, 0, time.UTC), Duration: 2 * time.Hour,
		Budget: 800, Location: "vienna",
	}
	booked := domain.Event{
		ID: "ev-booked", EventType: domain.EventTypeWedding, Instrument: "piano",
		Date: time.Date(2025, 5, 30, 18, 0, 0, 0, time.UTC), Duration: 2 * time.Hour,
		Budget: 800, Location: "vienna",
	}
	mocks.events.On("ListOpenEvents", openEventsLimit).
		Return([]domain.Event{soon, far, drums, booked}, nil)

	mocks.availability.On("CheckConflicts", "m1", booked.Window(), "vienna").
		Return(&calendar.ConflictCheckResult{HasConflict: true}, nil)
	mocks.availability.On("CheckConflicts", "m1", mock.Anything, "vienna").
		Return(&calendar.ConflictCheckResult{HasConflict: false}, nil)

	mocks.rates.On("CalculateRate", mock.Anything).
		Return(&rates.RateResult{MusicianID: "m1", FinalRate: 400}, nil)

	result, err := orchestrator.FindEventsForMusician(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, StateRanked, result.Metadata.State)
	// drums filtered by instrument, booked filtered by calendar
	assert.Equal(t, 3, result.Metadata.OnlineCandidates)
	assert.Equal(t, 2, result.Metadata.AfterConflicts)
	require.Len(t, result.Candidates, 2)

	// The soon, well-budgeted wedding outranks the far, tight-budget birthday
	assert.Equal(t, "ev-soon", result.Candidates[0].Event.ID)
	assert.Equal(t, "ev-far", result.Candidates[1].Event.ID)
}

func TestFindEventsUnknownMusician(t *testing.T) {
	orchestrator, mocks := newTestOrchestrator(t)

	mocks.presence.On("GetStatus", "ghost").Return(nil, domain.NewNotFoundError("musician", "ghost"))

	_, err := orchestrator.FindEventsForMusician(context.Background(), "ghost")
	assert.True(t, domain.IsNotFound(err))
}
