package matching

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/events"
	"github.com/stagefinder/stagefinder/internal/modules/calendar"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
)

const (
	// DefaultSearchRadiusKM bounds the location filter when an event carries
	// coordinates.
	DefaultSearchRadiusKM = 50.0

	// openEventsLimit caps how many open events one musician search considers.
	openEventsLimit = 100
)

// PresenceSource is the slice of the presence tracker the orchestrator needs.
type PresenceSource interface {
	GetOnlineMusicians(filters presence.Filters) ([]presence.MusicianPresence, error)
	GetStatus(musicianID string) (*presence.MusicianPresence, error)
}

// AvailabilityChecker is the slice of the conflict resolver the orchestrator
// needs.
type AvailabilityChecker interface {
	CheckMultipleMusiciansAvailability(musicianIDs []string, window domain.TimeWindow) (*calendar.AvailabilityPartition, error)
	CheckConflicts(musicianID string, window domain.TimeWindow, location string) (*calendar.ConflictCheckResult, error)
}

// RateCalculator prices one quote request.
type RateCalculator interface {
	CalculateRate(request rates.QuoteRequest) (*rates.RateResult, error)
}

// ResultCache stores recent search results. Advisory: misses and failures
// just recompute.
type ResultCache interface {
	Key(kind string, criteria interface{}) (string, error)
	Get(key string, dest interface{}) bool
	Put(key string, value interface{})
}

// EventBusEmitter publishes typed module events.
type EventBusEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Config bounds the orchestrator's fan-out.
type Config struct {
	// Concurrency caps parallel rate calls per search.
	Concurrency int

	// RateTimeout bounds each individual rate call.
	RateTimeout time.Duration
}

// Orchestrator composes presence filtering, conflict checking, pricing and
// ranking into one search pass. Per-candidate failures are collected, logged
// and excluded; they never abort the batch.
type Orchestrator struct {
	presence     PresenceSource
	availability AvailabilityChecker
	engine       RateCalculator
	ranker       *Ranker
	eventDir     domain.EventDirectory
	cache        ResultCache
	emitter      EventBusEmitter
	concurrency  int
	rateTimeout  time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewOrchestrator creates a matching orchestrator. cache and emitter may be
// nil; eventDir is only needed for the event-search direction.
func NewOrchestrator(
	presenceSource PresenceSource,
	availability AvailabilityChecker,
	engine RateCalculator,
	ranker *Ranker,
	eventDir domain.EventDirectory,
	cache ResultCache,
	emitter EventBusEmitter,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.RateTimeout <= 0 {
		cfg.RateTimeout = 5 * time.Second
	}

	return &Orchestrator{
		presence:     presenceSource,
		availability: availability,
		engine:       engine,
		ranker:       ranker,
		eventDir:     eventDir,
		cache:        cache,
		emitter:      emitter,
		concurrency:  cfg.Concurrency,
		rateTimeout:  cfg.RateTimeout,
		now:          time.Now,
		log:          log.With().Str("component", "matching_orchestrator").Logger(),
	}
}

// SetClock overrides the orchestrator's time source. Tests only.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// FindMusiciansForEvent runs the full pipeline for one event: online filter,
// conflict filter, parallel pricing, scoring, ranking.
func (o *Orchestrator) FindMusiciansForEvent(ctx context.Context, event domain.Event) (*MusicianSearchResult, error) {
	if event.Date.IsZero() {
		return nil, domain.NewValidationError("date", "must be set")
	}
	if event.Duration <= 0 {
		return nil, domain.NewValidationError("duration", "must be positive")
	}

	startedAt := o.now()
	metadata := SearchMetadata{
		SearchID:  uuid.New().String(),
		State:     StateInitiated,
		StartedAt: startedAt,
	}

	var cacheKey string
	if o.cache != nil {
		key, err := o.cache.Key("musicians", event)
		if err == nil {
			cacheKey = key
			var cached MusicianSearchResult
			if o.cache.Get(cacheKey, &cached) {
				cached.Metadata.FromCache = true
				return &cached, nil
			}
		}
	}

	// Stage 1: online candidates
	online, err := o.presence.GetOnlineMusicians(o.filtersForEvent(event))
	if err != nil {
		return nil, domain.NewDependencyError("presence tracker", err)
	}
	metadata.OnlineCandidates = len(online)

	if len(online) == 0 {
		return o.emptyMusicianResult(metadata), nil
	}
	metadata.State = StateCandidatesFound

	// Stage 2: conflict filter
	ids := make([]string, len(online))
	byID := make(map[string]presence.MusicianPresence, len(online))
	for i, p := range online {
		ids[i] = p.MusicianID
		byID[p.MusicianID] = p
	}

	partition, err := o.availability.CheckMultipleMusiciansAvailability(ids, event.Window())
	if err != nil {
		return nil, domain.NewDependencyError("conflict resolver", err)
	}
	metadata.State = StateConflictFiltered
	metadata.AfterConflicts = len(partition.AvailableMusicians)

	if len(partition.AvailableMusicians) == 0 {
		return o.emptyMusicianResult(metadata), nil
	}

	// Stage 3: parallel pricing
	requests := make([]rates.QuoteRequest, len(partition.AvailableMusicians))
	for i, id := range partition.AvailableMusicians {
		requests[i] = rates.QuoteRequest{
			MusicianID: id,
			EventType:  event.EventType,
			Instrument: event.Instrument,
			Location:   event.Location,
			EventDate:  event.Date,
			Duration:   event.Duration,
		}
	}
	priced := o.priceBatch(ctx, requests)
	metadata.State = StatePriced

	// Stage 4: score survivors, exclude failures
	candidates := make([]MatchCandidate, 0, len(priced))
	for i, result := range priced {
		id := partition.AvailableMusicians[i]
		if !result.IsOk() {
			metadata.Excluded++
			o.log.Warn().Err(result.Err()).
				Str("search_id", metadata.SearchID).
				Str("musician_id", id).
				Msg("Candidate pricing failed, excluding")
			continue
		}

		snapshot := byID[id]
		rate := result.Value()
		candidates = append(candidates, MatchCandidate{
			MusicianID: id,
			Presence:   snapshot,
			Rate:       rate,
			Score:      o.ranker.ScoreMusicianForEvent(snapshot, rate),
		})
	}
	metadata.Priced = len(candidates)

	if len(candidates) == 0 {
		return o.emptyMusicianResult(metadata), nil
	}

	// Stage 5: rank
	RankCandidates(candidates)
	metadata.State = StateRanked
	metadata.DurationMS = o.now().Sub(startedAt).Milliseconds()

	result := &MusicianSearchResult{Candidates: candidates, Metadata: metadata}

	if o.cache != nil && cacheKey != "" {
		o.cache.Put(cacheKey, result)
	}
	o.emitCompleted(metadata, len(candidates))

	return result, nil
}

// FindEventsForMusician mirrors the musician search: open events filtered by
// the musician's own state, conflict-filtered against their calendar, then
// priced and scored symmetrically.
func (o *Orchestrator) FindEventsForMusician(ctx context.Context, musicianID string) (*EventSearchResult, error) {
	if musicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}

	snapshot, err := o.presence.GetStatus(musicianID)
	if err != nil {
		return nil, err
	}

	startedAt := o.now()
	metadata := SearchMetadata{
		SearchID:  uuid.New().String(),
		State:     StateInitiated,
		StartedAt: startedAt,
	}

	// An offline or unavailable musician gets no matches, by definition
	if !snapshot.IsOnline || !snapshot.Availability.IsAvailable {
		return o.emptyEventResult(metadata), nil
	}

	open, err := o.eventDir.ListOpenEvents(openEventsLimit)
	if err != nil {
		return nil, domain.NewDependencyError("event directory", err)
	}

	// Stage 1: events the musician can actually play
	eligible := make([]domain.Event, 0, len(open))
	for _, event := range open {
		if event.Instrument != "" && !hasInstrument(snapshot.Instruments, event.Instrument) {
			continue
		}
		eligible = append(eligible, event)
	}
	metadata.OnlineCandidates = len(eligible)

	if len(eligible) == 0 {
		return o.emptyEventResult(metadata), nil
	}
	metadata.State = StateCandidatesFound

	// Stage 2: drop events colliding with the musician's own calendar
	free := make([]domain.Event, 0, len(eligible))
	for _, event := range eligible {
		check, err := o.availability.CheckConflicts(musicianID, event.Window(), event.Location)
		if err != nil {
			return nil, domain.NewDependencyError("conflict resolver", err)
		}
		if !check.HasConflict {
			free = append(free, event)
		}
	}
	metadata.State = StateConflictFiltered
	metadata.AfterConflicts = len(free)

	if len(free) == 0 {
		return o.emptyEventResult(metadata), nil
	}

	// Stage 3: parallel pricing
	requests := make([]rates.QuoteRequest, len(free))
	for i, event := range free {
		requests[i] = rates.QuoteRequest{
			MusicianID: musicianID,
			EventType:  event.EventType,
			Instrument: event.Instrument,
			Location:   event.Location,
			EventDate:  event.Date,
			Duration:   event.Duration,
		}
	}
	priced := o.priceBatch(ctx, requests)
	metadata.State = StatePriced

	// Stage 4: score, exclude failures
	candidates := make([]EventCandidate, 0, len(priced))
	for i, result := range priced {
		if !result.IsOk() {
			metadata.Excluded++
			o.log.Warn().Err(result.Err()).
				Str("search_id", metadata.SearchID).
				Str("event_id", free[i].ID).
				Msg("Event pricing failed, excluding")
			continue
		}

		rate := result.Value()
		candidates = append(candidates, EventCandidate{
			Event: free[i],
			Rate:  rate,
			Score: o.ranker.ScoreEventForMusician(free[i], rate, snapshot.Location, snapshot.CurrentLocation),
		})
	}
	metadata.Priced = len(candidates)

	if len(candidates) == 0 {
		return o.emptyEventResult(metadata), nil
	}

	RankEventCandidates(candidates)
	metadata.State = StateRanked
	metadata.DurationMS = o.now().Sub(startedAt).Milliseconds()

	o.emitCompleted(metadata, len(candidates))

	return &EventSearchResult{Candidates: candidates, Metadata: metadata}, nil
}

// priceBatch fans out rate calls across a bounded worker set, one bounded
// timeout per call. Results keep request order.
func (o *Orchestrator) priceBatch(ctx context.Context, requests []rates.QuoteRequest) []domain.Result[*rates.RateResult] {
	results := make([]domain.Result[*rates.RateResult], len(requests))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, request := range requests {
		wg.Add(1)
		go func(i int, request rates.QuoteRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.priceOne(ctx, request)
		}(i, request)
	}
	wg.Wait()

	return results
}

// priceOne runs one rate call under the per-call timeout. A call that blows
// the deadline is abandoned and reported as a dependency failure; its
// goroutine finishes in the background.
func (o *Orchestrator) priceOne(ctx context.Context, request rates.QuoteRequest) domain.Result[*rates.RateResult] {
	callCtx, cancel := context.WithTimeout(ctx, o.rateTimeout)
	defer cancel()

	type outcome struct {
		rate *rates.RateResult
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		rate, err := o.engine.CalculateRate(request)
		done <- outcome{rate: rate, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return domain.Fail[*rates.RateResult](result.err)
		}
		return domain.Ok(result.rate)
	case <-callCtx.Done():
		return domain.Fail[*rates.RateResult](domain.NewDependencyError("rate engine", callCtx.Err()))
	}
}

func (o *Orchestrator) filtersForEvent(event domain.Event) presence.Filters {
	filters := presence.Filters{
		EventType:  event.EventType,
		Instrument: event.Instrument,
		Location:   event.Location,
	}
	if event.Budget > 0 {
		// The budget covers the whole engagement while presence carries an
		// hourly rate; convert before comparing. Pricing re-checks the full
		// amount downstream.
		billable := event.Duration
		if billable < rates.MinBillableDuration {
			billable = rates.MinBillableDuration
		}
		filters.BudgetMax = event.Budget / billable.Hours()
	}
	if !event.Coords.IsZero() {
		coords := event.Coords
		filters.Coords = &coords
		filters.RadiusKM = DefaultSearchRadiusKM
	}
	return filters
}

func (o *Orchestrator) emptyMusicianResult(metadata SearchMetadata) *MusicianSearchResult {
	metadata.State = StateEmptyResult
	metadata.DurationMS = o.now().Sub(metadata.StartedAt).Milliseconds()
	o.emitCompleted(metadata, 0)
	return &MusicianSearchResult{Candidates: []MatchCandidate{}, Metadata: metadata}
}

func (o *Orchestrator) emptyEventResult(metadata SearchMetadata) *EventSearchResult {
	metadata.State = StateEmptyResult
	metadata.DurationMS = o.now().Sub(metadata.StartedAt).Milliseconds()
	o.emitCompleted(metadata, 0)
	return &EventSearchResult{Candidates: []EventCandidate{}, Metadata: metadata}
}

func (o *Orchestrator) emitCompleted(metadata SearchMetadata, candidates int) {
	if o.emitter == nil {
		return
	}
	o.emitter.EmitTyped(events.SearchCompleted, "matching", &events.SearchCompletedData{
		SearchID:   metadata.SearchID,
		State:      string(metadata.State),
		Candidates: candidates,
		DurationMS: metadata.DurationMS,
	})
}

func hasInstrument(instruments []string, instrument string) bool {
	for _, i := range instruments {
		if i == instrument {
			return true
		}
	}
	return false
}
