package rates

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/events"
)

// ============================================================================
// PRICING CONSTANTS
// ============================================================================

const (
	// MinBillableDuration floors every quote so a zero or near-zero duration
	// never divides by zero and never prices below half an hour of work.
	MinBillableDuration = 30 * time.Minute

	// UrgencyLeadTime marks a request as urgent when the event is closer
	// than this, even without the explicit flag.
	UrgencyLeadTime = 72 * time.Hour

	// UrgencyMultiplier applies to urgent requests.
	UrgencyMultiplier = 1.25

	// WeekendMultiplier applies when the event falls on Saturday or Sunday.
	WeekendMultiplier = 1.15

	// EveningMultiplier applies when the event starts at or after EveningHour.
	EveningMultiplier = 1.10
	EveningHour       = 18

	// CalculatedWeight and MarketWeight blend the formula result with the
	// market aggregate. When no aggregate exists for the key the market
	// contribution is weighted at 0 and the quote is the pure formula result.
	CalculatedWeight = 0.70
	MarketWeight     = 0.30

	// quantileSampleLimit caps how many recent observations feed the
	// recommendation quartiles.
	quantileSampleLimit = 200

	// quantileMinSamples is the smallest observation set worth computing
	// quartiles over.
	quantileMinSamples = 4
)

// eventTypeWeights adjusts the base formula per event category. Weddings
// carry the highest premium; unknown types fall back to the generic weight.
var eventTypeWeights = map[domain.EventType]float64{
	domain.EventTypeWedding:   1.50,
	domain.EventTypeCorporate: 1.30,
	domain.EventTypeFestival:  1.25,
	domain.EventTypeConcert:   1.20,
	domain.EventTypeBirthday:  1.10,
	domain.EventTypePrivate:   1.00,
	domain.EventTypeGeneric:   1.00,
}

// MarketStore is the slice of the market repository the engine needs.
type MarketStore interface {
	Get(instrument, location, eventType string) (*MarketDataPoint, error)
	RecordObservation(instrument, location, eventType string, observedRate float64) error
	RecentObservations(instrument, location, eventType string, limit int) ([]float64, error)
}

// EventEmitter publishes typed module events.
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Engine prices quotes by blending a deterministic formula with the rolling
// market aggregate for the (instrument, location, eventType) key.
type Engine struct {
	directory domain.MusicianDirectory
	market    MarketStore
	emitter   EventEmitter
	now       func() time.Time
	log       zerolog.Logger
}

// NewEngine creates a rate engine.
func NewEngine(directory domain.MusicianDirectory, market MarketStore, emitter EventEmitter, log zerolog.Logger) *Engine {
	return &Engine{
		directory: directory,
		market:    market,
		emitter:   emitter,
		now:       time.Now,
		log:       log.With().Str("component", "rate_engine").Logger(),
	}
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// CalculateRate runs the pricing pipeline for one request. Market-data read
// failures degrade to a formula-only quote; a missing musician propagates as
// NotFoundError.
func (e *Engine) CalculateRate(request QuoteRequest) (*RateResult, error) {
	if request.MusicianID == "" {
		return nil, domain.NewValidationError("musicianId", "must not be empty")
	}
	if request.Duration < 0 {
		return nil, domain.NewValidationError("duration", "must not be negative")
	}

	profile, err := e.directory.GetProfile(request.MusicianID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, domain.NewDependencyError("musician directory", err)
	}

	duration := request.Duration
	if duration < MinBillableDuration {
		duration = MinBillableDuration
	}
	hours := duration.Hours()

	breakdown := make(map[string]float64)

	// Step 1: base formula
	rate := profile.BaseRate * hours
	breakdown["base"] = round2(rate)

	// Step 2: event-type weight
	weight, ok := eventTypeWeights[request.EventType]
	if !ok {
		weight = eventTypeWeights[domain.EventTypeGeneric]
	}
	breakdown["event_type_adjustment"] = round2(rate * (weight - 1))
	rate *= weight

	// Step 3: urgency
	urgent := request.IsUrgent
	if !urgent && !request.EventDate.IsZero() {
		urgent = request.EventDate.Sub(e.now()) < UrgencyLeadTime
	}
	if urgent {
		breakdown["urgency_adjustment"] = round2(rate * (UrgencyMultiplier - 1))
		rate *= UrgencyMultiplier
	}

	// Step 4: weekend and evening premiums
	if !request.EventDate.IsZero() {
		if day := request.EventDate.Weekday(); day == time.Saturday || day == time.Sunday {
			breakdown["weekend_adjustment"] = round2(rate * (WeekendMultiplier - 1))
			rate *= WeekendMultiplier
		}
		if request.EventDate.Hour() >= EveningHour {
			breakdown["evening_adjustment"] = round2(rate * (EveningMultiplier - 1))
			rate *= EveningMultiplier
		}
	}

	calculated := rate
	breakdown["calculated"] = round2(calculated)

	result := &RateResult{
		MusicianID:     request.MusicianID,
		CalculatedRate: round2(calculated),
		Breakdown:      breakdown,
	}

	// Step 5: market blend. The aggregate is an hourly rate; scale it to the
	// billed duration before blending.
	point := e.lookupMarketData(request)
	if point != nil {
		marketTotal := point.AggregateRate * hours
		result.MarketRate = round2(marketTotal)
		result.MarketWeight = MarketWeight
		breakdown["market_contribution"] = round2(marketTotal * MarketWeight)
		rate = calculated*CalculatedWeight + marketTotal*MarketWeight
	} else {
		// No data point for the key: market contribution weighs 0 and the
		// quote is the pure calculated result.
		result.MarketWeight = 0
	}

	// Step 6: clamp
	result.FinalRate = round2(math.Max(0, rate))

	result.Recommendations = e.recommendations(request, profile.BaseRate, point)

	return result, nil
}

// UpdateMarketData merges one observed rate into the rolling aggregate.
// Called once per completed, priced event; observedRate is hourly.
func (e *Engine) UpdateMarketData(instrument, location, eventType string, observedRate float64) error {
	if instrument == "" || location == "" || eventType == "" {
		return domain.NewValidationError("market key", "instrument, location and eventType must not be empty")
	}
	if observedRate < 0 {
		return domain.NewValidationError("observedRate", "must not be negative")
	}

	if err := e.market.RecordObservation(instrument, location, eventType, observedRate); err != nil {
		return domain.NewDependencyError("market store", err)
	}

	if e.emitter != nil {
		sampleCount := int64(0)
		if point, err := e.market.Get(instrument, location, eventType); err == nil && point != nil {
			sampleCount = point.SampleCount
		}
		e.emitter.EmitTyped(events.RateObserved, "rates", &events.RateObservedData{
			Instrument:   instrument,
			Location:     location,
			Category:     eventType,
			ObservedRate: observedRate,
			SampleCount:  sampleCount,
		})
	}

	return nil
}

// GetPublicMarketData returns the sanitized aggregate for a key, with
// quartiles over recent observations when enough exist. No musician identity
// ever crosses this boundary.
func (e *Engine) GetPublicMarketData(instrument, location, eventType string) (*PublicMarketData, error) {
	if instrument == "" || location == "" || eventType == "" {
		return nil, domain.NewValidationError("market key", "instrument, location and eventType must not be empty")
	}

	point, err := e.market.Get(instrument, location, eventType)
	if err != nil {
		return nil, domain.NewDependencyError("market store", err)
	}
	if point == nil {
		return nil, domain.NewNotFoundError("market data", fmt.Sprintf("%s/%s/%s", instrument, location, eventType))
	}

	public := &PublicMarketData{
		Instrument:  point.Instrument,
		Location:    point.Location,
		EventType:   point.EventType,
		AverageRate: round2(point.AggregateRate),
		SampleCount: point.SampleCount,
	}

	if lower, upper, ok := e.quartiles(instrument, location, eventType); ok {
		public.LowerQuartile = round2(lower)
		public.UpperQuartile = round2(upper)
	}

	return public, nil
}

// lookupMarketData reads the aggregate for a quote's key. A read failure is
// non-critical: log and price from the formula alone.
func (e *Engine) lookupMarketData(request QuoteRequest) *MarketDataPoint {
	if request.Instrument == "" || request.Location == "" {
		return nil
	}

	point, err := e.market.Get(request.Instrument, request.Location, string(request.EventType))
	if err != nil {
		e.log.Warn().Err(err).
			Str("instrument", request.Instrument).
			Str("location", request.Location).
			Msg("Market data read failed, pricing from formula only")
		return nil
	}

	return point
}

// recommendations derives advisory strings from the musician's hourly base
// against the market aggregate and the observation quartiles.
func (e *Engine) recommendations(request QuoteRequest, baseRate float64, point *MarketDataPoint) []string {
	if point == nil || point.SampleCount == 0 {
		return nil
	}

	var recs []string

	key := fmt.Sprintf("%s in %s", request.Instrument, request.Location)
	if baseRate < point.AggregateRate {
		recs = append(recs, fmt.Sprintf("base rate is below the market average for %s", key))
	} else if baseRate > point.AggregateRate {
		recs = append(recs, fmt.Sprintf("base rate is above the market average for %s", key))
	}

	if lower, upper, ok := e.quartiles(request.Instrument, request.Location, string(request.EventType)); ok {
		if baseRate < lower {
			recs = append(recs, fmt.Sprintf("base rate is in the bottom quartile of recent %s bookings", key))
		} else if baseRate > upper {
			recs = append(recs, fmt.Sprintf("base rate is in the top quartile of recent %s bookings", key))
		}
	}

	return recs
}

// quartiles computes the 25th and 75th percentile of recent observations.
// Returns ok=false when too few samples exist or the read fails.
func (e *Engine) quartiles(instrument, location, eventType string) (lower, upper float64, ok bool) {
	observations, err := e.market.RecentObservations(instrument, location, eventType, quantileSampleLimit)
	if err != nil {
		e.log.Warn().Err(err).Msg("Observation read failed, skipping quartiles")
		return 0, 0, false
	}
	if len(observations) < quantileMinSamples {
		return 0, 0, false
	}

	sort.Float64s(observations)
	lower = stat.Quantile(0.25, stat.Empirical, observations, nil)
	upper = stat.Quantile(0.75, stat.Empirical, observations, nil)
	return lower, upper, true
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
