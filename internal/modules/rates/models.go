package rates

import (
	"time"

	"github.com/stagefinder/stagefinder/internal/domain"
)

// QuoteRequest carries everything the pricing pipeline needs for one quote.
// Transient: never persisted.
type QuoteRequest struct {
	MusicianID string           `json:"musician_id"`
	EventType  domain.EventType `json:"event_type"`
	Instrument string           `json:"instrument"`
	Location   string           `json:"location"`
	EventDate  time.Time        `json:"event_date"`
	Duration   time.Duration    `json:"duration"`
	IsUrgent   bool             `json:"is_urgent"`
}

// RateResult is the outcome of one pricing pass. Breakdown holds each
// pipeline step's numeric contribution so callers can render "how we got
// here"; Recommendations are advisory strings derived from market context.
type RateResult struct {
	MusicianID      string             `json:"musician_id"`
	FinalRate       float64            `json:"final_rate"`
	CalculatedRate  float64            `json:"calculated_rate"`
	MarketRate      float64            `json:"market_rate,omitempty"`
	MarketWeight    float64            `json:"market_weight"`
	Breakdown       map[string]float64 `json:"breakdown"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// MarketDataPoint is the rolling aggregate for one (instrument, location,
// eventType) key. Created on the first observation, merged on every
// subsequent one, never deleted.
type MarketDataPoint struct {
	Instrument    string    `json:"instrument"`
	Location      string    `json:"location"`
	EventType     string    `json:"event_type"`
	AggregateRate float64   `json:"aggregate_rate"`
	SampleCount   int64     `json:"sample_count"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// PublicMarketData is the sanitized client-facing view of an aggregate:
// no musician identity, plus a spread computed from recent observations.
type PublicMarketData struct {
	Instrument    string  `json:"instrument"`
	Location      string  `json:"location"`
	EventType     string  `json:"event_type"`
	AverageRate   float64 `json:"average_rate"`
	SampleCount   int64   `json:"sample_count"`
	LowerQuartile float64 `json:"lower_quartile,omitempty"`
	UpperQuartile float64 `json:"upper_quartile,omitempty"`
}
