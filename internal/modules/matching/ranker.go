package matching

import (
	"math"
	"sort"
	"time"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
)

// ============================================================================
// RANKING WEIGHTS
//
// Every term is normalized to [0, 1] before weighting, so a score is a
// percentage of a 0-100 scale and no single factor dominates unboundedly.
// ============================================================================

// Musician-for-event weights: rating 40, response time 30, price 20,
// experience 10.
const (
	RatingWeight     = 40.0
	ResponseWeight   = 30.0
	PriceWeight      = 20.0
	ExperienceWeight = 10.0

	// ResponseTimeCap is the response time at or beyond which the response
	// term bottoms out.
	ResponseTimeCap = 3600.0 // seconds

	// PriceCap is the quote at or beyond which the price term bottoms out.
	PriceCap = 2000.0

	// ExperienceCeiling caps the experience term: totalEvents/10, capped at
	// this many points before normalization.
	ExperienceCeiling = 10.0
)

// Event-for-musician weights: budget fit 40, date proximity 30, event-type
// affinity 20, location 10.
const (
	BudgetWeight   = 40.0
	DateWeight     = 30.0
	AffinityWeight = 20.0
	LocationWeight = 10.0

	// DateHorizon is the decay horizon for the date-proximity term: events
	// further out than this score 0 on that term.
	DateHorizon = 30 * 24 * time.Hour

	// BudgetComfortRatio is the budget/rate ratio at which the budget term
	// maxes out.
	BudgetComfortRatio = 2.0
)

// NeutralLocationScore is the default location term: the proximity signal is
// not computed yet, so every event gets the same middle-of-the-road value.
const NeutralLocationScore = 0.5

// eventTypeAffinity is the per-category affinity table for the
// event-for-musician direction, normalized to [0, 1].
var eventTypeAffinity = map[domain.EventType]float64{
	domain.EventTypeWedding:   1.00,
	domain.EventTypeCorporate: 0.85,
	domain.EventTypeFestival:  0.80,
	domain.EventTypeConcert:   0.75,
	domain.EventTypeBirthday:  0.60,
	domain.EventTypePrivate:   0.50,
	domain.EventTypeGeneric:   0.50,
}

// LocationScoreFunc computes the location-proximity term in [0, 1] for an
// event against a musician's last known position. Pluggable so a genuine
// distance model can replace the neutral default later.
type LocationScoreFunc func(musicianLocation string, musicianCoords *domain.Coordinates, event domain.Event) float64

// Ranker turns (presence, rate) pairs into comparable relevance scores.
type Ranker struct {
	// LocationScore overrides the location term. Defaults to the neutral
	// constant.
	LocationScore LocationScoreFunc

	now func() time.Time
}

// NewRanker creates a ranker with the neutral location term.
func NewRanker() *Ranker {
	return &Ranker{
		LocationScore: func(string, *domain.Coordinates, domain.Event) float64 {
			return NeutralLocationScore
		},
		now: time.Now,
	}
}

// SetClock overrides the ranker's time source. Tests only.
func (r *Ranker) SetClock(now func() time.Time) {
	r.now = now
}

// ScoreMusicianForEvent scores one candidate on a 0-100 scale:
// rating 40%, response time 30% (faster is better), price 20% (cheaper is
// better), experience 10%.
func (r *Ranker) ScoreMusicianForEvent(p presence.MusicianPresence, rate *rates.RateResult) float64 {
	ratingTerm := clamp01(p.Performance.Rating / 5.0)

	responseTerm := 1.0 - clamp01(p.Performance.AverageResponseTimeSecs/ResponseTimeCap)

	priceTerm := 0.0
	if rate != nil {
		priceTerm = 1.0 - clamp01(rate.FinalRate/PriceCap)
	}

	experiencePoints := math.Min(float64(p.Performance.TotalEvents)/10.0, ExperienceCeiling)
	experienceTerm := experiencePoints / ExperienceCeiling

	score := ratingTerm*RatingWeight +
		responseTerm*ResponseWeight +
		priceTerm*PriceWeight +
		experienceTerm*ExperienceWeight

	return round2(score)
}

// ScoreEventForMusician scores one open event on a 0-100 scale: budget fit
// 40%, date proximity 30% (sooner is better, 30-day decay), event-type
// affinity 20%, location 10% (pluggable term).
func (r *Ranker) ScoreEventForMusician(event domain.Event, rate *rates.RateResult, musicianLocation string, musicianCoords *domain.Coordinates) float64 {
	budgetTerm := 0.0
	if rate != nil && rate.FinalRate > 0 {
		// Reward events whose budget comfortably exceeds the computed rate.
		ratio := event.Budget / rate.FinalRate
		budgetTerm = clamp01(ratio / BudgetComfortRatio)
	} else if event.Budget > 0 {
		budgetTerm = 1.0
	}

	dateTerm := 0.0
	if until := event.Date.Sub(r.now()); until >= 0 {
		dateTerm = 1.0 - clamp01(float64(until)/float64(DateHorizon))
	}

	affinityTerm, ok := eventTypeAffinity[event.EventType]
	if !ok {
		affinityTerm = eventTypeAffinity[domain.EventTypeGeneric]
	}

	locationTerm := clamp01(r.LocationScore(musicianLocation, musicianCoords, event))

	score := budgetTerm*BudgetWeight +
		dateTerm*DateWeight +
		affinityTerm*AffinityWeight +
		locationTerm*LocationWeight

	return round2(score)
}

// RankCandidates sorts musician candidates by descending score. Equal scores
// break by ascending musician id, so ranking is deterministic across runs.
func RankCandidates(candidates []MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].MusicianID < candidates[j].MusicianID
	})
}

// RankEventCandidates sorts event candidates by descending score, equal
// scores breaking by ascending event id.
func RankEventCandidates(candidates []EventCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Event.ID < candidates[j].Event.ID
	})
}

func clamp01(value float64) float64 {
	return math.Max(0, math.Min(1, value))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
