package events

// EventData is the interface that all typed event payloads implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PresenceChangedData contains data for PresenceChanged events
type PresenceChangedData struct {
	MusicianID string `json:"musician_id"`
	IsOnline   bool   `json:"is_online"`
}

// EventType returns the event type for PresenceChangedData
func (d *PresenceChangedData) EventType() EventType {
	return PresenceChanged
}

// BookingConfirmedData contains data for BookingConfirmed events
type BookingConfirmedData struct {
	EntryID    string `json:"entry_id"`
	MusicianID string `json:"musician_id"`
	EventID    string `json:"event_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// EventType returns the event type for BookingConfirmedData
func (d *BookingConfirmedData) EventType() EventType {
	return BookingConfirmed
}

// BookingCancelledData contains data for BookingCancelled events
type BookingCancelledData struct {
	EntryID    string `json:"entry_id"`
	MusicianID string `json:"musician_id"`
}

// EventType returns the event type for BookingCancelledData
func (d *BookingCancelledData) EventType() EventType {
	return BookingCancelled
}

// SearchCompletedData contains data for SearchCompleted events
type SearchCompletedData struct {
	SearchID   string `json:"search_id"`
	State      string `json:"state"`
	Candidates int    `json:"candidates"`
	DurationMS int64  `json:"duration_ms"`
}

// EventType returns the event type for SearchCompletedData
func (d *SearchCompletedData) EventType() EventType {
	return SearchCompleted
}

// RateObservedData contains data for RateObserved events.
// Category carries the event type of the observed booking; the field name
// avoids colliding with the EventType method on EventData.
type RateObservedData struct {
	Instrument   string  `json:"instrument"`
	Location     string  `json:"location"`
	Category     string  `json:"event_type"`
	ObservedRate float64 `json:"observed_rate"`
	SampleCount  int64   `json:"sample_count"`
}

// EventType returns the event type for RateObservedData
func (d *RateObservedData) EventType() EventType {
	return RateObserved
}
