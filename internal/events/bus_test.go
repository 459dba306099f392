package events

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribe(t *testing.T) {
	bus := NewBus()

	var seen []*Event
	bus.Subscribe(PresenceChanged, func(event *Event) {
		seen = append(seen, event)
	})

	bus.Publish(&Event{Type: PresenceChanged, Module: "presence"})
	bus.Publish(&Event{Type: BookingConfirmed, Module: "calendar"})

	require.Len(t, seen, 1)
	assert.Equal(t, PresenceChanged, seen[0].Type)
	assert.False(t, seen[0].Timestamp.IsZero())
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()

	var all []*Event
	unsubscribe := bus.SubscribeAll(func(event *Event) {
		all = append(all, event)
	})

	bus.Publish(&Event{Type: PresenceChanged})
	bus.Publish(&Event{Type: SearchCompleted})
	require.Len(t, all, 2)

	unsubscribe()
	bus.Publish(&Event{Type: RateObserved})
	assert.Len(t, all, 2)

	// Unsubscribing twice is harmless
	unsubscribe()
}

func TestBusSubscribeAllIndependentSubscribers(t *testing.T) {
	bus := NewBus()

	countA, countB := 0, 0
	unsubA := bus.SubscribeAll(func(*Event) { countA++ })
	bus.SubscribeAll(func(*Event) { countB++ })

	bus.Publish(&Event{Type: PresenceChanged})
	unsubA()
	bus.Publish(&Event{Type: PresenceChanged})

	assert.Equal(t, 1, countA)
	assert.Equal(t, 2, countB)
}

func TestManagerEmit(t *testing.T) {
	bus := NewBus()
	manager := NewManager(bus, zerolog.Nop())

	var seen []*Event
	bus.Subscribe(MaintenanceCompleted, func(event *Event) {
		seen = append(seen, event)
	})

	manager.Emit(MaintenanceCompleted, "scheduler", map[string]interface{}{"job": "backup"})

	require.Len(t, seen, 1)
	assert.Equal(t, "scheduler", seen[0].Module)
	assert.Equal(t, "backup", seen[0].Data["job"])
}

func TestRateObservedDataWireShape(t *testing.T) {
	data := &RateObservedData{
		Instrument:   "piano",
		Location:     "vienna",
		Category:     "wedding",
		ObservedRate: 110,
		SampleCount:  5,
	}

	assert.Equal(t, RateObserved, data.EventType())

	// Consumers key on "event_type" regardless of the Go field name
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"event_type":"wedding"`)
}

func TestManagerEmitTyped(t *testing.T) {
	bus := NewBus()
	manager := NewManager(bus, zerolog.Nop())

	var seen []*Event
	bus.Subscribe(SearchCompleted, func(event *Event) {
		seen = append(seen, event)
	})

	manager.EmitTyped(SearchCompleted, "matching", &SearchCompletedData{
		SearchID:   "s1",
		State:      "RANKED",
		Candidates: 4,
	})

	require.Len(t, seen, 1)
	payload, ok := seen[0].Data["data"].(*SearchCompletedData)
	require.True(t, ok)
	assert.Equal(t, "s1", payload.SearchID)
	assert.Equal(t, 4, payload.Candidates)
}
