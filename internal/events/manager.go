package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Manager is the emitting side of the bus. Components hold a Manager so the
// subscribe surface stays private to composition code.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a manager that publishes on bus
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "event_manager").Logger(),
	}
}

// Emit publishes an event with a loosely-typed payload
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	m.bus.Publish(&Event{
		Type:      eventType,
		Module:    module,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	m.log.Debug().Str("event", string(eventType)).Str("module", module).Msg("Event emitted")
}

// EmitTyped publishes an event whose payload implements EventData. The typed
// payload is carried under the "data" key so stream consumers get one shape.
func (m *Manager) EmitTyped(eventType EventType, module string, data EventData) {
	m.bus.Publish(&Event{
		Type:      eventType,
		Module:    module,
		Data:      map[string]interface{}{"data": data},
		Timestamp: time.Now().UTC(),
	})
	m.log.Debug().Str("event", string(eventType)).Str("module", module).Msg("Event emitted")
}
