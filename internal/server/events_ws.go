package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/stagefinder/stagefinder/internal/events"
)

const (
	// Per-connection buffer; events published while the buffer is full
	// are dropped for that connection rather than blocking the bus.
	wsEventBuffer = 64

	wsWriteTimeout = 10 * time.Second
)

// wsEventFrame is the JSON frame pushed to websocket subscribers.
type wsEventFrame struct {
	Type      string      `json:"type"`
	Module    string      `json:"module,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// EventsWSHandler streams every bus event to connected websocket clients.
// Dashboards use it to watch presence changes, bookings and search activity
// without polling.
type EventsWSHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsWSHandler creates a websocket handler backed by the event bus
func NewEventsWSHandler(bus *events.Bus, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		bus: bus,
		log: log.With().Str("handler", "events_ws").Logger(),
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects or the request context ends
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Same-origin dashboards only; cross-origin embedding is not supported
		InsecureSkipVerify: false,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()

	// Bus handlers run synchronously on the publisher's goroutine, so the
	// subscription only enqueues. Slow clients lose events instead of
	// stalling publishers.
	frames := make(chan wsEventFrame, wsEventBuffer)
	var dropped atomic.Int64
	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		frame := wsEventFrame{
			Type:      string(event.Type),
			Module:    event.Module,
			Timestamp: event.Timestamp,
			Data:      event.Data,
		}
		select {
		case frames <- frame:
		default:
			dropped.Add(1)
		}
	})
	defer unsubscribe()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket subscriber connected")

	// Read loop exists only to detect client disconnects; inbound
	// messages are ignored.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("WebSocket write failed, closing subscriber")
				return
			}
		case <-readDone:
			h.log.Debug().Str("remote", r.RemoteAddr).Int64("dropped", dropped.Load()).Msg("WebSocket subscriber disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}
