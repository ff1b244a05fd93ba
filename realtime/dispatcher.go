package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Dispatcher routes decoded event frames to registered handlers. Handlers
// for catalog events receive the validated record (e.g. ObjectCollected);
// handlers for unknown event names receive the raw json.RawMessage payload.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]func(any)
	logger   *slog.Logger
	dropped  func(event string)
}

func newDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]func(any)),
		logger:   logger,
	}
}

// On registers a handler for an event name. Multiple handlers per event are
// invoked in registration order.
func (d *Dispatcher) On(event string, handler func(any)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], handler)
}

// Off removes all handlers registered for an event name.
func (d *Dispatcher) Off(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, event)
}

// Dispatch validates the payload once and fans the decoded value out to
// every registered handler. A payload missing required fields drops that
// single event; other events and the connection are unaffected.
func (d *Dispatcher) Dispatch(event string, payload json.RawMessage) {
	value, err := decodeEvent(event, payload)
	if err != nil {
		d.logger.Warn("dropping event", "event", event, "error", err)
		if d.dropped != nil {
			d.dropped(event)
		}
		return
	}

	d.mu.RLock()
	handlers := d.handlers[event]
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(value)
	}
}
