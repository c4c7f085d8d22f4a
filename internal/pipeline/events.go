package pipeline

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventRunStarted        = "run_started"
	EventRecordEnriched    = "record_enriched"
	EventRecordUnchanged   = "record_unchanged"
	EventRecordValid       = "record_valid"
	EventRecordFailed      = "record_failed"
	EventRecordSynthesized = "record_synthesized"
	EventRunCompleted      = "run_completed"
)

// Event is emitted by the runner while it works through the drivers.
// Data is a RunStarted for run_started, a report.RecordResult for record
// events and a *report.Report for run_completed.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RunStarted is the payload of run_started.
type RunStarted struct {
	RunID      string `json:"run_id"`
	DriversDir string `json:"drivers_dir"`
	DryRun     bool   `json:"dry_run"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for run events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for one event type and returns its unsubscribe
// function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler for every event type.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit calls the matching handlers synchronously. A panicking handler is
// logged and does not affect the others.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
