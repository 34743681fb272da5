package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType identifies an orchestration event.
type EventType string

const (
	EventExecutionStarted   EventType = "execution:started"
	EventExecutionCompleted EventType = "execution:completed"
	EventExecutionFailed    EventType = "execution:failed"
	EventToolStarted        EventType = "tool:started"
	EventToolCompleted      EventType = "tool:completed"
	EventToolFailed         EventType = "tool:failed"
	EventToolSkipped        EventType = "tool:skipped"
)

// Event carries information about an orchestration state change.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
	Data        any       `json:"data,omitempty"`
}

// EventHandler receives orchestration events.
type EventHandler func(Event)

// subscriptionCounter generates unique subscription ids.
var subscriptionCounter int64

// EventBus is an observer list with explicit subscribe/unsubscribe. Events
// are delivered synchronously from the scheduler's round loop, so handlers
// must be fast and must not call back into the engine; slow consumers should
// hand events off to their own goroutine.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]EventHandler
	logger   *zap.Logger
}

// NewEventBus creates an event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[EventType]map[string]EventHandler),
		logger:   logger.With(zap.String("component", "event_bus")),
	}
}

// Subscribe registers a handler for one event type and returns a
// subscription id for Unsubscribe.
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]EventHandler)
	}
	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	return id
}

// Unsubscribe removes a subscription by id.
func (b *EventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

// Publish delivers an event to all handlers subscribed to its type. A
// panicking handler is logged and does not affect other handlers or the
// publishing execution.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	src := b.handlers[event.Type]
	handlers := make([]EventHandler, 0, len(src))
	for _, h := range src {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("event_type", string(event.Type)),
						zap.Any("panic", r),
					)
				}
			}()
			h(event)
		}()
	}
}
