package utils

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	EventNewMessage      = "new_message"
	EventRealtimeState   = "realtime_state"
	EventTimelineUpdated = "timeline_updated"
	EventDeliveryRetry   = "delivery_retry"
	EventDeliveryFailed  = "delivery_failed"
	EventSessionChanged  = "session_changed"
	EventCaptureChanged  = "capture_changed"
)

type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Handler func(event Event)

// EventBus is a buffered in-process queue. Publish never blocks; handlers run
// one at a time on the goroutine that calls Run, in publish order.
type EventBus struct {
	subscribers map[string][]Handler
	wildcard    []Handler
	events      chan Event
	mu          sync.RWMutex
	logger      *zap.SugaredLogger
}

func NewEventBus(logger *zap.Logger, size int) *EventBus {
	if size <= 0 {
		size = 100
	}
	return &EventBus{
		subscribers: make(map[string][]Handler),
		events:      make(chan Event, size),
		logger:      logger.Sugar(),
	}
}

func (eb *EventBus) Publish(event string, data interface{}) {
	e := Event{Event: event, Data: data}
	select {
	case eb.events <- e:
	default:
		eb.logger.Warnw("Event dropped, bus is full", "event", event)
	}
}

func (eb *EventBus) Subscribe(event string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[event] = append(eb.subscribers[event], handler)
}

// SubscribeAll registers a handler that receives every event.
func (eb *EventBus) SubscribeAll(handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.wildcard = append(eb.wildcard, handler)
}

// Run dispatches queued events until ctx is done.
func (eb *EventBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-eb.events:
			eb.dispatch(e)
		}
	}
}

func (eb *EventBus) dispatch(e Event) {
	eb.mu.RLock()
	handlers := make([]Handler, 0, len(eb.subscribers[e.Event])+len(eb.wildcard))
	handlers = append(handlers, eb.subscribers[e.Event]...)
	handlers = append(handlers, eb.wildcard...)
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Errorw("Event handler panicked", "event", e.Event, "panic", r)
				}
			}()
			h(e)
		}()
	}
}
