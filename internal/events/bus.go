// Package events broadcasts split lifecycle events to observers.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Delivery is asynchronous; ordered progress for a caller comes from
// split.Run, not from the bus.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// A nil Bus discards the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case SplitStartedEvent:
		event.Publish(b.dispatcher, e)
	case SegmentEncodedEvent:
		event.Publish(b.dispatcher, e)
	case SplitCompletedEvent:
		event.Publish(b.dispatcher, e)
	case SplitFailedEvent:
		event.Publish(b.dispatcher, e)
	case SessionClearedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes a handler whose parameter type selects the event.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e SplitCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SplitStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SegmentEncodedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SplitCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SplitFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionClearedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
