package plugin

import (
	"context"
	"time"
)

// Event is a message published on the in-process bus.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler consumes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus delivers events between modules.
type EventBus interface {
	// Publish delivers the event synchronously to all matching handlers.
	Publish(ctx context.Context, event Event) error

	// PublishAsync delivers the event on a separate goroutine.
	PublishAsync(ctx context.Context, event Event)

	// Subscribe registers a handler for one topic and returns an
	// unsubscribe function.
	Subscribe(topic string, handler EventHandler) func()

	// SubscribeAll registers a handler for every topic.
	SubscribeAll(handler EventHandler) func()
}

// Subscription pairs a topic with its handler. An empty Topic receives
// every event.
type Subscription struct {
	Topic   string
	Handler EventHandler
}
