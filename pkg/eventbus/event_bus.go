// Package eventbus carries workflow lifecycle events between the API, the trigger service and workers.
package eventbus

import (
	"context"
	"fmt"

	"github.com/dukex/flowexec/pkg/events"
)

// Event is anything that can be published; its type routes it to a handler.
type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event keyed by key; events with the same key keep their order on partitioned transports.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers the handler for one event type, replacing any previous one.
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event as returned by events.Decode.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// On registers a handler that receives the decoded *T for eventType.
// A payload of any other type is rejected, which nacks the message.
func On[T any](sub EventSubscriber, eventType events.EventType, handler func(ctx context.Context, event *T) error) error {
	return sub.Handle(eventType, func(ctx context.Context, event any) error {
		typed, ok := event.(*T)
		if !ok {
			return fmt.Errorf("unexpected event %T for %s", event, eventType)
		}

		return handler(ctx, typed)
	})
}
