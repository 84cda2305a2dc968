// Package outbox defines the in-process event contract between the order service and
// the background workers that finish deferred compensations.
package outbox

import "context"

// Event names are dotted, e.g. "inventory.release_requested".
type Event interface {
	EventName() string
}

// Handler returning an error only logs; the bus does not redeliver.
type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	// Publish enqueues e. It fails once the bus is stopping or ctx ends first.
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
