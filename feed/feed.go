// Package feed carries row-level change notifications for the tasks relation
// from the persistence gateway to subscribers. Delivery is at-most-once per
// subscriber. Events published before a handler subscribes, while a NATS
// connection is down, or past a slow consumer's pending limit are lost and
// never redelivered. There is no ordering guarantee across rows.
// Subscribers apply events idempotently by id and reload the full collection
// periodically to recover what was dropped (the server's App.Resync).
package feed

import (
	"context"
	"errors"

	"github.com/c360studio/taskjournal/tasks"
)

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("feed: bus closed")

// Handler receives one change event. Handlers must not block for long; slow
// work belongs on the subscriber's own goroutine.
type Handler func(tasks.ChangeEvent)

// Subscription is a registered handler. Cancel unregisters it and is safe to
// call more than once.
type Subscription interface {
	Cancel()
}

// Bus publishes change events and fans them out to subscribers.
type Bus interface {
	Publish(ctx context.Context, ev tasks.ChangeEvent) error
	Subscribe(h Handler) (Subscription, error)
	Close() error
}

// cancelFunc adapts a function to Subscription.
type cancelFunc func()

func (f cancelFunc) Cancel() { f() }
