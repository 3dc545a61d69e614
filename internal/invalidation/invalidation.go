// Package invalidation announces that cached views of a user are stale.
//
// Writers emit an Event after every successful change to a user record. What
// "invalidating a view" means is up to the Notifier: purging a cache entry,
// publishing a job for other processes, or waking an in-process subscriber.
package invalidation

import (
	"context"
	"errors"
	"time"
)

// Reason describes the change that made the views stale.
type Reason string

const (
	ReasonCreated Reason = "created"
	ReasonUpdated Reason = "updated"
	ReasonDeleted Reason = "deleted"
)

// Event says every view derived from the user with Identity must be refreshed.
type Event struct {
	Identity string    `json:"identity"`
	Reason   Reason    `json:"reason"`
	At       time.Time `json:"at"`
}

// Notifier receives invalidation events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) error { return nil })

// Multi delivers each event to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
