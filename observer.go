package extloader

import (
	"context"
	"fmt"

	"github.com/dispatchkit/extloader/internal/events"
)

// Event is the CloudEvents envelope every loader notification is carried
// in. Never transmitted over the wire; purely an in-process vocabulary.
type Event = events.Event

// Observer and Subject mirror internal/events' notification contract at
// the public API boundary, so callers never need to import an internal
// package to implement one. Bus is the concrete Subject a Loader is
// wired to via Options.Bus; NewBus constructs one.
type Observer = events.Observer
type Subject = events.Subject
type ObserverInfo = events.ObserverInfo
type Bus = events.Bus

// NewBus creates an empty event Bus suitable for Options.Bus. onError, if
// non-nil, is called whenever a registered Observer returns an error or
// panics while handling a notification.
func NewBus(onError func(observerID, eventType string, err any)) *Bus {
	return events.NewBus(onError)
}

// Event type vocabulary emitted by a Loader. Reverse-domain, per the
// CloudEvents convention.
const (
	EventTypeObjectLoaded  = events.TypeObjectLoaded
	EventTypeObjectFailed  = events.TypeObjectFailed
	EventTypeObjectRemoved = events.TypeObjectRemoved
	EventTypeObjectLoading = events.TypeObjectLoading
	EventTypeConfigApplied = events.TypeConfigApplied
)

// NewFunctionalObserver adapts a plain function into an Observer, for
// quick registration without defining a dedicated type.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event Event) error) Observer {
	return events.NewFuncObserver(id, handler)
}

// ValidateEvent checks that event conforms to the CloudEvents
// specification, beyond what the SDK already enforces on construction.
func ValidateEvent(event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("extloader: invalid event: %w", err)
	}
	return nil
}
