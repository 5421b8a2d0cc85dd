// Package events provides an in-process Observer/Subject notification bus
// built on the CloudEvents envelope format. It carries no transport of its
// own: events never leave the process, and there is no wire format beyond
// the in-memory cloudevents.Event struct.
package events

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event is an alias for the CloudEvents Event type, kept for convenience so
// callers outside this package don't need to import the SDK directly.
type Event = cloudevents.Event

// Event type vocabulary for loader status transitions. These follow the
// CloudEvents reverse-domain convention.
const (
	TypeObjectLoaded   = "com.extloader.object.loaded"
	TypeObjectFailed   = "com.extloader.object.failed"
	TypeObjectRemoved  = "com.extloader.object.removed"
	TypeObjectLoading  = "com.extloader.object.loading"
	TypeConfigApplied  = "com.extloader.config.applied"
)

// New builds a CloudEvent with the given type, source, and JSON-encodable
// payload. The event ID is a time-ordered UUIDv7 so consumers can order
// events emitted in quick succession without relying on wall-clock time
// alone.
func New(eventType, source string, data any) Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Observer receives notifications from a Subject.
type Observer interface {
	// OnEvent is called for every event the observer is subscribed to.
	// Implementations should return quickly; the bus does not wait for
	// slow observers before notifying the next one.
	OnEvent(ctx context.Context, event Event) error

	// ObserverID uniquely identifies this observer for registration
	// bookkeeping.
	ObserverID() string
}

// Subject is the interface implemented by anything that emits events to
// registered Observers.
type Subject interface {
	RegisterObserver(observer Observer, eventTypes ...string) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event Event) error
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a currently registered observer, for
// introspection.
type ObserverInfo struct {
	ID           string
	EventTypes   []string
	RegisteredAt time.Time
}

// FuncObserver adapts a plain function into an Observer.
type FuncObserver struct {
	id      string
	handler func(ctx context.Context, event Event) error
}

// NewFuncObserver creates an Observer that delegates to handler.
func NewFuncObserver(id string, handler func(ctx context.Context, event Event) error) *FuncObserver {
	return &FuncObserver{id: id, handler: handler}
}

func (f *FuncObserver) OnEvent(ctx context.Context, event Event) error { return f.handler(ctx, event) }
func (f *FuncObserver) ObserverID() string                             { return f.id }
