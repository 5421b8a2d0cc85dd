package events

import (
	"context"
	"sync"
	"time"
)

// registration pairs an Observer with the event types it filters on. An
// empty eventTypes set means "notify for everything".
type registration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// Bus is a minimal, in-process Subject implementation. Notification is
// fire-and-forget: NotifyObservers dispatches to each interested observer
// in its own goroutine and does not block on slow or misbehaving
// observers, and a panicking observer cannot bring down the caller.
type Bus struct {
	mu        sync.RWMutex
	observers map[string]*registration
	onError   func(observerID, eventType string, err any)
}

// NewBus creates an empty Bus. onError, if non-nil, is called whenever an
// observer returns an error or panics; it is intended for the owner to
// plug in its own logger without this package depending on one.
func NewBus(onError func(observerID, eventType string, err any)) *Bus {
	return &Bus{
		observers: make(map[string]*registration),
		onError:   onError,
	}
}

func (b *Bus) RegisterObserver(observer Observer, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		set[t] = true
	}
	b.observers[observer.ObserverID()] = &registration{
		observer:     observer,
		eventTypes:   set,
		registeredAt: time.Now(),
	}
	return nil
}

func (b *Bus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, observer.ObserverID())
	return nil
}

func (b *Bus) NotifyObservers(ctx context.Context, event Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, reg := range b.observers {
		reg := reg
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		go func() {
			defer func() {
				if r := recover(); r != nil && b.onError != nil {
					b.onError(reg.observer.ObserverID(), event.Type(), r)
				}
			}()
			if err := reg.observer.OnEvent(ctx, event); err != nil && b.onError != nil {
				b.onError(reg.observer.ObserverID(), event.Type(), err)
			}
		}()
	}
	return nil
}

func (b *Bus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(b.observers))
	for _, reg := range b.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		out = append(out, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return out
}
