package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToRegisteredObserver(t *testing.T) {
	bus := NewBus(nil)
	received := make(chan Event, 1)
	obs := NewFuncObserver("watcher", func(ctx context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, bus.RegisterObserver(obs))

	event := New(TypeObjectLoaded, "extloader/test", map[string]string{"name": "D"})
	require.NoError(t, bus.NotifyObservers(context.Background(), event))

	select {
	case got := <-received:
		assert.Equal(t, TypeObjectLoaded, got.Type())
	case <-time.After(time.Second):
		t.Fatal("observer was not notified")
	}
}

func TestBusFiltersByEventType(t *testing.T) {
	bus := NewBus(nil)
	received := make(chan Event, 1)
	obs := NewFuncObserver("watcher", func(ctx context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, bus.RegisterObserver(obs, TypeObjectFailed))

	require.NoError(t, bus.NotifyObservers(context.Background(), New(TypeObjectLoaded, "src", nil)))
	select {
	case <-received:
		t.Fatal("observer should not receive unsubscribed event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnregisterStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	received := make(chan Event, 1)
	obs := NewFuncObserver("watcher", func(ctx context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, bus.RegisterObserver(obs))
	require.NoError(t, bus.UnregisterObserver(obs))

	require.NoError(t, bus.NotifyObservers(context.Background(), New(TypeObjectLoaded, "src", nil)))
	select {
	case <-received:
		t.Fatal("unregistered observer should not be notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusRecoversFromPanickingObserver(t *testing.T) {
	errs := make(chan string, 1)
	bus := NewBus(func(observerID, eventType string, err any) {
		errs <- observerID
	})
	obs := NewFuncObserver("bad", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	require.NoError(t, bus.RegisterObserver(obs))
	require.NoError(t, bus.NotifyObservers(context.Background(), New(TypeObjectLoaded, "src", nil)))

	select {
	case id := <-errs:
		assert.Equal(t, "bad", id)
	case <-time.After(time.Second):
		t.Fatal("onError was not called for panicking observer")
	}
}

func TestNewEventIDsAreUnique(t *testing.T) {
	a := New(TypeObjectLoaded, "src", nil)
	b := New(TypeObjectLoaded, "src", nil)
	assert.NotEqual(t, a.ID(), b.ID())
}
