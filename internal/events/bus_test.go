package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus(8)
	defer bus.Shutdown()

	got := make(chan Event, 1)
	bus.Subscribe(TypeScroll, NewHandlerFunc(func(e Event) {
		got <- e
	}))

	bus.Publish(Event{Type: TypeScroll})

	select {
	case e := <-got:
		if e.Timestamp.IsZero() {
			t.Fatalf("bus must stamp events")
		}
	case <-time.After(time.Second):
		t.Fatalf("event never dispatched")
	}
}

func TestUnsubscribedHandlerStopsReceiving(t *testing.T) {
	bus := NewBus(8)
	defer bus.Shutdown()

	got := make(chan Event, 2)
	h := NewHandlerFunc(func(e Event) { got <- e })
	bus.Subscribe(TypeWindowChanged, h)

	bus.Publish(Event{Type: TypeWindowChanged})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatalf("first event never dispatched")
	}

	bus.Unsubscribe(TypeWindowChanged, h)
	bus.Publish(Event{Type: TypeWindowChanged})

	select {
	case <-got:
		t.Fatalf("unsubscribed handler still receiving")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishAfterShutdownIsDroppedNotPanic(t *testing.T) {
	bus := NewBus(2)
	got := make(chan Event, 4)
	bus.Subscribe(TypeScroll, NewHandlerFunc(func(e Event) { got <- e }))

	bus.Shutdown()

	// Late publishers (signal sources, render-context diagnostics that
	// outlive teardown) must be absorbed silently.
	bus.Publish(Event{Type: TypeScroll})
	bus.Publish(Event{Type: TypeDiagnostic})
	bus.Shutdown()

	select {
	case <-got:
		t.Fatalf("event dispatched after shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventsForOtherTypesNotDelivered(t *testing.T) {
	bus := NewBus(8)
	defer bus.Shutdown()

	got := make(chan Event, 1)
	bus.Subscribe(TypeScroll, NewHandlerFunc(func(e Event) { got <- e }))

	bus.Publish(Event{Type: TypeDiagnostic})

	select {
	case <-got:
		t.Fatalf("handler received an event type it never subscribed to")
	case <-time.After(50 * time.Millisecond):
	}
}
