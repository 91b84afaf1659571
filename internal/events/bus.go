// Package events carries the pipeline's named-event notifications: user
// input signals consumed by the rate controller and filter policy, and
// diagnostic events emitted on lifecycle violations.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published on the bus.
const (
	TypeScroll        = "input.scroll"
	TypeWindowChanged = "window.changed"
	TypeDiagnostic    = "pipeline.diagnostic"
)

type Event struct {
	Type      string
	Timestamp time.Time
	Data      map[string]interface{}
}

type Handler interface {
	Handle(event Event)
	GetID() string
}

// HandlerFunc wraps a bare function as a Handler with a generated ID.
type HandlerFunc struct {
	id string
	fn func(Event)
}

func NewHandlerFunc(fn func(Event)) *HandlerFunc {
	return &HandlerFunc{id: uuid.NewString(), fn: fn}
}

func (h *HandlerFunc) Handle(event Event) { h.fn(event) }
func (h *HandlerFunc) GetID() string      { return h.id }

// Bus fans events out to subscribers from a single dispatch goroutine.
// Publish never blocks; events are dropped when the buffer is full.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
	buffer      chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewBus(bufferSize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())

	bus := &Bus{
		subscribers: make(map[string][]Handler),
		buffer:      make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	bus.startWorker()
	return bus
}

// Publish enqueues the event for dispatch. Safe at any lifecycle point:
// after Shutdown the event is silently dropped. The buffer channel is
// never closed, so a publisher racing a shutdown can never panic.
func (b *Bus) Publish(event Event) {
	event.Timestamp = time.Now()

	if b.ctx.Err() != nil {
		return
	}
	select {
	case b.buffer <- event:
	default:
		// Drop event if buffer full to prevent blocking
	}
}

func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

func (b *Bus) Unsubscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[eventType]
	for i, h := range handlers {
		if h.GetID() == handler.GetID() {
			b.subscribers[eventType] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
}

func (b *Bus) Shutdown() {
	b.closeOnce.Do(b.cancel)
	b.wg.Wait()
}

func (b *Bus) startWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case <-b.ctx.Done():
				return
			case event := <-b.buffer:
				b.dispatchEvent(event)
			}
		}
	}()
}

func (b *Bus) dispatchEvent(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[event.Type]))
	copy(handlers, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, h := range handlers {
		h.Handle(event)
	}
}
