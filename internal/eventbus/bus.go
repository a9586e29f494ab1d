// Package eventbus carries integration events between application services.
//
// Events are polymorphic values registered on the shared registry under
// BaseType. Delivery is synchronous and in publication order: Publish returns
// once every observer and handler has seen every event.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/carp/internal/polymorphic"
)

// BaseType is the polymorphic base of all integration events.
const BaseType polymorphic.BaseType = "dk.cachet.carp.common.application.services.IntegrationEvent"

// Event is an integration event. TypeName is its discriminator.
type Event interface {
	polymorphic.Variant
}

// UnknownEvent is the fallback for event discriminators this process does
// not know.
type UnknownEvent struct {
	polymorphic.Unknown
}

// NewHierarchy creates the event hierarchy on r. Services register their
// event variants on the result.
func NewHierarchy(r *polymorphic.Registry) (*polymorphic.Hierarchy[Event], error) {
	return polymorphic.NewHierarchy(r, BaseType, func(u polymorphic.Unknown) Event {
		return &UnknownEvent{Unknown: u}
	})
}

// Publisher publishes integration events. Services depend on this rather
// than on Bus.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Handler reacts to one event.
type Handler func(ctx context.Context, e Event) error

// Observer sees every published event, before handlers run.
type Observer func(e Event)

// Bus is a synchronous in-process event bus. The zero value is not usable;
// call New.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	observers map[int]Observer
	nextID    int
	logger    *slog.Logger
}

// New creates a Bus. A nil logger means slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers:  make(map[string][]Handler),
		observers: make(map[int]Observer),
		logger:    logger,
	}
}

// NewDiscard creates a Bus that does not log.
func NewDiscard() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Subscribe registers h for events with discriminator eventType.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Observe registers fn for every event and returns a function that removes
// it again.
func (b *Bus) Observe(fn Observer) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers events in order. Handler errors do not stop delivery;
// they are joined and returned.
func (b *Bus) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, e := range events {
		if e == nil {
			errs = append(errs, fmt.Errorf("publish: nil event"))
			continue
		}

		b.mu.RLock()
		observers := make([]Observer, 0, len(b.observers))
		for id := 0; id < b.nextID; id++ {
			if fn, ok := b.observers[id]; ok {
				observers = append(observers, fn)
			}
		}
		handlers := append([]Handler(nil), b.handlers[e.TypeName()]...)
		b.mu.RUnlock()

		for _, fn := range observers {
			fn(e)
		}
		for _, h := range handlers {
			if err := h(ctx, e); err != nil {
				b.logger.Error("event handler failed", "event", e.TypeName(), "error", err)
				errs = append(errs, fmt.Errorf("handle %s: %w", e.TypeName(), err))
			}
		}
		b.logger.Debug("event published", "event", e.TypeName(), "handlers", len(handlers))
	}
	return errors.Join(errs...)
}

// Recorder collects observed events in arrival order until drained.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends e. Its signature matches Observer.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Drain returns the collected events and resets the recorder.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Len returns the number of collected events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
