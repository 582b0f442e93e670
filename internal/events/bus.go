package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HandlerFunc handles a single event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is an in-process publish/subscribe bus. Handlers run on their own
// goroutines so a slow subscriber (MQTT, sqlite) never stalls the session.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	stopped  bool
	inflight sync.WaitGroup
}

type subscription struct {
	name    string
	handler HandlerFunc
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe registers handler for eventType under name.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{name: name, handler: handler})

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// Unsubscribe removes every handler registered under name for eventType.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	kept := eb.handlers[eventType][:0]
	for _, sub := range eb.handlers[eventType] {
		if sub.name != name {
			kept = append(kept, sub)
		}
	}
	eb.handlers[eventType] = kept
}

// snapshot copies the handler list so handlers run without the lock held.
func (eb *EventBus) snapshot(eventType EventType) []subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return nil
	}
	subs := eb.handlers[eventType]
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out
}

func stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// Emit delivers event to its subscribers asynchronously.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	subs := eb.snapshot(event.Type)
	if len(subs) == 0 {
		return
	}
	event = stamp(event)

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emitting event")

	for _, sub := range subs {
		eb.inflight.Add(1)
		go func(sub subscription) {
			defer eb.inflight.Done()
			invoke(ctx, sub, event)
		}(sub)
	}
}

// EmitSync delivers event and waits for every subscriber. It returns the
// first handler error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	subs := eb.snapshot(event.Type)
	if len(subs) == 0 {
		return nil
	}
	event = stamp(event)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub subscription) {
			defer wg.Done()
			if err := invoke(ctx, sub, event); err != nil {
				once.Do(func() { firstErr = err })
			}
		}(sub)
	}
	wg.Wait()
	return firstErr
}

// invoke runs one handler, converting panics into logged errors.
func invoke(ctx context.Context, sub subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", sub.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	err = sub.handler(ctx, event)
	if err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", sub.name).
			Msg("handler returned error")
	}
	return err
}

// Stop rejects further events and waits for in-flight async handlers.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	eb.stopped = true
	eb.mu.Unlock()

	eb.inflight.Wait()
	log.Info().Msg("event bus stopped")
}

// HandlerCount returns the number of handlers registered for eventType.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
