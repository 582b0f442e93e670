package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/swctools/swctools/internal/testutil/testlog"
)

func TestEmitReachesSubscribers(t *testing.T) {
	testlog.Start(t)
	bus := NewEventBus()
	var hits atomic.Int32
	var stamped atomic.Bool
	bus.Subscribe(EventSessionReauth, "a", func(_ context.Context, e Event) error {
		hits.Add(1)
		stamped.Store(!e.Timestamp.IsZero())
		return nil
	})
	bus.Subscribe(EventSessionReauth, "b", func(context.Context, Event) error {
		hits.Add(1)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventSessionReauth, Source: "test"})
	bus.Stop()

	if got := hits.Load(); got != 2 {
		t.Fatalf("hits=%d want 2", got)
	}
	if !stamped.Load() {
		t.Fatalf("event timestamp not set")
	}
}

func TestEmitSyncReturnsHandlerError(t *testing.T) {
	testlog.Start(t)
	bus := NewEventBus()
	boom := errors.New("boom")
	bus.Subscribe(EventHeartbeat, "fails", func(context.Context, Event) error { return boom })

	if err := bus.EmitSync(context.Background(), Event{Type: EventHeartbeat}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if err := bus.EmitSync(context.Background(), Event{Type: EventShutdown}); err != nil {
		t.Fatalf("no subscribers should be a no-op, got %v", err)
	}
}

func TestPanickingHandlerIsContained(t *testing.T) {
	testlog.Start(t)
	bus := NewEventBus()
	var ok atomic.Bool
	bus.Subscribe(EventSessionDead, "panics", func(context.Context, Event) error { panic("bad handler") })
	bus.Subscribe(EventSessionDead, "ok", func(context.Context, Event) error {
		ok.Store(true)
		return nil
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventSessionDead}); err != nil {
		t.Fatalf("panic should not surface as error: %v", err)
	}
	if !ok.Load() {
		t.Fatalf("healthy handler did not run")
	}
}

func TestUnsubscribeAndStop(t *testing.T) {
	testlog.Start(t)
	bus := NewEventBus()
	var hits atomic.Int32
	h := func(context.Context, Event) error {
		hits.Add(1)
		return nil
	}
	bus.Subscribe(EventDriftCorrected, "keep", h)
	bus.Subscribe(EventDriftCorrected, "drop", h)
	bus.Unsubscribe(EventDriftCorrected, "drop")
	if got := bus.HandlerCount(EventDriftCorrected); got != 1 {
		t.Fatalf("handlers=%d want 1", got)
	}

	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventDriftCorrected})
	if err := bus.EmitSync(context.Background(), Event{Type: EventDriftCorrected}); err != nil {
		t.Fatalf("emit after stop: %v", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("stopped bus delivered %d events", got)
	}
}
