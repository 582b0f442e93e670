package health

import (
	"context"
	"testing"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/testutil/fakeserver"
	"github.com/swctools/swctools/internal/testutil/testlog"
)

func TestCheckLivenessInitializesOnce(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	runner := session.NewLocked(session.New(session.Config{RetryCount: 3}, fake))
	m := NewManager(config.HealthConfig{}, runner, events.NewEventBus())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.CheckLiveness(ctx); err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
	}
	if got := fake.Calls(protocol.ActionPlayerLogin); got != 1 {
		t.Fatalf("logins=%d want 1", got)
	}

	hb := m.Snapshot()
	if !hb.LastCheckOK || !hb.Session.Live || hb.Session.PlayerID != fakeserver.GeneratedPlayerID {
		t.Fatalf("heartbeat=%+v", hb)
	}
}

func TestCheckLivenessRecordsFailure(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	fake.Always(protocol.ActionPlayerLogin, protocol.StatusAuthorizationFailed)
	runner := session.NewLocked(session.New(session.Config{PlayerID: "p", PlayerSecret: "s"}, fake))
	m := NewManager(config.HealthConfig{}, runner, events.NewEventBus())

	if err := m.CheckLiveness(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}
	hb := m.Snapshot()
	if hb.LastCheckOK || hb.LastError == "" || hb.Session.Live {
		t.Fatalf("heartbeat=%+v", hb)
	}
}

func TestPublishHeartbeat(t *testing.T) {
	testlog.Start(t)
	bus := events.NewEventBus()
	runner := session.NewLocked(session.New(session.Config{}, fakeserver.New()))
	m := NewManager(config.HealthConfig{}, runner, bus)

	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventHeartbeat, "test", func(_ context.Context, e events.Event) error {
		got <- e
		return nil
	})
	m.publishHeartbeat(context.Background())
	bus.Stop()

	e := <-got
	if _, ok := e.Payload.(Heartbeat); !ok || e.Source != "health" {
		t.Fatalf("event=%+v", e)
	}
}
