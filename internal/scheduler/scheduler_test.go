package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/testutil/fakeserver"
	"github.com/swctools/swctools/internal/testutil/testlog"
)

func newTestScheduler(t *testing.T, fake *fakeserver.Server, squads ...string) (*Scheduler, *db.Store, *events.EventBus) {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := events.NewEventBus()
	runner := session.NewLocked(session.New(session.Config{RetryCount: 1}, fake))
	cfg := config.CollectorConfig{Enabled: true, IntervalSec: 60, WatchedSquads: squads, RetentionDays: 7}
	return NewScheduler(cfg, runner, store, bus), store, bus
}

func TestCollectOnceArchivesSnapshots(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	fake.Handle(protocol.ActionGetSquadDetails, func(c fakeserver.Call) (protocol.StatusCode, any) {
		if c.Arg("guildId") != "sq1" {
			return 1500, nil
		}
		return protocol.StatusSuccess, protocol.SquadDetails{ID: "sq1", Name: "Rogue"}
	})
	sched, store, bus := newTestScheduler(t, fake, "sq1", "gone")

	var collected atomic.Int32
	bus.Subscribe(events.EventSnapshotCollected, "test", func(context.Context, events.Event) error {
		collected.Add(1)
		return nil
	})

	n, err := sched.CollectOnce(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored=%d want 2", n)
	}
	bus.Stop()
	if got := collected.Load(); got != 2 {
		t.Fatalf("events=%d want 2", got)
	}

	logins, err := store.ListSnapshots(db.SnapshotLogin, 10)
	if err != nil || len(logins) != 1 || logins[0].PlayerID != fakeserver.GeneratedPlayerID {
		t.Fatalf("login snapshots=%+v err=%v", logins, err)
	}
	squads, err := store.ListSnapshots(db.SnapshotSquad, 10)
	if err != nil || len(squads) != 1 || squads[0].SubjectID != "sq1" {
		t.Fatalf("squad snapshots=%+v err=%v", squads, err)
	}
}

func TestCollectOnceRefreshesEveryRun(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	sched, _, _ := newTestScheduler(t, fake)

	for i := 0; i < 2; i++ {
		if _, err := sched.CollectOnce(context.Background()); err != nil {
			t.Fatalf("collect %d: %v", i+1, err)
		}
	}
	if got := fake.Calls(protocol.ActionPlayerLogin); got != 2 {
		t.Fatalf("logins=%d want 2", got)
	}
}

func TestCollectOnceAuthFailure(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	fake.Always(protocol.ActionGetAuthToken, protocol.StatusAuthenticationFailed)
	sched, store, _ := newTestScheduler(t, fake)

	_, err := sched.CollectOnce(context.Background())
	if !errors.Is(err, session.ErrAuthFailure) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	all, _ := store.ListSnapshots("", 0)
	if len(all) != 0 {
		t.Fatalf("nothing should be stored: %+v", all)
	}
}

func TestPruneUsesRetention(t *testing.T) {
	testlog.Start(t)
	sched, store, _ := newTestScheduler(t, fakeserver.New())
	if _, err := store.SaveSnapshot(db.SnapshotLogin, "p", "p", struct{}{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	sched.Prune(time.Now())
	if all, _ := store.ListSnapshots("", 0); len(all) != 1 {
		t.Fatalf("fresh snapshot pruned")
	}
	sched.Prune(time.Now().Add(8 * 24 * time.Hour))
	if all, _ := store.ListSnapshots("", 0); len(all) != 0 {
		t.Fatalf("expired snapshot kept: %+v", all)
	}
}

func TestNextDailyRun(t *testing.T) {
	testlog.Start(t)
	loc := time.UTC
	before := time.Date(2024, 5, 1, 3, 0, 0, 0, loc)
	if got := nextDailyRun(before, 4, 0); !got.Equal(time.Date(2024, 5, 1, 4, 0, 0, 0, loc)) {
		t.Fatalf("got=%v", got)
	}
	at := time.Date(2024, 5, 1, 4, 0, 0, 0, loc)
	if got := nextDailyRun(at, 4, 0); !got.Equal(time.Date(2024, 5, 2, 4, 0, 0, 0, loc)) {
		t.Fatalf("got=%v", got)
	}
}
