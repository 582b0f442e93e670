// Package scheduler runs the background snapshot collector: it periodically
// refreshes the session, archives what the server returns and prunes old
// snapshots.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/util"
)

// SnapshotStore is the subset of db.Store used by the collector.
type SnapshotStore interface {
	SaveSnapshot(kind, subjectID, playerID string, payload any) (int64, error)
	PruneSnapshots(cutoff time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      config.CollectorConfig
	runner   session.Runner
	store    SnapshotStore
	eventBus *events.EventBus
	logger   zerolog.Logger
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg config.CollectorConfig, runner session.Runner, store SnapshotStore, eventBus *events.EventBus) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		store:    store,
		eventBus: eventBus,
		logger:   util.ComponentLogger("collector"),
	}
}

// Start runs the collector and retention loops until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("snapshot collector disabled")
		return
	}
	s.logger.Info().
		Int("interval_sec", s.cfg.IntervalSec).
		Strs("watched_squads", s.cfg.WatchedSquads).
		Msg("scheduler started")

	go s.runCollectionLoop(ctx)
	if s.cfg.RetentionDays > 0 {
		go s.runRetentionLoop(ctx)
	}

	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runCollectionLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.CollectOnce(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot collection failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runRetentionLoop prunes expired snapshots once a day, starting with the
// next 04:00 local time.
func (s *Scheduler) runRetentionLoop(ctx context.Context) {
	for {
		nextRun := nextDailyRun(time.Now(), 4, 0)
		s.logger.Debug().Time("next_run", nextRun).Msg("snapshot retention scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(nextRun)):
			s.Prune(time.Now())
		}
	}
}

// Prune deletes snapshots older than the retention window relative to now.
func (s *Scheduler) Prune(now time.Time) {
	cutoff := now.Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	if _, err := s.store.PruneSnapshots(cutoff); err != nil {
		s.logger.Warn().Err(err).Msg("snapshot retention failed")
	}
}

type capture struct {
	kind      string
	subjectID string
	payload   any
}

// CollectOnce refreshes the session and archives the login snapshot and the
// details of every watched squad. It returns the number of snapshots
// stored. A squad that fails to load is logged and skipped.
func (s *Scheduler) CollectOnce(ctx context.Context) (int, error) {
	var (
		playerID string
		captures []capture
	)

	err := s.runner.Do(func(sess *session.Session) error {
		if err := sess.Refresh(ctx); err != nil {
			return err
		}
		player, err := sess.LoginSnapshot(ctx)
		if err != nil {
			return err
		}
		playerID = player.PlayerID
		captures = append(captures, capture{db.SnapshotLogin, player.PlayerID, player})

		for _, squadID := range s.cfg.WatchedSquads {
			details, err := sess.SquadDetails(ctx, squadID)
			if err != nil {
				if errors.Is(err, protocol.ErrProtocolFailure) {
					s.logger.Warn().Err(err).Str("squad", squadID).Msg("skipping watched squad")
					continue
				}
				return err
			}
			captures = append(captures, capture{db.SnapshotSquad, squadID, details})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, c := range captures {
		id, err := s.store.SaveSnapshot(c.kind, c.subjectID, playerID, c.payload)
		if err != nil {
			return stored, err
		}
		stored++
		s.eventBus.Emit(ctx, events.Event{
			Type:    events.EventSnapshotCollected,
			Source:  "collector",
			Payload: events.SnapshotPayload{ID: id, Kind: c.kind, SubjectID: c.subjectID},
		})
	}

	s.logger.Info().Int("snapshots", stored).Str("player_id", playerID).Msg("snapshot collection completed")
	return stored, nil
}

// nextDailyRun returns the next occurrence of hour:minute after now.
func nextDailyRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
