// Package health keeps the shared session alive and publishes periodic
// heartbeats describing it.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/util"
)

// Heartbeat is the payload of EventHeartbeat.
type Heartbeat struct {
	Session       session.Status `json:"session"`
	LastCheckOK   bool           `json:"last_check_ok"`
	LastCheckAt   time.Time      `json:"last_check_at"`
	LastError     string         `json:"last_error,omitempty"`
	MemoryPercent float64        `json:"memory_used_percent"`
	Uptime        string         `json:"uptime"`
}

// Manager runs the liveness check and the heartbeat.
type Manager struct {
	cfg      config.HealthConfig
	runner   session.Runner
	eventBus *events.EventBus
	started  time.Time

	mu        sync.RWMutex
	lastOK    bool
	lastCheck time.Time
	lastErr   string
}

// NewManager creates a new health check manager.
func NewManager(cfg config.HealthConfig, runner session.Runner, eventBus *events.EventBus) *Manager {
	return &Manager{
		cfg:      cfg,
		runner:   runner,
		eventBus: eventBus,
		started:  time.Now(),
	}
}

// Start launches the check and heartbeat loops and blocks until ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"session_liveness", m.cfg.CheckIntervalSec, func(ctx context.Context) { m.CheckLiveness(ctx) }},
		{"heartbeat", m.cfg.HeartbeatIntervalSec, m.publishHeartbeat},
	}

	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}

		check := check
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			log.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", len(checks)).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// CheckLiveness makes sure the shared session is live, initializing it
// when it is not. The outcome is remembered for the next heartbeat.
func (m *Manager) CheckLiveness(ctx context.Context) error {
	err := m.runner.Do(func(s *session.Session) error {
		if s.IsLive() {
			return nil
		}
		log.Info().Msg("session not live, re-initializing")
		return s.EnsureLive(ctx)
	})

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.lastOK = err == nil
	m.lastErr = ""
	if err != nil {
		m.lastErr = err.Error()
	}
	m.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("session liveness check failed")
	}
	return err
}

// Snapshot returns the current heartbeat payload.
func (m *Manager) Snapshot() Heartbeat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Heartbeat{
		Session:       m.runner.Status(),
		LastCheckOK:   m.lastOK,
		LastCheckAt:   m.lastCheck,
		LastError:     m.lastErr,
		MemoryPercent: util.MemoryUsedPercent(),
		Uptime:        time.Since(m.started).Round(time.Second).String(),
	}
}

func (m *Manager) publishHeartbeat(ctx context.Context) {
	m.eventBus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "health",
		Payload: m.Snapshot(),
	})
}
