// Package session manages one authenticated player's connection to the game
// server: identity, auth token, login snapshot, clock drift correction and
// liveness, plus the authenticated request cycle with typed retries.
//
// A Session is not safe for concurrent use. Share one between goroutines
// through Locked.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/connector"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
)

// state is everything a request cycle reads and the recovery path mutates.
// The retry loop owns a copy and hands back the updated value when done.
type state struct {
	identity      Identity
	token         string
	login         *protocol.Player
	lastLoginTime int64
	drift         int64
	live          bool
}

// Session is a single player's authenticated session.
type Session struct {
	cfg    Config
	sender connector.Sender
	codec  protocol.Codec
	bus    *events.EventBus

	now      func() time.Time
	newToken func() string

	skipTimestamp bool
	st            state
}

// Option customizes a Session.
type Option func(*Session)

// WithCodec replaces the default JSON codec.
func WithCodec(c protocol.Codec) Option {
	return func(s *Session) { s.codec = c }
}

// WithEventBus publishes lifecycle events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Session) { s.bus = bus }
}

// WithClock sets the clock used for command timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTokenSource sets the generator for per-command correlation tokens.
func WithTokenSource(fn func() string) Option {
	return func(s *Session) { s.newToken = fn }
}

// New creates a session that talks through sender. Nothing is sent until
// the first Initialize or public operation.
func New(cfg Config, sender connector.Sender, opts ...Option) *Session {
	if cfg.RetryCount < 0 {
		log.Warn().Int("retry_count", cfg.RetryCount).Msg("negative retry count, using 0")
		cfg.RetryCount = 0
	}

	s := &Session{
		cfg:           cfg,
		sender:        sender,
		codec:         protocol.JSONCodec{},
		now:           time.Now,
		newToken:      uuid.NewString,
		skipTimestamp: cfg.SkipTimestamp,
		st: state{
			identity: Identity{PlayerID: cfg.PlayerID, Secret: cfg.PlayerSecret},
			drift:    cfg.DriftOffset,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize establishes the session from scratch: it generates an identity
// when none is set, acquires an auth token and logs in. The drift offset is
// kept. A non-success status on any step yields an *AuthError.
func (s *Session) Initialize(ctx context.Context) error {
	st, err := s.bootstrap(ctx, s.st)
	s.st = st
	return err
}

// Refresh unconditionally re-initializes the session. The identity and the
// drift offset survive.
func (s *Session) Refresh(ctx context.Context) error {
	log.Debug().Str("player_id", s.st.identity.PlayerID).Msg("refreshing session")
	return s.Initialize(ctx)
}

// EnsureLive initializes the session if it is not live, then blocks for the
// configured settle delay so the server can catch up with the new login.
func (s *Session) EnsureLive(ctx context.Context) error {
	if s.st.live {
		return nil
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	time.Sleep(s.cfg.SettleDelay)
	return nil
}

func (s *Session) bootstrap(ctx context.Context, st state) (state, error) {
	st.live = false

	if st.identity.IsZero() {
		res, err := dispatch[protocol.GeneratedPlayer](ctx, s, protocol.NewMessage(protocol.GeneratePlayer()))
		if err != nil {
			return st, err
		}
		if protocol.Classify(res.Status) != protocol.OutcomeSuccess {
			return st, &AuthError{Step: StepGeneratePlayer, Status: res.Status}
		}
		st.identity = Identity{PlayerID: res.Result.PlayerID, Secret: res.Result.Secret}

		log.Info().Str("player_id", st.identity.PlayerID).Msg("generated new player")
		s.emit(ctx, events.EventIdentityGenerated, events.IdentityPayload{
			PlayerID: st.identity.PlayerID,
			Secret:   st.identity.Secret,
		})
	}

	auth, err := dispatch[string](ctx, s, protocol.NewMessage(protocol.GetAuthToken(st.identity.PlayerID, st.identity.Secret)))
	if err != nil {
		return st, err
	}
	if protocol.Classify(auth.Status) != protocol.OutcomeSuccess {
		return st, &AuthError{Step: StepAuthToken, Status: auth.Status}
	}
	st.token = auth.Result

	login := protocol.NewMessage(protocol.PlayerLogin(st.identity.PlayerID))
	login.AuthKey = st.token
	res, err := dispatch[protocol.Player](ctx, s, login)
	if err != nil {
		return st, err
	}
	if protocol.Classify(res.Status) != protocol.OutcomeSuccess {
		return st, &AuthError{Step: StepLogin, Status: res.Status}
	}

	player := res.Result
	st.login = &player
	st.lastLoginTime = player.Liveness.LastLoginTime
	st.live = true

	log.Info().
		Str("player_id", st.identity.PlayerID).
		Int64("last_login_time", st.lastLoginTime).
		Int64("drift", st.drift).
		Msg("session initialized")
	s.emit(ctx, events.EventSessionInitialized, events.SessionPayload{
		PlayerID:    st.identity.PlayerID,
		DriftOffset: st.drift,
	})

	return st, nil
}

// dispatch encodes msg, sends it and decodes the first command result.
// Transport and codec failures are wrapped, never classified.
func dispatch[T any](ctx context.Context, s *Session, msg *protocol.Message) (protocol.Result[T], error) {
	var zero protocol.Result[T]

	payload, err := s.codec.Encode(msg)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s: %w", msg, err)
	}

	raw, err := s.sender.Send(ctx, payload)
	if err != nil {
		return zero, fmt.Errorf("failed to send %s: %w", msg, err)
	}

	resp, err := protocol.DecodeResponse[T](s.codec, raw)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", msg, err)
	}

	first, err := resp.First()
	if err != nil {
		return zero, fmt.Errorf("%s: %w", msg, err)
	}
	return first, nil
}

func (s *Session) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, events.Event{
		Type:    eventType,
		Source:  "session",
		Payload: payload,
	})
}

// Identity returns the current identity; zero until one is configured or
// generated.
func (s *Session) Identity() Identity {
	return s.st.identity
}

// IsLive reports whether the session believes its token is valid.
func (s *Session) IsLive() bool {
	return s.st.live
}

// SkipTimestamp reports whether timestamp emission is suppressed.
func (s *Session) SkipTimestamp() bool {
	return s.skipTimestamp
}

// SetSkipTimestamp toggles timestamp suppression for deterministic runs.
func (s *Session) SetSkipTimestamp(skip bool) {
	s.skipTimestamp = skip
}

// DriftOffset returns the cumulative clock drift correction in seconds.
func (s *Session) DriftOffset() int64 {
	return s.st.drift
}

// SetDriftOffset overrides the drift correction.
func (s *Session) SetDriftOffset(offset int64) {
	s.st.drift = offset
}

// Status is a read-only view of the session for status displays.
type Status struct {
	PlayerID      string `json:"player_id"`
	Live          bool   `json:"live"`
	Authenticated bool   `json:"authenticated"`
	LastLoginTime int64  `json:"last_login_time"`
	DriftOffset   int64  `json:"drift_offset"`
	SkipTimestamp bool   `json:"skip_timestamp"`
	RetryCount    int    `json:"retry_count"`
}

// Status returns the current session status.
func (s *Session) Status() Status {
	return Status{
		PlayerID:      s.st.identity.PlayerID,
		Live:          s.st.live,
		Authenticated: s.st.token != "",
		LastLoginTime: s.st.lastLoginTime,
		DriftOffset:   s.st.drift,
		SkipTimestamp: s.skipTimestamp,
		RetryCount:    s.cfg.RetryCount,
	}
}
