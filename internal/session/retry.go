package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
)

// execute runs msg through the authenticated request cycle and returns the
// first command's result. The retry budget is read once here.
func execute[T any](ctx context.Context, s *Session, msg *protocol.Message) (T, error) {
	st, result, err := run[T](ctx, s, s.st, msg, s.cfg.RetryCount)
	s.st = st
	return result, err
}

// run is the bounded retry loop. Each attempt re-stamps msg from st; each
// recoverable status with budget left applies its drift correction, performs
// a full re-initialization and costs one unit of budget.
func run[T any](ctx context.Context, s *Session, st state, msg *protocol.Message, budget int) (state, T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		s.prepare(st, msg)

		res, err := dispatch[T](ctx, s, msg)
		if err != nil {
			return st, zero, err
		}

		switch protocol.Classify(res.Status) {
		case protocol.OutcomeSuccess:
			return st, res.Result, nil

		case protocol.OutcomeRecoverable:
			payload := events.SessionPayload{
				PlayerID:   st.identity.PlayerID,
				Action:     msg.Actions(),
				Status:     int(res.Status),
				StatusName: res.Status.String(),
				Attempt:    attempt,
			}

			if budget <= 0 {
				st.live = false
				payload.DriftOffset = st.drift
				log.Warn().
					Str("action", msg.Actions()).
					Stringer("status", res.Status).
					Int("attempt", attempt).
					Msg("retry budget exhausted, marking session dead")
				s.emit(ctx, events.EventSessionDead, payload)
				return st, zero, &protocol.StatusError{Status: res.Status}
			}
			budget--

			if delta := protocol.DriftCorrection(res.Status); delta != 0 {
				st.drift += delta
				log.Info().
					Stringer("status", res.Status).
					Int64("drift", st.drift).
					Msg("adjusted clock drift")
				payload.DriftOffset = st.drift
				s.emit(ctx, events.EventDriftCorrected, payload)
			}

			log.Info().
				Str("action", msg.Actions()).
				Stringer("status", res.Status).
				Int("attempt", attempt).
				Int("budget_left", budget).
				Msg("recoverable status, re-authenticating")

			st, err = s.bootstrap(ctx, st)
			if err != nil {
				return st, zero, err
			}
			payload.DriftOffset = st.drift
			s.emit(ctx, events.EventSessionReauth, payload)

		default:
			log.Warn().
				Str("action", msg.Actions()).
				Stringer("status", res.Status).
				Msg("fatal status")
			s.emit(ctx, events.EventProtocolFailure, events.SessionPayload{
				PlayerID:    st.identity.PlayerID,
				Action:      msg.Actions(),
				Status:      int(res.Status),
				StatusName:  res.Status.String(),
				DriftOffset: st.drift,
				Attempt:     attempt,
			})
			return st, zero, &protocol.StatusError{Status: res.Status}
		}
	}
}

// prepare stamps the current token onto msg. Time-sensitive batches also get
// the login time, a fresh correlation token per command and, for commands
// that need one, a timestamp biased by the drift offset.
func (s *Session) prepare(st state, msg *protocol.Message) {
	msg.AuthKey = st.token
	if !msg.NeedsTime() {
		return
	}

	msg.LastLoginTime = st.lastLoginTime
	for _, c := range msg.Commands {
		c.Token = s.newToken()
		if !c.NeedsTime() {
			continue
		}
		if s.skipTimestamp {
			c.Time = protocol.SkipTimestamp
		} else {
			c.Time = s.now().Unix() + st.drift
		}
	}
}
