package session

import "time"

const (
	// DefaultRetryCount bounds recoveries from recoverable statuses per call.
	DefaultRetryCount = 3

	// DefaultSettleDelay is the pause after a lazy (re-)initialization.
	DefaultSettleDelay = 2 * time.Second
)

// Identity is the player credential pair. It never changes once set.
type Identity struct {
	PlayerID string
	Secret   string
}

// IsZero reports whether no identity has been established yet.
func (id Identity) IsZero() bool {
	return id.PlayerID == ""
}

// Config holds the tunables of a Session.
type Config struct {
	// Identity to log in with. Left empty, a fresh player is generated
	// during the first Initialize.
	PlayerID     string
	PlayerSecret string

	// RetryCount is the recoverable-status budget of a single call.
	RetryCount int

	// SettleDelay is slept after a lazy initialization in EnsureLive.
	SettleDelay time.Duration

	// SkipTimestamp stamps protocol.SkipTimestamp instead of the clock.
	SkipTimestamp bool

	// DriftOffset seeds the clock drift correction, in seconds.
	DriftOffset int64
}

// DefaultConfig returns a config with the default retry budget and settle delay.
func DefaultConfig() Config {
	return Config{
		RetryCount:  DefaultRetryCount,
		SettleDelay: DefaultSettleDelay,
	}
}
