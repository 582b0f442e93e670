package session

import (
	"errors"
	"fmt"

	"github.com/swctools/swctools/internal/protocol"
)

// ErrAuthFailure is matched by every *AuthError.
var ErrAuthFailure = errors.New("authentication failure")

// Bootstrap steps reported by AuthError.
const (
	StepGeneratePlayer = "generate_player"
	StepAuthToken      = "auth_token"
	StepLogin          = "login"
)

// AuthError reports a bootstrap call (player generation, token acquisition
// or login) that the server answered with a non-success status. It is never
// retried by the session.
type AuthError struct {
	Step   string
	Status protocol.StatusCode
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failure during %s: server returned %s (%d)", e.Step, e.Status, int(e.Status))
}

func (e *AuthError) Unwrap() error {
	return ErrAuthFailure
}
