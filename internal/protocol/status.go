package protocol

import (
	"errors"
	"fmt"
	"sort"
)

// StatusCode is the per-command status returned by the game server.
type StatusCode int

// Known status codes. Anything not listed here is fatal.
const (
	StatusZero                 StatusCode = 0
	StatusSuccess              StatusCode = 200
	StatusAuthenticationFailed StatusCode = 1300
	StatusAuthorizationFailed  StatusCode = 1301
	StatusLoginTimeMismatch    StatusCode = 1302
	StatusTimestampTooEarly    StatusCode = 1303
	StatusTimestampTooLate     StatusCode = 1304
	StatusUnknownAuthProblem   StatusCode = 1399
)

// Outcome is the action class a status code maps to.
type Outcome int

const (
	OutcomeFatal Outcome = iota
	OutcomeSuccess
	OutcomeRecoverable
)

var outcomeStrings = map[Outcome]string{
	OutcomeFatal:       "fatal",
	OutcomeSuccess:     "success",
	OutcomeRecoverable: "recoverable",
}

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return "fatal"
}

type statusInfo struct {
	name    string
	outcome Outcome
	drift   int64
}

// statusTable is the single source of truth for status interpretation.
var statusTable = map[StatusCode]statusInfo{
	StatusZero:                 {"zero", OutcomeSuccess, 0},
	StatusSuccess:              {"success", OutcomeSuccess, 0},
	StatusAuthenticationFailed: {"authentication_failed", OutcomeRecoverable, 0},
	StatusAuthorizationFailed:  {"authorization_failed", OutcomeRecoverable, 0},
	StatusLoginTimeMismatch:    {"login_time_mismatch", OutcomeRecoverable, 0},
	StatusTimestampTooEarly:    {"timestamp_too_early", OutcomeRecoverable, 1},
	StatusTimestampTooLate:     {"timestamp_too_late", OutcomeRecoverable, -1},
	StatusUnknownAuthProblem:   {"unknown_auth_problem", OutcomeRecoverable, 0},
}

// Classify maps a status code to its action class. It is total: unknown
// codes are fatal.
func Classify(code StatusCode) Outcome {
	if info, ok := statusTable[code]; ok {
		return info.outcome
	}
	return OutcomeFatal
}

// DriftCorrection returns the adjustment to apply to the session's clock
// drift offset after receiving code.
func DriftCorrection(code StatusCode) int64 {
	return statusTable[code].drift
}

// KnownStatusCodes returns every code with a dedicated table entry, sorted.
func KnownStatusCodes() []StatusCode {
	codes := make([]StatusCode, 0, len(statusTable))
	for code := range statusTable {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// String returns the symbolic name of the code, or its number when unknown.
func (c StatusCode) String() string {
	if info, ok := statusTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("status(%d)", int(c))
}

var (
	// ErrProtocolFailure is matched by every *StatusError.
	ErrProtocolFailure = errors.New("protocol failure")

	// ErrEmptyResponse is returned when a response envelope has no results.
	ErrEmptyResponse = errors.New("response contains no command results")
)

// StatusError reports a fatal status, or a recoverable one whose retry
// budget ran out. It carries the last status observed.
type StatusError struct {
	Status StatusCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protocol failure: server returned %s (%d)", e.Status, int(e.Status))
}

func (e *StatusError) Unwrap() error {
	return ErrProtocolFailure
}
