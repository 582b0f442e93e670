package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/swctools/swctools/internal/testutil/testlog"
)

func TestClassifyKnownCodes(t *testing.T) {
	testlog.Start(t)
	want := map[StatusCode]Outcome{
		StatusZero:                 OutcomeSuccess,
		StatusSuccess:              OutcomeSuccess,
		StatusAuthenticationFailed: OutcomeRecoverable,
		StatusAuthorizationFailed:  OutcomeRecoverable,
		StatusLoginTimeMismatch:    OutcomeRecoverable,
		StatusTimestampTooEarly:    OutcomeRecoverable,
		StatusTimestampTooLate:     OutcomeRecoverable,
		StatusUnknownAuthProblem:   OutcomeRecoverable,
	}
	codes := KnownStatusCodes()
	if len(codes) != len(want) {
		t.Fatalf("known codes=%v", codes)
	}
	for _, code := range codes {
		if got := Classify(code); got != want[code] {
			t.Fatalf("Classify(%s)=%s want=%s", code, got, want[code])
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	testlog.Start(t)
	for code := StatusCode(-5); code < 2000; code++ {
		switch Classify(code) {
		case OutcomeSuccess, OutcomeRecoverable, OutcomeFatal:
		default:
			t.Fatalf("Classify(%d) out of range", code)
		}
	}
	for _, code := range []StatusCode{1, 201, 500, 1000, 1305, 1398, 1400, 99999} {
		if got := Classify(code); got != OutcomeFatal {
			t.Fatalf("Classify(%d)=%s want fatal", code, got)
		}
	}
}

func TestDriftCorrection(t *testing.T) {
	testlog.Start(t)
	for _, code := range KnownStatusCodes() {
		want := int64(0)
		switch code {
		case StatusTimestampTooEarly:
			want = 1
		case StatusTimestampTooLate:
			want = -1
		}
		if got := DriftCorrection(code); got != want {
			t.Fatalf("DriftCorrection(%s)=%d want=%d", code, got, want)
		}
	}
	if got := DriftCorrection(1500); got != 0 {
		t.Fatalf("unknown code drift=%d", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	testlog.Start(t)
	if got := StatusTimestampTooLate.String(); got != "timestamp_too_late" {
		t.Fatalf("got=%q", got)
	}
	if got := StatusCode(1500).String(); got != "status(1500)" {
		t.Fatalf("got=%q", got)
	}
}

func TestStatusErrorMatchesProtocolFailure(t *testing.T) {
	testlog.Start(t)
	err := fmt.Errorf("visit: %w", &StatusError{Status: 1500})
	if !errors.Is(err, ErrProtocolFailure) {
		t.Fatalf("expected ErrProtocolFailure, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 1500 {
		t.Fatalf("status not carried: %v", err)
	}
}
