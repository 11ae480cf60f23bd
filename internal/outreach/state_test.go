package outreach

import (
	"errors"
	"fmt"
	"testing"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StateDiscovered, StateRecruiterPending, true},
		{StateRecruiterPending, StateRecruiterPending, true},
		{StateRecruiterPending, StateRecruiterResolved, true},
		{StateRecruiterPending, StateNoRecruiterFound, true},
		{StateRecruiterResolved, StateMessageSent, true},
		{StateMessageSent, StateTracked, true},
		{StateMessageSent, StateFailed, true},
		{StateDiscovered, StateDiscovered, false},
		{StateRecruiterResolved, StateRecruiterPending, false},
		{StateTracked, StateMessageSent, false},
		{StateNoRecruiterFound, StateRecruiterResolved, false},
		{StateFailed, StateRecruiterPending, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			t.Parallel()
			err := tt.from.CanTransition(tt.to)
			if tt.allowed && err != nil {
				t.Fatalf("expected transition to be allowed, got %v", err)
			}
			if !tt.allowed && err == nil {
				t.Fatalf("expected transition to be rejected")
			}
		})
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{
		StateTracked:          true,
		StateNoRecruiterFound: true,
		StateFailed:           true,
	}

	for _, st := range States {
		if st.Terminal() != terminal[st] {
			t.Fatalf("unexpected terminal flag for %s", st)
		}
	}
}

func TestParseState(t *testing.T) {
	st, err := ParseState("MESSAGE_SENT")
	if err != nil || st != StateMessageSent {
		t.Fatalf("unexpected parse result: %v, %v", st, err)
	}

	if _, err := ParseState("sent"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestIsRetryable(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", &TransientLookupError{Source: "page", Err: errors.New("timeout")})
	if !IsRetryable(wrapped) {
		t.Fatalf("expected wrapped transient lookup error to be retryable")
	}

	if !IsRetryable(&SinkUnavailable{Sink: "sqlite", Err: errors.New("locked")}) {
		t.Fatalf("expected sink error to be retryable")
	}

	if IsRetryable(&TemplateMissingField{TemplateID: "first", Field: "company"}) {
		t.Fatalf("template errors are never retryable")
	}

	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestJobRecordSent(t *testing.T) {
	job := &JobRecord{JobID: "J1"}
	if job.Sent("first") {
		t.Fatalf("nothing has been sent yet")
	}

	job.TemplateID = "first"
	job.SentAt = job.UpdatedAt.AddDate(2024, 0, 0)
	if !job.Sent("first") {
		t.Fatalf("expected first template to be reported as sent")
	}
	if job.Sent("followup") {
		t.Fatalf("followup was not sent")
	}
}
