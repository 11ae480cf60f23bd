package outreach

import "fmt"

// State is a lifecycle state of a job application under outreach.
type State string

const (
	StateDiscovered        State = "DISCOVERED"
	StateRecruiterPending  State = "RECRUITER_PENDING"
	StateRecruiterResolved State = "RECRUITER_RESOLVED"
	StateNoRecruiterFound  State = "NO_RECRUITER_FOUND"
	StateMessageSent       State = "MESSAGE_SENT"
	StateTracked           State = "TRACKED"
	StateFailed            State = "FAILED"
)

// States lists every state in lifecycle order.
var States = []State{
	StateDiscovered,
	StateRecruiterPending,
	StateRecruiterResolved,
	StateNoRecruiterFound,
	StateMessageSent,
	StateTracked,
	StateFailed,
}

// transitions holds the allowed forward moves. Re-entry into the same state is
// handled separately because it is only legal as a retry.
var transitions = map[State][]State{
	StateDiscovered:        {StateRecruiterPending, StateFailed},
	StateRecruiterPending:  {StateRecruiterResolved, StateNoRecruiterFound, StateFailed},
	StateRecruiterResolved: {StateMessageSent, StateFailed},
	StateMessageSent:       {StateTracked, StateFailed},
}

// ParseState converts a stored state name back into a State.
func ParseState(s string) (State, error) {
	for _, st := range States {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown state %q", s)
}

// Terminal reports whether no automatic transition leaves the state.
func (s State) Terminal() bool {
	switch s {
	case StateTracked, StateNoRecruiterFound, StateFailed:
		return true
	default:
		return false
	}
}

// Retryable reports whether the state may be re-entered after a transient failure.
func (s State) Retryable() bool {
	return s == StateRecruiterPending || s == StateRecruiterResolved || s == StateMessageSent
}

// CanTransition validates a move from s to next.
func (s State) CanTransition(next State) error {
	if s == next {
		if s.Retryable() {
			return nil
		}
		return fmt.Errorf("state %s cannot be re-entered", s)
	}

	for _, allowed := range transitions[s] {
		if allowed == next {
			return nil
		}
	}

	return fmt.Errorf("transition %s -> %s is not allowed", s, next)
}

func (s State) String() string { return string(s) }
