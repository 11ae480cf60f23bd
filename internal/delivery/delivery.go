// Package delivery hands rendered messages to the outside world.
package delivery

import (
	"context"
	"fmt"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// Channel delivers a message to a recruiter. Failures are returned as *Error.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg *outreach.OutreachMessage, recruiter *outreach.Recruiter) error
}

// Error is a delivery failure. Retryable tells whether the same delivery may
// succeed later; the reason itself is opaque to the caller.
type Error struct {
	Channel   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s delivery failed (%s): %v", e.Channel, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary lets outreach.IsRetryable classify delivery failures.
func (e *Error) Temporary() bool { return e.Retryable }

func retryable(channel string, err error) *Error {
	return &Error{Channel: channel, Retryable: true, Err: err}
}

func permanent(channel string, err error) *Error {
	return &Error{Channel: channel, Retryable: false, Err: err}
}
