// Package retry holds the single retry policy shared by lookups, delivery and
// tracker sync.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/spigell/recruiter-outreach/internal/utils"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultMultiplier  = 2.0

	maxBackoff = 5 * time.Minute
)

// Policy decides how many failed attempts are tolerated and how long to wait between them.
// Attempts counts failures: a record whose attempts exceed MaxAttempts is given up on.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Multiplier  float64
}

// New builds a policy from the configuration surface, falling back to defaults for
// zero values. A negative base disables waiting.
func New(maxAttempts int, backoffBaseMS int, multiplier float64) Policy {
	p := Policy{
		MaxAttempts: maxAttempts,
		BackoffBase: time.Duration(backoffBaseMS) * time.Millisecond,
		Multiplier:  multiplier,
	}

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if backoffBaseMS == 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.BackoffBase < 0 {
		p.BackoffBase = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}

	return p
}

// Exhausted reports whether the given failure count is past the ceiling.
func (p Policy) Exhausted(attempts int) bool {
	return attempts > p.MaxAttempts
}

// Backoff returns the pause before retrying after the n-th failure (n starts at 1).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffBase <= 0 {
		return 0
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.BackoffBase) * math.Pow(mult, float64(n-1))
	if d > float64(maxBackoff) || math.IsInf(d, 0) {
		return maxBackoff
	}

	return time.Duration(d)
}

// Wait sleeps for Backoff(n) unless ctx ends first.
func (p Policy) Wait(ctx context.Context, n int) error {
	return utils.WaitFor(ctx, p.Backoff(n))
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// ceiling is passed. onRetry, when set, is called before each wait.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, onRetry func(n int, err error), fn func(ctx context.Context) error) error {
	failures := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		failures++
		if p.Exhausted(failures) {
			return err
		}

		if onRetry != nil {
			onRetry(failures, err)
		}

		if werr := p.Wait(ctx, failures); werr != nil {
			return errors.Join(err, werr)
		}
	}
}
