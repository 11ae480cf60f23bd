package delivery

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/utils"
)

// Throttle spaces deliveries out: at most one per interval, plus a random
// pause of up to jitter before each send.
type Throttle struct {
	next    Channel
	limiter *rate.Limiter
	jitter  time.Duration
}

func NewThrottle(next Channel, interval, jitter time.Duration) Channel {
	if interval <= 0 && jitter <= 0 {
		return next
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Throttle{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		jitter:  jitter,
	}
}

func (t *Throttle) Name() string { return t.next.Name() }

func (t *Throttle) Deliver(ctx context.Context, msg *outreach.OutreachMessage, recruiter *outreach.Recruiter) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return retryable(t.Name(), err)
	}

	if t.jitter > 0 {
		if err := utils.WaitFor(ctx, rand.N(t.jitter)); err != nil {
			return retryable(t.Name(), err)
		}
	}

	return t.next.Deliver(ctx, msg, recruiter)
}
