// Package tracker persists job state into the durable tracker and the local
// append-only export log.
package tracker

import (
	"context"
	"errors"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// ErrNotFound is returned by Sink.Get for unknown job ids.
var ErrNotFound = errors.New("tracker row not found")

// Sink is a key-value store of tracker rows keyed by job id. Upsert must be
// idempotent: writing the same snapshot twice leaves the same row.
// Unreachable stores are reported as *outreach.SinkUnavailable.
type Sink interface {
	Name() string
	Upsert(ctx context.Context, job *outreach.JobRecord) error
	Get(ctx context.Context, jobID string) (*outreach.JobRecord, error)
	List(ctx context.Context) ([]*outreach.JobRecord, error)
	Close() error
}
