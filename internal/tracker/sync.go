package tracker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/retry"
)

// Sync upserts records into a sink, retrying unavailability with the shared policy.
type Sync struct {
	sink    Sink
	policy  retry.Policy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewSync(sink Sink, policy retry.Policy, logger *zap.Logger, m *metrics.Metrics) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sync{sink: sink, policy: policy, logger: logger, metrics: m}
}

func (s *Sync) Sink() Sink { return s.sink }

// Upsert writes job. When retries are exhausted it returns *outreach.SinkUnavailable;
// the caller owns reporting the row as sync pending.
func (s *Sync) Upsert(ctx context.Context, job *outreach.JobRecord) error {
	logger := s.logger.With(zap.String("job_id", job.JobID), zap.String("sink", s.sink.Name()))

	err := s.policy.Do(ctx, outreach.IsRetryable,
		func(n int, err error) {
			logger.Warn("tracker sink unavailable, retrying", zap.Int("retry", n), zap.Error(err))
		},
		func(ctx context.Context) error {
			return s.sink.Upsert(ctx, job)
		},
	)
	if err == nil {
		s.metrics.TrackerUpsert("ok")
		return nil
	}

	s.metrics.TrackerUpsert("error")

	var unavailable *outreach.SinkUnavailable
	if !errors.As(err, &unavailable) {
		return &outreach.SinkUnavailable{Sink: s.sink.Name(), Err: err}
	}

	return err
}

// Load returns the stored row for id, or nil when there is none.
func (s *Sync) Load(ctx context.Context, id string) (*outreach.JobRecord, error) {
	var job *outreach.JobRecord

	err := s.policy.Do(ctx, outreach.IsRetryable, nil, func(ctx context.Context) error {
		var err error
		job, err = s.sink.Get(ctx, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}
