package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/logger"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

// Due returns the tracked jobs that should get a follow-up at now, oldest
// first message first.
func (c FollowUpConfig) Due(rows []*outreach.JobRecord, now time.Time) []*outreach.JobRecord {
	var due []*outreach.JobRecord

	for _, job := range rows {
		switch {
		case job == nil || job.State != outreach.StateTracked:
		case job.SentAt.IsZero() || !job.FollowUpSentAt.IsZero():
		case !job.Recruiter.Usable():
		case job.Sent(c.TemplateID):
		case now.Sub(job.SentAt) < c.wait():
		default:
			due = append(due, job)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].SentAt.Before(due[j].SentAt)
	})

	return due
}

// FollowUp sends the follow-up template to tracked jobs whose first message
// is older than the configured wait. Each job gets at most one follow-up.
func (m *Machine) FollowUp(ctx context.Context, rows []*outreach.JobRecord) *Summary {
	started := m.now()
	sum := newCollector(m.cfg.RunID)
	cfg := m.cfg.FollowUp

	runCtx, cancel := m.start(ctx)
	defer cancel()

	due := cfg.Due(m.latest(rows), started)
	m.logger.Info("follow-ups due", zap.Int("count", len(due)), zap.Int("days_wait", cfg.DaysWait))

	for i, job := range due {
		if runCtx.Err() != nil {
			sum.update(func(s *Summary) {
				s.Stopped = true
				s.NotStarted = len(due) - i
			})
			break
		}

		if cfg.MaxPerRun > 0 && i >= cfg.MaxPerRun {
			sum.add(func(s *Summary) *[]string { return &s.Deferred }, job.JobID)
			continue
		}

		m.followUp(runCtx, job.Clone(), sum)
	}

	end := m.now()
	m.metrics.ObserveRun(end.Sub(started))

	return sum.result(started, end)
}

// latest swaps each stored row for its export history snapshot when the
// snapshot is newer, the way prior does for a single job.
func (m *Machine) latest(rows []*outreach.JobRecord) []*outreach.JobRecord {
	out := make([]*outreach.JobRecord, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		if h := m.history[row.JobID]; h != nil && h.UpdatedAt.After(row.UpdatedAt) {
			row = h.Clone()
		}
		out = append(out, row)
	}
	return out
}

func (m *Machine) followUp(runCtx context.Context, job *outreach.JobRecord, sum *collector) {
	unlock := m.locks.lock(job.JobID)
	defer unlock()

	opCtx := context.WithoutCancel(runCtx)
	log := logger.WithJob(m.logger, job)
	templateID := m.cfg.FollowUp.TemplateID

	err := m.deliverFollowUp(runCtx, opCtx, job, templateID, sum, log)
	if errors.Is(err, errStopped) {
		sum.finish(job)
		return
	}
	if err != nil {
		log.Error("follow-up failed", zap.Error(err))
		sum.update(func(s *Summary) { s.Failed[job.JobID] = err.Error() })
	}

	sum.finish(job)
}

func (m *Machine) deliverFollowUp(runCtx, opCtx context.Context, job *outreach.JobRecord, templateID string, sum *collector, log *zap.Logger) error {
	msg, err := m.composer.Compose(templateID, job, job.Recruiter)
	if err != nil {
		return err
	}

	decision, err := m.approve(runCtx, job, msg)
	if err != nil {
		log.Warn("approval failed, stopping the run", zap.Error(err))
		decision = StopRun
	}
	switch decision {
	case Decline:
		sum.add(func(s *Summary) *[]string { return &s.Declined }, job.JobID)
		return nil
	case StopRun:
		m.Stop()
		return errStopped
	}

	err = m.policy.Do(runCtx, outreach.IsRetryable,
		func(n int, err error) {
			log.Warn("retrying follow-up delivery", zap.Int("retry", n), zap.Error(err))
		},
		func(context.Context) error {
			return m.channel.Deliver(opCtx, msg, job.Recruiter)
		},
	)
	if err != nil {
		m.metrics.Delivery("error")
		return fmt.Errorf("deliver follow-up: %w", err)
	}

	sentAt := m.now()
	m.metrics.Delivery("sent")
	sum.add(func(s *Summary) *[]string { return &s.Sent }, job.JobID)
	log.Info("follow-up sent", zap.String("template_id", msg.TemplateID))

	next := job.Clone()
	next.FollowUpID = msg.TemplateID
	next.FollowUpSentAt = sentAt
	next.UpdatedAt = sentAt.UTC()

	entry := tracker.Entry{
		RunID:     m.cfg.RunID,
		JobID:     job.JobID,
		From:      job.State,
		State:     next.State,
		Attempts:  next.Attempts,
		Timestamp: next.UpdatedAt,
		Record:    next,
	}
	if err := m.export.Append(entry); err != nil {
		log.Error("export log append failed, keeping the follow-up", zap.Error(err))
	}
	*job = *next

	m.persist(opCtx, job, sum, log)
	return nil
}
