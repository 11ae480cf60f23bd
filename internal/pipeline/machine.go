package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/recruiter-outreach/internal/delivery"
	"github.com/spigell/recruiter-outreach/internal/intake"
	"github.com/spigell/recruiter-outreach/internal/logger"
	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/normalize"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/retry"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

const DefaultTemplateID = "first"

type Config struct {
	RunID      string
	TemplateID string
	// Workers bounds the records processed at the same time. 1 is sequential.
	Workers int
	// MaxMessages caps first messages per run. Zero means no cap.
	MaxMessages int
	FollowUp    FollowUpConfig
}

type Deps struct {
	Resolver Resolver
	Composer Composer
	Channel  delivery.Channel
	Tracker  Tracker
	Export   Exporter
	// Approver is optional. Without it every message is delivered.
	Approver Approver
	// History holds the last export log snapshot per job from earlier runs.
	History map[string]*outreach.JobRecord
	// Contacted holds tracker rows from earlier runs. A recruiter already
	// messaged for one of them is not messaged again for another job.
	Contacted []*outreach.JobRecord
	Policy    retry.Policy
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Machine owns the state of every record of a run. Nothing else changes a
// JobRecord once it has been handed to the machine.
type Machine struct {
	cfg      Config
	resolver Resolver
	composer Composer
	channel  delivery.Channel
	tracker  Tracker
	export   Exporter
	approver Approver
	history  map[string]*outreach.JobRecord
	policy   retry.Policy
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	locks keyedMutex

	approveMu  sync.Mutex
	approveAll bool

	capMu    sync.Mutex
	reserved int

	// contacted maps a contact channel to the job it was messaged for.
	contactMu sync.Mutex
	contacted map[string]string

	stopMu  sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

func New(cfg *Config, deps *Deps) (*Machine, error) {
	if cfg == nil || deps == nil {
		return nil, errors.New("pipeline config and dependencies are required")
	}

	switch {
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Composer == nil:
		return nil, errors.New("composer is required")
	case deps.Channel == nil:
		return nil, errors.New("delivery channel is required")
	case deps.Tracker == nil:
		return nil, errors.New("tracker is required")
	case deps.Export == nil:
		return nil, errors.New("export log is required")
	}

	m := &Machine{
		cfg:       *cfg,
		resolver:  deps.Resolver,
		composer:  deps.Composer,
		channel:   deps.Channel,
		tracker:   deps.Tracker,
		export:    deps.Export,
		approver:  deps.Approver,
		history:   deps.History,
		policy:    deps.Policy,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       deps.Now,
		locks:     keyedMutex{locks: make(map[string]*keyedLock)},
		contacted: make(map[string]string),
	}

	for _, job := range deps.Contacted {
		m.seedContact(job)
	}
	for _, job := range deps.History {
		m.seedContact(job)
	}

	if m.cfg.TemplateID == "" {
		m.cfg.TemplateID = DefaultTemplateID
	}
	if m.cfg.Workers < 1 {
		m.cfg.Workers = 1
	}
	if m.policy.MaxAttempts == 0 {
		m.policy = retry.New(0, 0, 0)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.logger = logger.WithFields(m.logger, zap.String(logger.FieldRunID, m.cfg.RunID))

	return m, nil
}

// Stop asks the running Run or FollowUp to halt. Records already in flight
// finish their current operation and rest in their current state.
func (m *Machine) Stop() {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Machine) start(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)

	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	if m.stopped {
		cancel()
	}
	m.cancel = cancel

	return runCtx, cancel
}

// Run processes records and returns the run summary. Per-record failures never
// abort the run.
func (m *Machine) Run(ctx context.Context, records []intake.Record) *Summary {
	started := m.now()
	sum := newCollector(m.cfg.RunID)

	runCtx, cancel := m.start(ctx)
	defer cancel()

	seen := normalize.NewDeduper()

	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)

	for i, rec := range records {
		if runCtx.Err() != nil {
			sum.update(func(s *Summary) { s.NotStarted += len(records) - i })
			break
		}

		if rec.Err != nil {
			m.logger.Warn("skipping malformed record", zap.Int("line", rec.Line), zap.Error(rec.Err))
			sum.update(func(s *Summary) { s.Malformed++ })
			continue
		}

		job, err := normalize.Normalize(rec.Raw)
		if err != nil {
			m.logger.Warn("skipping malformed record", zap.Int("line", rec.Line), zap.Error(err))
			sum.update(func(s *Summary) { s.Malformed++ })
			continue
		}

		if seen.Seen(job.JobID) {
			m.logger.Info("skipping duplicate record", zap.Int("line", rec.Line), zap.String(logger.FieldJobID, job.JobID))
			sum.update(func(s *Summary) { s.Duplicates++ })
			continue
		}

		g.Go(func() error {
			m.process(runCtx, job, sum)
			return nil
		})
	}

	_ = g.Wait()

	if runCtx.Err() != nil {
		sum.update(func(s *Summary) { s.Stopped = true })
	}

	end := m.now()
	m.metrics.ObserveRun(end.Sub(started))

	return sum.result(started, end)
}

func (m *Machine) process(runCtx context.Context, job *outreach.JobRecord, sum *collector) {
	unlock := m.locks.lock(job.JobID)
	defer unlock()

	if runCtx.Err() != nil {
		sum.update(func(s *Summary) { s.NotStarted++ })
		return
	}

	done := m.metrics.JobStarted()
	defer done()

	// network calls must not be cut short by a stop
	opCtx := context.WithoutCancel(runCtx)
	log := logger.WithFields(m.logger, zap.String(logger.FieldJobID, job.JobID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing job", zap.Any("panic", r), zap.Stack("stack"))
			if !job.State.Terminal() {
				m.fail(job, fmt.Errorf("panic: %v", r), job.Attempts, log)
				m.persist(opCtx, job, sum, log)
			}
			sum.finish(job)
		}
	}()

	prior, err := m.prior(opCtx, job.JobID)
	if err != nil {
		log.Warn("loading tracker row failed, processing as new", zap.Error(err))
	}
	if prior != nil {
		if prior.State.Terminal() {
			log.Info("job already finished", zap.Stringer(logger.FieldState, prior.State))
			sum.update(func(s *Summary) { s.Finished++ })
			return
		}
		log.Info("resuming job", zap.Stringer(logger.FieldState, prior.State), zap.Int("attempts", prior.Attempts))
		job = prior.Clone()
	}

	log = logger.WithJob(m.logger, job)

	for !job.State.Terminal() {
		var (
			rest bool
			err  error
		)

		switch job.State {
		case outreach.StateDiscovered:
			err = m.transition(job, outreach.StateRecruiterPending, nil)
		case outreach.StateRecruiterPending:
			err = m.resolve(runCtx, opCtx, job, log)
		case outreach.StateRecruiterResolved:
			rest, err = m.send(runCtx, opCtx, job, sum, log)
		case outreach.StateMessageSent:
			if !m.track(opCtx, job, log) {
				sum.add(func(s *Summary) *[]string { return &s.SyncPending }, job.JobID)
				sum.finish(job)
				return
			}
		default:
			err = fmt.Errorf("unexpected state %s", job.State)
		}

		if errors.Is(err, errStopped) {
			log.Info("run stopped, job rests", zap.Stringer(logger.FieldState, job.State))
			rest, err = true, nil
		}
		if err != nil {
			m.fail(job, err, job.Attempts, log)
			break
		}
		if rest {
			break
		}
	}

	if job.State != outreach.StateTracked {
		m.persist(opCtx, job, sum, log)
	}
	sum.finish(job)
}

// prior returns the newest snapshot of id left by an earlier run.
func (m *Machine) prior(ctx context.Context, id string) (*outreach.JobRecord, error) {
	stored, err := m.tracker.Load(ctx, id)

	if h := m.history[id]; h != nil && (stored == nil || h.UpdatedAt.After(stored.UpdatedAt)) {
		return h.Clone(), nil
	}

	return stored, err
}

func (m *Machine) resolve(runCtx, opCtx context.Context, job *outreach.JobRecord, log *zap.Logger) error {
	recruiter, err := m.resolver.Resolve(opCtx, job)

	switch {
	case err == nil && recruiter == nil:
		log.Info("no recruiter found")
		return m.transition(job, outreach.StateNoRecruiterFound, nil)
	case err == nil:
		log.Info("recruiter resolved",
			zap.String("recruiter", recruiter.Name),
			zap.String(logger.FieldSource, string(recruiter.Source)),
		)
		return m.transition(job, outreach.StateRecruiterResolved, func(next *outreach.JobRecord) {
			next.Recruiter = recruiter
		})
	case outreach.IsRetryable(err):
		return m.retry(runCtx, job, err, log)
	default:
		return fmt.Errorf("resolve recruiter: %w", err)
	}
}

// send composes and delivers the first message. rest reports that the job
// stays RECRUITER_RESOLVED for now.
func (m *Machine) send(runCtx, opCtx context.Context, job *outreach.JobRecord, sum *collector, log *zap.Logger) (rest bool, err error) {
	templateID := m.cfg.TemplateID

	if job.Sent(templateID) {
		return false, m.transition(job, outreach.StateMessageSent, nil)
	}
	if !job.Recruiter.Usable() {
		return false, errors.New("resolved job has no usable recruiter contact")
	}

	if owner, ok := m.claim(job); !ok {
		log.Info("recruiter already contacted for another job", zap.String("contacted_for", owner))
		sum.add(func(s *Summary) *[]string { return &s.SameRecruiter }, job.JobID)
		return true, nil
	}
	delivered := false
	defer func() {
		if !delivered {
			m.unclaim(job)
		}
	}()

	msg, err := m.composer.Compose(templateID, job, job.Recruiter)
	if err != nil {
		return false, err
	}

	if !m.reserve() {
		log.Info("message limit reached, deferring job", zap.Int("max_messages_per_run", m.cfg.MaxMessages))
		sum.add(func(s *Summary) *[]string { return &s.Deferred }, job.JobID)
		return true, nil
	}

	decision, err := m.approve(runCtx, job, msg)
	if err != nil {
		log.Warn("approval failed, stopping the run", zap.Error(err))
		decision = StopRun
	}

	switch decision {
	case Decline:
		m.release()
		log.Info("message declined")
		sum.add(func(s *Summary) *[]string { return &s.Declined }, job.JobID)
		return true, nil
	case StopRun:
		m.release()
		m.Stop()
		return true, nil
	}

	for {
		err := m.channel.Deliver(opCtx, msg, job.Recruiter)
		if err == nil {
			break
		}

		m.metrics.Delivery("error")
		if !outreach.IsRetryable(err) {
			m.release()
			return false, err
		}
		if err := m.retry(runCtx, job, err, log); err != nil {
			m.release()
			return false, err
		}
		if job.State == outreach.StateFailed {
			m.release()
			return false, nil
		}
	}

	delivered = true
	sentAt := m.now()
	msg.SentAt = sentAt
	m.metrics.Delivery("sent")
	sum.add(func(s *Summary) *[]string { return &s.Sent }, job.JobID)

	log.Info("message sent",
		zap.String("template_id", msg.TemplateID),
		zap.String("channel", m.channel.Name()),
		zap.Bool("note", msg.Note),
	)

	next := m.prepare(job, outreach.StateMessageSent, func(next *outreach.JobRecord) {
		next.TemplateID = msg.TemplateID
		next.SentAt = sentAt
	})
	// the message is out, so the record never goes back to delivery
	m.commit(job, next, true, log)

	return false, nil
}

// track moves a sent job to TRACKED once the sink has its row.
func (m *Machine) track(ctx context.Context, job *outreach.JobRecord, log *zap.Logger) bool {
	next := m.prepare(job, outreach.StateTracked, nil)

	if err := m.tracker.Upsert(ctx, next); err != nil {
		log.Error("tracker sync failed, message sent but not tracked", zap.Error(err))
		return false
	}

	m.commit(job, next, true, log)
	log.Info("job tracked")
	return true
}

// retry bumps attempts after a retryable failure and re-enters the current
// state, or fails the job once the ceiling is passed.
func (m *Machine) retry(runCtx context.Context, job *outreach.JobRecord, cause error, log *zap.Logger) error {
	attempts := job.Attempts + 1

	if m.policy.Exhausted(attempts) {
		m.fail(job, fmt.Errorf("giving up after %d attempts: %w", attempts, cause), attempts, log)
		return nil
	}

	err := m.transition(job, job.State, func(next *outreach.JobRecord) {
		next.Attempts = attempts
		next.LastError = cause.Error()
	})
	if err != nil {
		return err
	}

	log.Warn("retrying after transient failure",
		zap.Int("attempt", attempts),
		zap.Duration("backoff", m.policy.Backoff(attempts)),
		zap.Error(cause),
	)

	if runCtx.Err() != nil {
		return errStopped
	}
	if err := m.policy.Wait(runCtx, attempts); err != nil {
		return errStopped
	}

	return nil
}

func (m *Machine) fail(job *outreach.JobRecord, cause error, attempts int, log *zap.Logger) {
	next := m.prepare(job, outreach.StateFailed, func(next *outreach.JobRecord) {
		next.Attempts = attempts
		next.LastError = cause.Error()
	})
	m.commit(job, next, true, log)

	log.Error("job failed", zap.Int("attempts", attempts), zap.Error(cause))
}

// persist writes a resting snapshot to the tracker. A failure is reported as
// sync pending; the export log already has the snapshot.
func (m *Machine) persist(ctx context.Context, job *outreach.JobRecord, sum *collector, log *zap.Logger) {
	if err := m.tracker.Upsert(ctx, job); err != nil {
		log.Error("tracker sync failed", zap.Stringer(logger.FieldState, job.State), zap.Error(err))
		sum.add(func(s *Summary) *[]string { return &s.SyncPending }, job.JobID)
	}
}

func (m *Machine) transition(job *outreach.JobRecord, to outreach.State, mutate func(next *outreach.JobRecord)) error {
	if err := job.State.CanTransition(to); err != nil {
		return err
	}
	return m.commit(job, m.prepare(job, to, mutate), false, nil)
}

func (m *Machine) prepare(job *outreach.JobRecord, to outreach.State, mutate func(next *outreach.JobRecord)) *outreach.JobRecord {
	next := job.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.State = to
	next.UpdatedAt = m.now().UTC()
	return next
}

// commit appends the transition to the export log and then replaces job with
// next. Unless force is set, a failed append leaves job untouched.
func (m *Machine) commit(job, next *outreach.JobRecord, force bool, log *zap.Logger) error {
	entry := tracker.Entry{
		RunID:     m.cfg.RunID,
		JobID:     job.JobID,
		From:      job.State,
		State:     next.State,
		Attempts:  next.Attempts,
		Timestamp: next.UpdatedAt,
		Record:    next,
	}
	if next.LastError != job.LastError || next.State == outreach.StateFailed {
		entry.Error = next.LastError
	}

	if err := m.export.Append(entry); err != nil {
		err = fmt.Errorf("export %s -> %s: %w", job.State, next.State, err)
		if !force {
			return err
		}
		if log == nil {
			log = m.logger
		}
		log.Error("export log append failed, keeping the transition", zap.Error(err))
	}

	from := job.State
	*job = *next
	m.metrics.Transition(from, job.State)

	return nil
}

func (m *Machine) approve(ctx context.Context, job *outreach.JobRecord, msg *outreach.OutreachMessage) (Decision, error) {
	if m.approver == nil {
		return Approve, nil
	}

	m.approveMu.Lock()
	defer m.approveMu.Unlock()

	if ctx.Err() != nil {
		return StopRun, nil
	}
	if m.approveAll {
		return Approve, nil
	}

	decision, err := m.approver.Approve(ctx, job, msg)
	if err != nil {
		return StopRun, err
	}
	if decision == ApproveAll {
		m.approveAll = true
		decision = Approve
	}

	return decision, nil
}

func (m *Machine) reserve() bool {
	m.capMu.Lock()
	defer m.capMu.Unlock()

	if m.cfg.MaxMessages > 0 && m.reserved >= m.cfg.MaxMessages {
		return false
	}
	m.reserved++
	return true
}

func (m *Machine) release() {
	m.capMu.Lock()
	defer m.capMu.Unlock()

	if m.reserved > 0 {
		m.reserved--
	}
}

func contactKey(r *outreach.Recruiter) string {
	return strings.ToLower(strings.TrimSpace(r.ContactChannel))
}

func (m *Machine) seedContact(job *outreach.JobRecord) {
	if job == nil || job.SentAt.IsZero() || !job.Recruiter.Usable() {
		return
	}

	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	key := contactKey(job.Recruiter)
	if _, ok := m.contacted[key]; !ok {
		m.contacted[key] = job.JobID
	}
}

// claim marks the job's recruiter as contacted for the job. It fails with the
// owning job id when the recruiter belongs to another job.
func (m *Machine) claim(job *outreach.JobRecord) (string, bool) {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	key := contactKey(job.Recruiter)
	if owner, ok := m.contacted[key]; ok && owner != job.JobID {
		return owner, false
	}
	m.contacted[key] = job.JobID
	return job.JobID, true
}

func (m *Machine) unclaim(job *outreach.JobRecord) {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	key := contactKey(job.Recruiter)
	if m.contacted[key] == job.JobID {
		delete(m.contacted, key)
	}
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes work on the same job id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
