package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// DefaultRecruiterName is used when a source returns a contact without a name.
const DefaultRecruiterName = "Hiring Team"

type ranked struct {
	source Source
	tag    outreach.Source
}

type cacheEntry struct {
	done      bool
	recruiter *outreach.Recruiter
	answered  map[outreach.Source]Result
}

// Resolver queries the primary source, then the fallback, and caches answers
// per job id for the lifetime of the run. Transient answers are never cached.
type Resolver struct {
	sources []ranked
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type Option func(*Resolver)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver fixes the resolution order. fallback may be nil.
func NewResolver(primary, fallback Source, logger *zap.Logger, opts ...Option) (*Resolver, error) {
	if primary == nil {
		return nil, errors.New("primary lookup source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resolver{
		sources: []ranked{{source: primary, tag: outreach.SourcePrimary}},
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]*cacheEntry),
	}
	if fallback != nil {
		r.sources = append(r.sources, ranked{source: fallback, tag: outreach.SourceFallback})
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Resolve returns the recruiter for job, or nil when no source has one.
// A transient failure of any source is returned as *outreach.TransientLookupError.
func (r *Resolver) Resolve(ctx context.Context, job *outreach.JobRecord) (*outreach.Recruiter, error) {
	entry := r.entry(job.JobID)
	if entry.done {
		return entry.recruiter, nil
	}

	q := QueryFor(job)

	for _, rs := range r.sources {
		res, cached := r.answered(job.JobID, rs.tag)
		if !cached {
			var err error
			res, err = r.query(ctx, rs, q)
			if err != nil {
				return nil, fmt.Errorf("%s lookup: %w", rs.source.Name(), err)
			}
		}

		switch res.Outcome {
		case Transient:
			return nil, &outreach.TransientLookupError{Source: rs.source.Name(), Err: res.Err}
		case Found:
			r.remember(job.JobID, rs.tag, res)
			if recruiter := r.recruiter(res.Contact, rs.tag); recruiter != nil {
				r.finish(job.JobID, recruiter)
				return recruiter, nil
			}
		default:
			r.remember(job.JobID, rs.tag, res)
		}
	}

	r.finish(job.JobID, nil)
	return nil, nil
}

// Forget drops everything cached for id.
func (r *Resolver) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

func (r *Resolver) query(ctx context.Context, rs ranked, q Query) (Result, error) {
	logger := r.logger.With(
		zap.String("job_id", q.JobID),
		zap.String("source", rs.source.Name()),
		zap.String("rank", string(rs.tag)),
	)

	res, err := rs.source.Lookup(ctx, q)
	if err != nil {
		r.metrics.Lookup(string(rs.tag), "error")
		logger.Debug("lookup failed", zap.Error(err))
		return Result{}, err
	}

	r.metrics.Lookup(string(rs.tag), res.Outcome.String())

	fields := []zap.Field{zap.Stringer("outcome", res.Outcome)}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	logger.Debug("lookup answered", fields...)

	return res, nil
}

func (r *Resolver) recruiter(c Contact, tag outreach.Source) *outreach.Recruiter {
	channel := strings.TrimSpace(c.Channel)
	if channel == "" {
		return nil
	}

	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = DefaultRecruiterName
	}

	return &outreach.Recruiter{
		Name:           name,
		ContactChannel: channel,
		Source:         tag,
		ResolvedAt:     r.now().UTC(),
	}
}

func (r *Resolver) entry(id string) cacheEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache[id]
	if !ok {
		return cacheEntry{}
	}
	return *e
}

func (r *Resolver) answered(id string, tag outreach.Source) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache[id]
	if !ok || e.answered == nil {
		return Result{}, false
	}
	res, ok := e.answered[tag]
	return res, ok
}

func (r *Resolver) remember(id string, tag outreach.Source, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.ensure(id)
	if e.answered == nil {
		e.answered = make(map[outreach.Source]Result)
	}
	e.answered[tag] = res
}

func (r *Resolver) finish(id string, recruiter *outreach.Recruiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.ensure(id)
	e.done = true
	e.recruiter = recruiter
}

func (r *Resolver) ensure(id string) *cacheEntry {
	e, ok := r.cache[id]
	if !ok {
		e = &cacheEntry{}
		r.cache[id] = e
	}
	return e
}
