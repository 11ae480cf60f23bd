package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/recruiter-outreach/internal/compose"
	"github.com/spigell/recruiter-outreach/internal/intake"
	"github.com/spigell/recruiter-outreach/internal/lookup"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/retry"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// fakeSource answers lookups through a function of the job id and the number
// of earlier calls for that job.
type fakeSource struct {
	name   string
	answer func(jobID string, call int) lookup.Result

	mu    sync.Mutex
	calls map[string]int
}

func newSource(name string, answer func(jobID string, call int) lookup.Result) *fakeSource {
	return &fakeSource{name: name, answer: answer, calls: make(map[string]int)}
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Lookup(_ context.Context, q lookup.Query) (lookup.Result, error) {
	s.mu.Lock()
	n := s.calls[q.JobID]
	s.calls[q.JobID]++
	s.mu.Unlock()

	return s.answer(q.JobID, n), nil
}

func (s *fakeSource) Calls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[jobID]
}

func found(name, contact string) func(string, int) lookup.Result {
	return func(string, int) lookup.Result { return lookup.FoundContact(name, contact) }
}

// perJob answers with a different recruiter address for every job.
func perJob(name string) func(string, int) lookup.Result {
	return func(id string, _ int) lookup.Result {
		return lookup.FoundContact(name, strings.ToLower(name+"+"+id)+"@x.com")
	}
}

func nothing(string, int) lookup.Result { return lookup.NoData() }

type fakeChannel struct {
	fail func(call int, msg *outreach.OutreachMessage) error

	mu    sync.Mutex
	calls int
	sent  []outreach.OutreachMessage
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) Deliver(_ context.Context, msg *outreach.OutreachMessage, _ *outreach.Recruiter) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.fail != nil {
		if err := c.fail(c.calls, msg); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, *msg)
	return nil
}

func (c *fakeChannel) Sent(jobID string) []outreach.OutreachMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []outreach.OutreachMessage
	for _, m := range c.sent {
		if m.JobID == jobID {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeChannel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeTracker struct {
	fail func(job *outreach.JobRecord) bool

	mu      sync.Mutex
	rows    map[string]*outreach.JobRecord
	upserts int
}

func newTracker(rows ...*outreach.JobRecord) *fakeTracker {
	t := &fakeTracker{rows: make(map[string]*outreach.JobRecord)}
	for _, r := range rows {
		t.rows[r.JobID] = r.Clone()
	}
	return t
}

func (t *fakeTracker) Upsert(_ context.Context, job *outreach.JobRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.upserts++
	if t.fail != nil && t.fail(job) {
		return &outreach.SinkUnavailable{Sink: "fake", Err: errors.New("connection refused")}
	}
	t.rows[job.JobID] = job.Clone()
	return nil
}

func (t *fakeTracker) Load(_ context.Context, id string) (*outreach.JobRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows[id].Clone(), nil
}

func (t *fakeTracker) Row(id string) *outreach.JobRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows[id].Clone()
}

type memExport struct {
	mu      sync.Mutex
	entries []tracker.Entry
}

func (e *memExport) Append(entry tracker.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry.Record != nil {
		entry.Record = entry.Record.Clone()
	}
	e.entries = append(e.entries, entry)
	return nil
}

func (e *memExport) For(jobID string) []tracker.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []tracker.Entry
	for _, entry := range e.entries {
		if entry.JobID == jobID {
			out = append(out, entry)
		}
	}
	return out
}

// History mirrors tracker.Replay: the newest record per job.
func (e *memExport) History() map[string]*outreach.JobRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make(map[string]*outreach.JobRecord)
	for _, entry := range e.entries {
		if entry.Record != nil {
			history[entry.JobID] = entry.Record
		}
	}
	return history
}

type harness struct {
	cfg      Config
	primary  *fakeSource
	fallback *fakeSource
	channel  *fakeChannel
	tracker  *fakeTracker
	export   *memExport
	approver Approver
	history  map[string]*outreach.JobRecord
	// contacted seeds recruiters messaged in earlier runs.
	contacted []*outreach.JobRecord
	policy    retry.Policy
	composer  *compose.Composer
	logs      *observer.ObservedLogs
	core      zapcore.Core
}

func newHarness() *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	return &harness{
		cfg:      Config{RunID: "run-1", TemplateID: compose.TemplateFirst, Workers: 1},
		primary:  newSource("directory", perJob("Jane")),
		fallback: newSource("page", nothing),
		channel:  &fakeChannel{},
		tracker:  newTracker(),
		export:   &memExport{},
		policy:   retry.New(3, -1, 2),
		composer: compose.New(compose.WithSender("Alex"), compose.WithClock(clock)),
		logs:     logs,
		core:     core,
	}
}

func (h *harness) machine(t *testing.T) *Machine {
	t.Helper()

	resolver, err := lookup.NewResolver(h.primary, h.fallback, nil, lookup.WithClock(clock))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	cfg := h.cfg
	m, err := New(&cfg, &Deps{
		Resolver:  resolver,
		Composer:  h.composer,
		Channel:   h.channel,
		Tracker:   h.tracker,
		Export:    h.export,
		Approver:  h.approver,
		History:   h.history,
		Contacted: h.contacted,
		Policy:    h.policy,
		Logger:    zap.New(h.core),
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

func record(line int, raw map[string]any) intake.Record {
	return intake.Record{Line: line, Raw: raw}
}

func job(line int, id string) intake.Record {
	return record(line, map[string]any{"id": id, "company": "Acme", "title": "SWE"})
}
