package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/retry"
)

// memorySink is a map-backed sink whose upserts can be made to fail.
type memorySink struct {
	mu      sync.Mutex
	rows    map[string]*outreach.JobRecord
	fail    []error
	upserts int
}

func newMemorySink(fail ...error) *memorySink {
	return &memorySink{rows: make(map[string]*outreach.JobRecord), fail: fail}
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Upsert(_ context.Context, job *outreach.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if len(m.fail) > 0 {
		err := m.fail[0]
		m.fail = m.fail[1:]
		if err != nil {
			return err
		}
	}
	m.rows[job.JobID] = job.Clone()
	return nil
}

func (m *memorySink) Get(_ context.Context, id string) (*outreach.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (m *memorySink) List(context.Context) ([]*outreach.JobRecord, error) { return nil, nil }

func (m *memorySink) Close() error { return nil }

var noWait = retry.New(2, -1, 2)

func unavailable() error {
	return &outreach.SinkUnavailable{Sink: "memory", Err: errors.New("connection refused")}
}

func TestSyncRetriesUnavailableSink(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sink := newMemorySink(unavailable(), unavailable())
	s := NewSync(sink, noWait, zap.New(core), m)

	require.NoError(t, s.Upsert(context.Background(), trackedJob("J1")))
	assert.Equal(t, 3, sink.upserts)
	assert.Equal(t, 2, logs.FilterMessage("tracker sink unavailable, retrying").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackerUpserts.WithLabelValues("ok")))

	got, err := s.Load(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, trackedJob("J1"), got)
}

func TestSyncExhaustedReportsUnavailable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sink := newMemorySink(unavailable(), unavailable(), unavailable())
	s := NewSync(sink, noWait, nil, m)

	err := s.Upsert(context.Background(), trackedJob("J1"))
	var su *outreach.SinkUnavailable
	require.ErrorAs(t, err, &su)
	assert.Equal(t, 3, sink.upserts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackerUpserts.WithLabelValues("error")))
}

func TestSyncDoesNotRetryRejectedRows(t *testing.T) {
	sink := newMemorySink(errors.New("constraint violated"))
	s := NewSync(sink, noWait, nil, nil)

	err := s.Upsert(context.Background(), trackedJob("J1"))
	var su *outreach.SinkUnavailable
	require.ErrorAs(t, err, &su)
	assert.Equal(t, 1, sink.upserts)
}

func TestSyncLoadMissing(t *testing.T) {
	s := NewSync(newMemorySink(), noWait, nil, nil)

	job, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, "memory", s.Sink().Name())
}
