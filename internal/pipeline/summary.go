package pipeline

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// Summary is the report of one run.
type Summary struct {
	RunID    string
	Duration time.Duration

	// States counts the state every processed record ended in.
	States map[outreach.State]int
	// Failed maps the job ids that ended FAILED to their last error.
	Failed map[string]string

	Malformed  int
	Duplicates int
	// Finished counts records that were already terminal before the run.
	Finished int
	// NotStarted counts records left untouched because the run was stopped.
	NotStarted int
	Stopped    bool

	// Deferred holds resolved jobs held back by the per-run message cap.
	Deferred []string
	Declined []string
	// SameRecruiter holds resolved jobs whose recruiter was already messaged
	// for another job.
	SameRecruiter []string
	// SyncPending holds jobs whose latest snapshot is only in the export log.
	SyncPending []string
	Sent        []string
}

type collector struct {
	mu sync.Mutex
	s  *Summary
}

func newCollector(runID string) *collector {
	return &collector{s: &Summary{
		RunID:  runID,
		States: make(map[outreach.State]int),
		Failed: make(map[string]string),
	}}
}

func (c *collector) update(fn func(s *Summary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.s)
}

func (c *collector) finish(job *outreach.JobRecord) {
	c.update(func(s *Summary) {
		s.States[job.State]++
		if job.State == outreach.StateFailed {
			s.Failed[job.JobID] = job.LastError
		}
	})
}

func (c *collector) add(list func(s *Summary) *[]string, id string) {
	c.update(func(s *Summary) {
		l := list(s)
		if !slices.Contains(*l, id) {
			*l = append(*l, id)
		}
	})
}

func (c *collector) result(started time.Time, now time.Time) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.s
	s.Duration = now.Sub(started)
	for _, l := range [][]string{s.Deferred, s.Declined, s.SameRecruiter, s.SyncPending, s.Sent} {
		slices.Sort(l)
	}
	return s
}

// Processed is the number of records that reached a resting state this run.
func (s *Summary) Processed() int {
	total := 0
	for _, n := range s.States {
		total += n
	}
	return total
}

// Fields renders the summary as log fields.
func (s *Summary) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Duration("duration", s.Duration),
		zap.Int("processed", s.Processed()),
	}
	for _, st := range outreach.States {
		if n := s.States[st]; n > 0 {
			fields = append(fields, zap.Int(strings.ToLower(st.String()), n))
		}
	}
	fields = append(fields,
		zap.Int("malformed", s.Malformed),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("already_finished", s.Finished),
	)
	if s.Stopped {
		fields = append(fields, zap.Bool("stopped", true), zap.Int("not_started", s.NotStarted))
	}
	if len(s.Deferred) > 0 {
		fields = append(fields, zap.Strings("deferred", s.Deferred))
	}
	if len(s.Declined) > 0 {
		fields = append(fields, zap.Strings("declined", s.Declined))
	}
	if len(s.SameRecruiter) > 0 {
		fields = append(fields, zap.Strings("same_recruiter", s.SameRecruiter))
	}
	if len(s.SyncPending) > 0 {
		fields = append(fields, zap.Strings("sync_pending", s.SyncPending))
	}
	return fields
}

// String is a short human readable report used by notifications.
func (s *Summary) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s finished in %s: %d processed", s.RunID, s.Duration.Round(time.Millisecond), s.Processed())
	for _, st := range outreach.States {
		if n := s.States[st]; n > 0 {
			fmt.Fprintf(&b, ", %s=%d", st, n)
		}
	}
	fmt.Fprintf(&b, ", malformed=%d, duplicates=%d", s.Malformed, s.Duplicates)
	if s.Stopped {
		fmt.Fprintf(&b, ", stopped with %d not started", s.NotStarted)
	}
	if len(s.Deferred) > 0 {
		fmt.Fprintf(&b, "\ndeferred: %s", strings.Join(s.Deferred, ", "))
	}
	if len(s.SameRecruiter) > 0 {
		fmt.Fprintf(&b, "\nrecruiter already contacted: %s", strings.Join(s.SameRecruiter, ", "))
	}
	if len(s.SyncPending) > 0 {
		fmt.Fprintf(&b, "\nsync pending (message sent, tracker behind): %s", strings.Join(s.SyncPending, ", "))
	}
	ids := make([]string, 0, len(s.Failed))
	for id := range s.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "\nfailed %s: %s", id, s.Failed[id])
	}

	return b.String()
}
