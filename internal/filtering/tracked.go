package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/intake"
	"github.com/spigell/recruiter-outreach/internal/outreach"
)

const forceFlagSetMsg = "force flag is set"

// Lister returns every stored tracker row.
type Lister interface {
	List(ctx context.Context) ([]*outreach.JobRecord, error)
}

type AlreadyTrackedDeps struct {
	Tracker Lister
	Logger  *zap.Logger
}

type AlreadyTrackedConfig struct {
	Ignore bool
}

type alreadyTrackedFilter struct {
	deps   *AlreadyTrackedDeps
	ignore bool
}

// NewAlreadyTracked creates a filter that drops jobs whose tracker row is in a
// terminal state.
func NewAlreadyTracked(cfg *AlreadyTrackedConfig, deps *AlreadyTrackedDeps) Filter {
	ignore := false
	if cfg != nil {
		ignore = cfg.Ignore
	}

	return &alreadyTrackedFilter{
		deps:   deps,
		ignore: ignore,
	}
}

func (f *alreadyTrackedFilter) Name() string { return "already_tracked" }

func (f *alreadyTrackedFilter) Disable(string) {}

func (f *alreadyTrackedFilter) IsEnabled() bool { return true }

func (f *alreadyTrackedFilter) Validate() error {
	if f.deps == nil || f.deps.Tracker == nil {
		return fmt.Errorf("tracker is required")
	}

	if f.deps.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	return nil
}

func (f *alreadyTrackedFilter) Apply(ctx context.Context, records []intake.Record) ([]intake.Record, Step, error) {
	initial := len(records)
	if f.ignore {
		f.deps.Logger.Info("keeping already finished jobs", zap.String("reason", forceFlagSetMsg))
		return records, Step{Initial: initial, Left: initial}, nil
	}

	rows, err := f.deps.Tracker.List(ctx)
	if err != nil {
		return nil, Step{}, fmt.Errorf("list tracker rows: %w", err)
	}

	finished := make(map[string]outreach.State, len(rows))
	for _, row := range rows {
		if row.State.Terminal() {
			finished[row.JobID] = row.State
		}
	}

	kept, dropped := exclude(records, func(job *outreach.JobRecord) bool {
		_, ok := finished[job.JobID]
		return ok
	})
	if len(dropped) > 0 {
		f.deps.Logger.Info("excluding jobs already finished in the tracker",
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(kept)),
		)
	}

	return kept, step(initial, dropped, kept), nil
}

func (f *alreadyTrackedFilter) Status() Status {
	details := map[string]string{
		"exclude_finished": strconv.FormatBool(!f.ignore),
	}
	reason := ""
	if f.ignore {
		reason = "skip requested via flag"
	}
	return Status{Name: f.Name(), Enabled: true, Reason: reason, Details: details}
}
