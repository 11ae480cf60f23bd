// Package filtering drops input records before they reach the pipeline.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/intake"
	"github.com/spigell/recruiter-outreach/internal/normalize"
	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// Filter represents a single filtering step applied to input records.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, records []intake.Record) ([]intake.Record, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

type Filtering struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, logger *zap.Logger) *Filtering {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filtering{steps: steps, logger: logger}
}

// RunFilters validates every enabled step and then applies them in order.
func (f *Filtering) RunFilters(ctx context.Context, records []intake.Record) ([]intake.Record, error) {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		records = next
	}

	return records, nil
}

// Describe returns status entries for the configured filters.
func (f *Filtering) Describe() []Status {
	statuses := make([]Status, 0, len(f.steps))
	for _, step := range f.steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// exclude keeps the records drop rejects. Records that do not normalize are
// kept so the pipeline can report them as malformed.
func exclude(records []intake.Record, drop func(job *outreach.JobRecord) bool) ([]intake.Record, []string) {
	kept := make([]intake.Record, 0, len(records))
	var dropped []string

	for _, rec := range records {
		if rec.Err != nil {
			kept = append(kept, rec)
			continue
		}

		job, err := normalize.Normalize(rec.Raw)
		if err != nil || !drop(job) {
			kept = append(kept, rec)
			continue
		}

		dropped = append(dropped, job.JobID)
	}

	return kept, dropped
}

func step(initial int, dropped []string, left []intake.Record) Step {
	return Step{Initial: initial, Dropped: len(dropped), Left: len(left)}
}
