package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/intake"
	"github.com/spigell/recruiter-outreach/internal/outreach"
)

type companiesFilter struct {
	companies map[string]bool
	names     []string
	logger    *zap.Logger
}

// NewExcludedCompanies creates a filter that drops jobs at the given companies.
// Names are compared case-insensitively.
func NewExcludedCompanies(companies []string, logger *zap.Logger) Filter {
	f := &companiesFilter{companies: make(map[string]bool), logger: logger}
	for _, c := range companies {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			f.companies[c] = true
			f.names = append(f.names, c)
		}
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

func (f *companiesFilter) Name() string { return "companies" }

func (f *companiesFilter) Disable(string) {}

func (f *companiesFilter) IsEnabled() bool { return true }

func (f *companiesFilter) Validate() error { return nil }

func (f *companiesFilter) Apply(_ context.Context, records []intake.Record) ([]intake.Record, Step, error) {
	initial := len(records)
	if len(f.companies) == 0 {
		return records, Step{Initial: initial, Left: initial}, nil
	}

	kept, dropped := exclude(records, func(job *outreach.JobRecord) bool {
		return f.companies[strings.ToLower(job.Company)]
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding jobs by companies",
			zap.Strings("excluded_companies", f.names),
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(kept)),
		)
	}

	return kept, step(initial, dropped, kept), nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.names) > 0 {
		details["companies"] = strings.Join(f.names, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
