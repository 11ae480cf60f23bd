package tracker

import (
	"time"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

var (
	appliedAt = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	sentAt    = time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.UTC)
)

func trackedJob(id string) *outreach.JobRecord {
	return &outreach.JobRecord{
		JobID:     id,
		Company:   "Acme",
		Title:     "SWE",
		URL:       "https://example.com/jobs/" + id,
		AppliedAt: appliedAt,
		State:     outreach.StateTracked,
		Recruiter: &outreach.Recruiter{
			Name:           "Jane",
			ContactChannel: "jane@x.com",
			Source:         outreach.SourceFallback,
			ResolvedAt:     sentAt.Add(-time.Minute),
		},
		Attempts:   2,
		TemplateID: "first",
		SentAt:     sentAt,
		UpdatedAt:  sentAt,
	}
}

func failedJob(id string) *outreach.JobRecord {
	return &outreach.JobRecord{
		JobID:     id,
		Company:   outreach.Unknown,
		Title:     outreach.Unknown,
		State:     outreach.StateFailed,
		Attempts:  4,
		LastError: "transient lookup failure in page: timeout",
		UpdatedAt: sentAt,
	}
}
