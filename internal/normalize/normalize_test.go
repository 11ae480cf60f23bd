package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     map[string]any
		id      string
		company string
		title   string
		hint    string
	}{
		{
			name:    "id key",
			raw:     map[string]any{"id": "J1", "company": "Acme", "title": "SWE"},
			id:      "J1",
			company: "Acme",
			title:   "SWE",
		},
		{
			name:    "job_id wins over id",
			raw:     map[string]any{"job_id": "A", "id": "B", "company": "Acme", "title": "SWE"},
			id:      "A",
			company: "Acme",
			title:   "SWE",
		},
		{
			name:    "numeric id",
			raw:     map[string]any{"jobId": 42, "company_name": "Initech", "job_title": "Analyst"},
			id:      "42",
			company: "Initech",
			title:   "Analyst",
		},
		{
			name:    "id from url",
			raw:     map[string]any{"url": "https://jobright.ai/jobs/info/abc123?utm=x#top"},
			id:      "abc123",
			company: outreach.Unknown,
			title:   outreach.Unknown,
		},
		{
			name:    "whitespace collapsed",
			raw:     map[string]any{"id": " J2 ", "company": "  Big   Corp ", "title": "Data\nAnalyst", "recruiter_name": " Jane  Doe "},
			id:      "J2",
			company: "Big Corp",
			title:   "Data Analyst",
			hint:    "Jane Doe",
		},
		{
			name:    "linkedin hint cleaned",
			raw:     map[string]any{"id": "J3", "linkedin_url": "https://www.linkedin.com/in/jane/?trk=abc"},
			id:      "J3",
			company: outreach.Unknown,
			title:   outreach.Unknown,
			hint:    "https://www.linkedin.com/in/jane",
		},
		{
			name:    "nested recruiter",
			raw:     map[string]any{"id": "J4", "recruiter": map[string]any{"name": "Bob"}},
			id:      "J4",
			company: outreach.Unknown,
			title:   outreach.Unknown,
			hint:    "Bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if job.JobID != tt.id {
				t.Fatalf("expected id %q, got %q", tt.id, job.JobID)
			}
			if job.Company != tt.company || job.Title != tt.title {
				t.Fatalf("unexpected company/title: %q / %q", job.Company, job.Title)
			}
			if job.RecruiterHint != tt.hint {
				t.Fatalf("expected hint %q, got %q", tt.hint, job.RecruiterHint)
			}
			if job.State != outreach.StateDiscovered {
				t.Fatalf("expected DISCOVERED, got %s", job.State)
			}
		})
	}
}

func TestNormalizeMissingIdentifier(t *testing.T) {
	for _, raw := range []map[string]any{
		{"company": "Acme", "title": "SWE"},
		{"id": "   ", "company": "Acme"},
		{},
		nil,
	} {
		_, err := Normalize(raw)

		var malformed *outreach.MalformedRecord
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedRecord for %v, got %v", raw, err)
		}
	}
}

func TestNormalizeAppliedAt(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, v := range []any{"2024-03-01", "2024-03-01T00:00:00Z", want.Unix(), float64(want.Unix()), "1709251200"} {
		job, err := Normalize(map[string]any{"id": "J1", "applied_at": v})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !job.AppliedAt.Equal(want) {
			t.Fatalf("applied_at %v: expected %s, got %s", v, want, job.AppliedAt)
		}
	}

	job, err := Normalize(map[string]any{"id": "J1", "applied_at": "yesterday"})
	if err != nil {
		t.Fatalf("unparseable applied_at must not fail: %v", err)
	}
	if !job.AppliedAt.IsZero() {
		t.Fatalf("expected zero applied_at, got %s", job.AppliedAt)
	}
}

func TestDeduper(t *testing.T) {
	d := NewDeduper()
	if d.Seen("J1") {
		t.Fatalf("first sighting reported as duplicate")
	}
	if !d.Seen("J1") {
		t.Fatalf("second sighting not reported as duplicate")
	}
	if d.Seen("J2") {
		t.Fatalf("J2 was not seen yet")
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 ids, got %d", d.Len())
	}
}
