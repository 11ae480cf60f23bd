package tracker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// columns is the flattened tracker row layout shared by every sink.
var columns = []string{
	"job_id",
	"company",
	"title",
	"url",
	"recruiter_hint",
	"applied_at",
	"state",
	"recruiter_name",
	"recruiter_contact",
	"recruiter_source",
	"recruiter_resolved_at",
	"attempts",
	"last_error",
	"template_id",
	"sent_at",
	"followup_template_id",
	"followup_sent_at",
	"updated_at",
}

// toRow flattens a record. Every value comes from the snapshot itself so the
// same snapshot always produces the same row.
func toRow(job *outreach.JobRecord) []string {
	var name, contact, source, resolvedAt string
	if r := job.Recruiter; r != nil {
		name = r.Name
		contact = r.ContactChannel
		source = string(r.Source)
		resolvedAt = formatTime(r.ResolvedAt)
	}

	return []string{
		job.JobID,
		job.Company,
		job.Title,
		job.URL,
		job.RecruiterHint,
		formatTime(job.AppliedAt),
		job.State.String(),
		name,
		contact,
		source,
		resolvedAt,
		strconv.Itoa(job.Attempts),
		job.LastError,
		job.TemplateID,
		formatTime(job.SentAt),
		job.FollowUpID,
		formatTime(job.FollowUpSentAt),
		formatTime(job.UpdatedAt),
	}
}

func fromRow(values []string) (*outreach.JobRecord, error) {
	if len(values) != len(columns) {
		return nil, fmt.Errorf("tracker row has %d values, expected %d", len(values), len(columns))
	}

	get := func(i int) string { return values[i] }

	state, err := outreach.ParseState(get(6))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", get(0), err)
	}

	attempts, err := strconv.Atoi(orZero(get(11)))
	if err != nil {
		return nil, fmt.Errorf("job %s: attempts: %w", get(0), err)
	}

	job := &outreach.JobRecord{
		JobID:         get(0),
		Company:       get(1),
		Title:         get(2),
		URL:           get(3),
		RecruiterHint: get(4),
		State:         state,
		Attempts:      attempts,
		LastError:     get(12),
		TemplateID:    get(13),
		FollowUpID:    get(15),
	}

	times := []struct {
		idx int
		dst *time.Time
	}{
		{5, &job.AppliedAt},
		{14, &job.SentAt},
		{16, &job.FollowUpSentAt},
		{17, &job.UpdatedAt},
	}
	for _, tv := range times {
		if *tv.dst, err = parseTime(get(tv.idx)); err != nil {
			return nil, fmt.Errorf("job %s: %s: %w", get(0), columns[tv.idx], err)
		}
	}

	if contact := get(8); contact != "" {
		resolvedAt, err := parseTime(get(10))
		if err != nil {
			return nil, fmt.Errorf("job %s: recruiter_resolved_at: %w", get(0), err)
		}
		job.Recruiter = &outreach.Recruiter{
			Name:           get(7),
			ContactChannel: contact,
			Source:         outreach.Source(get(9)),
			ResolvedAt:     resolvedAt,
		}
	}

	return job, nil
}

func rowMap(job *outreach.JobRecord) map[string]any {
	row := toRow(job)
	fields := make(map[string]any, len(columns))
	for i, col := range columns {
		fields[col] = row[i]
	}
	return fields
}

func fromMap(fields map[string]string) (*outreach.JobRecord, error) {
	values := make([]string, len(columns))
	for i, col := range columns {
		values[i] = fields[col]
	}
	return fromRow(values)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
