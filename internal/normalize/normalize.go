// Package normalize turns raw scraped job entries into canonical job records.
package normalize

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/utils"
)

var appliedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// raw mirrors the keys scrapers are known to emit. Keys are matched
// case-insensitively by mapstructure, so jobId and jobid are the same key.
type raw struct {
	JobID     string `mapstructure:"job_id"`
	ID        string `mapstructure:"id"`
	JobIDAlt  string `mapstructure:"jobId"`
	URL       string `mapstructure:"url"`
	JobURL    string `mapstructure:"job_url"`
	Company   string `mapstructure:"company"`
	CompanyN  string `mapstructure:"company_name"`
	Title     string `mapstructure:"title"`
	JobTitle  string `mapstructure:"job_title"`
	AppliedAt any    `mapstructure:"applied_at"`

	RecruiterName string `mapstructure:"recruiter_name"`
	Recruiter     any    `mapstructure:"recruiter"`
	LinkedInURL   string `mapstructure:"linkedin_url"`
}

// Normalize converts one raw record into a DISCOVERED job record. A record
// without a usable identifier fails with *outreach.MalformedRecord; every
// other missing field falls back to outreach.Unknown or a zero value.
func Normalize(in map[string]any) (*outreach.JobRecord, error) {
	if len(in) == 0 {
		return nil, &outreach.MalformedRecord{Reason: "empty record", Raw: in}
	}

	var r raw
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	if err := dec.Decode(in); err != nil {
		return nil, &outreach.MalformedRecord{Reason: err.Error(), Raw: in}
	}

	jobURL := firstNonEmpty(r.URL, r.JobURL)

	id := firstNonEmpty(r.JobID, r.ID, r.JobIDAlt)
	if id == "" {
		id = idFromURL(jobURL)
	}
	if id == "" {
		return nil, &outreach.MalformedRecord{Reason: "record has no job identifier", Raw: in}
	}

	job := &outreach.JobRecord{
		JobID:         id,
		Company:       orUnknown(firstNonEmpty(r.Company, r.CompanyN)),
		Title:         orUnknown(firstNonEmpty(r.Title, r.JobTitle)),
		URL:           jobURL,
		RecruiterHint: recruiterHint(r),
		AppliedAt:     parseAppliedAt(r.AppliedAt),
		State:         outreach.StateDiscovered,
	}

	return job, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = utils.CleanText(v); v != "" {
			return v
		}
	}
	return ""
}

func orUnknown(v string) string {
	if v == "" {
		return outreach.Unknown
	}
	return v
}

// CleanURL drops the query string and fragment, as tracking parameters change
// between scrapes of the same page.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		if idx := strings.IndexAny(raw, "?#"); idx != -1 {
			return raw[:idx]
		}
		return raw
	}

	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

func idFromURL(raw string) string {
	cleaned := CleanURL(raw)
	if cleaned == "" {
		return ""
	}

	u, err := url.Parse(cleaned)
	if err != nil || u.Path == "" {
		return ""
	}

	last := path.Base(strings.TrimRight(u.Path, "/"))
	if last == "." || last == "/" {
		return ""
	}
	return last
}

func recruiterHint(r raw) string {
	if name := utils.CleanText(r.RecruiterName); name != "" {
		return name
	}

	switch v := r.Recruiter.(type) {
	case string:
		if name := utils.CleanText(v); name != "" {
			return name
		}
	case map[string]any:
		if name, ok := v["name"].(string); ok && utils.CleanText(name) != "" {
			return utils.CleanText(name)
		}
	}

	return CleanURL(r.LinkedInURL)
}

func parseAppliedAt(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val.UTC()
	case int:
		return time.Unix(int64(val), 0).UTC()
	case int64:
		return time.Unix(val, 0).UTC()
	case float64:
		return time.Unix(int64(val), 0).UTC()
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range appliedAtLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}

	return time.Time{}
}
