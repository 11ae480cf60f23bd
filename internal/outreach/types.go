package outreach

import (
	"strings"
	"time"
)

// Unknown is the sentinel for optional record fields the scraper did not provide.
const Unknown = "unknown"

// Source tells which ranked lookup source produced a recruiter.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Recruiter is the resolved contact for a job. It is never mutated after it
// has been attached to a JobRecord.
type Recruiter struct {
	Name           string    `json:"name"`
	ContactChannel string    `json:"contact_channel"`
	Source         Source    `json:"source"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// JobRecord is one job application under outreach tracking.
type JobRecord struct {
	JobID         string     `json:"job_id"`
	Company       string     `json:"company"`
	Title         string     `json:"title"`
	URL           string     `json:"url,omitempty"`
	RecruiterHint string     `json:"recruiter_hint,omitempty"`
	AppliedAt     time.Time  `json:"applied_at"`
	State         State      `json:"state"`
	Recruiter     *Recruiter `json:"recruiter,omitempty"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`

	TemplateID     string    `json:"template_id,omitempty"`
	SentAt         time.Time `json:"sent_at"`
	FollowUpID     string    `json:"followup_template_id,omitempty"`
	FollowUpSentAt time.Time `json:"followup_sent_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OutreachMessage is a rendered message ready for delivery.
type OutreachMessage struct {
	JobID        string    `json:"job_id"`
	RenderedText string    `json:"rendered_text"`
	TemplateID   string    `json:"template_id"`
	Note         bool      `json:"note,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// Clone returns a copy that can be changed without touching the original.
// Recruiter is shared because it is immutable.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Sent reports whether a message with the given template was already delivered.
func (j *JobRecord) Sent(templateID string) bool {
	switch {
	case templateID == "":
		return false
	case j.TemplateID == templateID && !j.SentAt.IsZero():
		return true
	case j.FollowUpID == templateID && !j.FollowUpSentAt.IsZero():
		return true
	default:
		return false
	}
}

// Usable reports whether the recruiter has something we can deliver to.
func (r *Recruiter) Usable() bool {
	return r != nil && strings.TrimSpace(r.ContactChannel) != ""
}
