// Package compose renders outreach messages from templates.
package compose

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

const (
	// DefaultNoteLimit is the length limit of a connection note.
	DefaultNoteLimit = 300

	ellipsis = "..."
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*(?:\|([^}]*))?\}\}`)

// genericNames are team aliases that should not be greeted by name.
var genericNames = map[string]bool{
	"hiring team":     true,
	"talent team":     true,
	"recruiting team": true,
	"hiring manager":  true,
}

// Template is a message body with {{field}} placeholders. A placeholder may
// carry an inline default, {{field|default}}, which wins over Defaults.
type Template struct {
	ID       string            `mapstructure:"id"`
	Body     string            `mapstructure:"body"`
	Defaults map[string]string `mapstructure:"defaults"`
	// Note marks short connection notes that are cut to the note limit.
	Note bool `mapstructure:"note"`
}

// Composer renders templates. Rendering only depends on its inputs and the clock.
type Composer struct {
	mu        sync.RWMutex
	templates map[string]Template
	sender    string
	noteLimit int
	now       func() time.Time
}

type Option func(*Composer)

func WithSender(sender string) Option {
	return func(c *Composer) { c.sender = strings.TrimSpace(sender) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

func WithNoteLimit(limit int) Option {
	return func(c *Composer) {
		if limit > len(ellipsis) {
			c.noteLimit = limit
		}
	}
}

// WithTemplates registers custom templates, replacing built-ins with the same id.
func WithTemplates(templates ...Template) Option {
	return func(c *Composer) {
		for _, t := range templates {
			if t.ID != "" {
				c.templates[t.ID] = t
			}
		}
	}
}

func New(opts ...Option) *Composer {
	c := &Composer{
		templates: make(map[string]Template),
		noteLimit: DefaultNoteLimit,
		now:       time.Now,
	}
	for _, t := range Builtin() {
		c.templates[t.ID] = t
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Composer) Register(t Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("template id is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("template %q has an empty body", t.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.ID] = t
	return nil
}

func (c *Composer) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[id]
	return ok
}

// Validate renders every id against a fully populated sample job. A failure
// here would fail every job at run time, e.g. a template signed with
// {{sender}} while no sender is configured.
func (c *Composer) Validate(ids ...string) error {
	job := &outreach.JobRecord{
		JobID:     "sample",
		Company:   "Sample Co",
		Title:     "Engineer",
		URL:       "https://example.com/jobs/sample",
		AppliedAt: c.now(),
	}
	recruiter := &outreach.Recruiter{Name: "Jane Doe", ContactChannel: "jane@example.com"}

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := c.Compose(id, job, recruiter); err != nil {
			return err
		}
	}
	return nil
}

// Compose renders templateID for job and recruiter. A placeholder without a
// value and without a default fails with *outreach.TemplateMissingField.
func (c *Composer) Compose(templateID string, job *outreach.JobRecord, recruiter *outreach.Recruiter) (*outreach.OutreachMessage, error) {
	c.mu.RLock()
	tmpl, ok := c.templates[templateID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown template %q", templateID)
	}
	if job == nil {
		return nil, errors.New("job is required")
	}

	values := c.fields(job, recruiter)

	var missing *outreach.TemplateMissingField
	text := placeholder.ReplaceAllStringFunc(tmpl.Body, func(match string) string {
		if missing != nil {
			return match
		}

		groups := placeholder.FindStringSubmatch(match)
		field := strings.ToLower(groups[1])

		if v := values[field]; v != "" {
			return v
		}
		if strings.Contains(match, "|") {
			return strings.TrimSpace(groups[2])
		}
		if v, ok := tmpl.Defaults[field]; ok {
			return v
		}

		missing = &outreach.TemplateMissingField{TemplateID: templateID, Field: field}
		return match
	})
	if missing != nil {
		return nil, missing
	}

	text = strings.TrimSpace(text)
	if tmpl.Note {
		text = shorten(text, c.noteLimit)
	}

	return &outreach.OutreachMessage{
		JobID:        job.JobID,
		RenderedText: text,
		TemplateID:   templateID,
		Note:         tmpl.Note,
	}, nil
}

func (c *Composer) fields(job *outreach.JobRecord, recruiter *outreach.Recruiter) map[string]string {
	values := map[string]string{
		"company":   known(job.Company),
		"job_title": known(job.Title),
		"job_id":    job.JobID,
		"job_url":   job.URL,
		"sender":    c.sender,
		"date":      c.now().UTC().Format("January 2, 2006"),
	}

	if !job.AppliedAt.IsZero() {
		values["applied_at"] = job.AppliedAt.UTC().Format("2006-01-02")
	}

	if recruiter != nil {
		values["contact"] = strings.TrimSpace(recruiter.ContactChannel)

		name := strings.Join(strings.Fields(recruiter.Name), " ")
		if !genericNames[strings.ToLower(name)] {
			values["name"] = name
			if parts := strings.Fields(name); len(parts) > 0 {
				values["first_name"] = parts[0]
			}
		}
	}

	return values
}

func known(v string) string {
	v = strings.TrimSpace(v)
	if v == outreach.Unknown {
		return ""
	}
	return v
}

// shorten cuts text to limit runes, ending it with an ellipsis.
func shorten(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := strings.TrimRight(string(runes[:limit-len(ellipsis)]), " \t\n")
	return cut + ellipsis
}
