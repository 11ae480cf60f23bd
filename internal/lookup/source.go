// Package lookup resolves recruiter contacts through a ranked list of sources.
package lookup

import (
	"context"
	"strings"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// Outcome classifies a single source answer.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Transient:
		return "transient"
	default:
		return "not_found"
	}
}

// Query is what a source gets to work with.
type Query struct {
	JobID         string
	Company       string
	Title         string
	RecruiterHint string
	URL           string
}

// Contact is the raw answer of a source.
type Contact struct {
	Name    string
	Channel string
}

// Result is a typed source answer. Err carries the cause of a Transient outcome.
type Result struct {
	Outcome Outcome
	Contact Contact
	Err     error
}

// Source is a recruiter lookup service. A non-nil error is a failure that
// fits none of the outcomes and is not retried.
type Source interface {
	Name() string
	Lookup(ctx context.Context, q Query) (Result, error)
}

func FoundContact(name, channel string) Result {
	return Result{Outcome: Found, Contact: Contact{Name: name, Channel: channel}}
}

func NoData() Result {
	return Result{Outcome: NotFound}
}

func TransientFailure(err error) Result {
	return Result{Outcome: Transient, Err: err}
}

// QueryFor builds a query from a job record, dropping unknown sentinels.
func QueryFor(job *outreach.JobRecord) Query {
	return Query{
		JobID:         job.JobID,
		Company:       known(job.Company),
		Title:         known(job.Title),
		RecruiterHint: strings.TrimSpace(job.RecruiterHint),
		URL:           strings.TrimSpace(job.URL),
	}
}

func known(v string) string {
	v = strings.TrimSpace(v)
	if v == outreach.Unknown {
		return ""
	}
	return v
}
