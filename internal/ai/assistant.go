package ai

import (
	"context"
	"errors"
)

// ErrTemporary marks provider failures that may succeed on a later attempt,
// such as rate limiting or server side errors.
var ErrTemporary = errors.New("temporary ai provider failure")

// ContactRequest describes the job a recruiter contact is wanted for.
type ContactRequest struct {
	JobID         string
	Company       string
	Title         string
	URL           string
	RecruiterHint string
}

// Contact is a recruiter suggested by an AI provider.
type Contact struct {
	Name       string
	Channel    string
	Confidence float64
	Raw        string
}

// ContactFinder asks a model for the recruiter behind a job. A nil contact
// with a nil error means the provider has no answer.
type ContactFinder interface {
	FindContact(ctx context.Context, req ContactRequest) (*Contact, error)
}
