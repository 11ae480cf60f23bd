package lookup

import (
	"context"
	"errors"

	"github.com/spigell/recruiter-outreach/internal/ai"
)

// Assistant adapts an AI contact finder to a lookup source.
type Assistant struct {
	name   string
	finder ai.ContactFinder
}

func NewAssistant(name string, finder ai.ContactFinder) *Assistant {
	if name == "" {
		name = "assistant"
	}
	return &Assistant{name: name, finder: finder}
}

func (a *Assistant) Name() string { return a.name }

func (a *Assistant) Lookup(ctx context.Context, q Query) (Result, error) {
	contact, err := a.finder.FindContact(ctx, ai.ContactRequest{
		JobID:         q.JobID,
		Company:       q.Company,
		Title:         q.Title,
		URL:           q.URL,
		RecruiterHint: q.RecruiterHint,
	})
	if err != nil {
		if errors.Is(err, ai.ErrTemporary) {
			return TransientFailure(err), nil
		}
		return Result{}, err
	}

	if contact == nil {
		return NoData(), nil
	}

	return FoundContact(contact.Name, contact.Channel), nil
}
