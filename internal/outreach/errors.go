package outreach

import (
	"errors"
	"fmt"
)

// MalformedRecord is returned when a raw record cannot become a JobRecord.
type MalformedRecord struct {
	Reason string
	Raw    map[string]any
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("malformed record: %s", e.Reason)
}

// TransientLookupError means a lookup source failed in a way that may succeed on retry.
type TransientLookupError struct {
	Source string
	Err    error
}

func (e *TransientLookupError) Error() string {
	return fmt.Sprintf("transient lookup failure in %s: %v", e.Source, e.Err)
}

func (e *TransientLookupError) Unwrap() error { return e.Err }

// TemplateMissingField is returned when a template references a field that has
// no value and no default.
type TemplateMissingField struct {
	TemplateID string
	Field      string
}

func (e *TemplateMissingField) Error() string {
	return fmt.Sprintf("template %q: field %q is missing and has no default", e.TemplateID, e.Field)
}

// SinkUnavailable is returned by tracker sinks when the store cannot be reached.
type SinkUnavailable struct {
	Sink string
	Err  error
}

func (e *SinkUnavailable) Error() string {
	return fmt.Sprintf("tracker sink %s unavailable: %v", e.Sink, e.Err)
}

func (e *SinkUnavailable) Unwrap() error { return e.Err }

// IsRetryable reports whether err belongs to the retried part of the taxonomy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientLookupError
	if errors.As(err, &transient) {
		return true
	}

	var sink *SinkUnavailable
	if errors.As(err, &sink) {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) {
		return temporary.Temporary()
	}

	return false
}
