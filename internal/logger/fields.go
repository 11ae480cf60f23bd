package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

const (
	FieldJobID   = "job_id"
	FieldCompany = "company"
	FieldState   = "state"
	FieldRunID   = "run_id"
	FieldSource  = "lookup_source"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// JobFields describes a job in log entries. The company is skipped while it
// is still unknown.
func JobFields(job *outreach.JobRecord) []zap.Field {
	if job == nil {
		return nil
	}

	company := job.Company
	if company == outreach.Unknown {
		company = ""
	}

	return StringFields(
		StringField{Key: FieldJobID, Value: job.JobID},
		StringField{Key: FieldCompany, Value: company},
		StringField{Key: FieldState, Value: job.State.String()},
	)
}

// WithJob returns a logger scoped to job.
func WithJob(logger *zap.Logger, job *outreach.JobRecord) *zap.Logger {
	return WithFields(logger, JobFields(job)...)
}
