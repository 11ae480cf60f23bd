package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  source  ", Value: "  page  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "source" || fields[0].String != "page" {
		t.Fatalf("unexpected source field: %+v", fields[0])
	}

	if empty := StringFields(); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithFields(zap.New(core), zap.String("foo", "bar")).Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if ctx := entries[0].ContextMap(); ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	// the fallback logger must not panic
	WithFields(nil, zap.String("baz", "qux")).Info("another log")
}

func TestJobFields(t *testing.T) {
	tests := []struct {
		name string
		job  *outreach.JobRecord
		want map[string]any
	}{
		{
			name: "full",
			job:  &outreach.JobRecord{JobID: "J1", Company: "Acme", State: outreach.StateTracked},
			want: map[string]any{FieldJobID: "J1", FieldCompany: "Acme", FieldState: "TRACKED"},
		},
		{
			name: "unknown company",
			job:  &outreach.JobRecord{JobID: "J2", Company: outreach.Unknown, State: outreach.StateDiscovered},
			want: map[string]any{FieldJobID: "J2", FieldState: "DISCOVERED"},
		},
		{
			name: "nil",
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, observed := observer.New(zapcore.InfoLevel)
			WithJob(zap.New(core), tt.job).Info("job")

			ctx := observed.All()[0].ContextMap()
			if len(ctx) != len(tt.want) {
				t.Fatalf("expected %d fields, got %v", len(tt.want), ctx)
			}
			for k, v := range tt.want {
				if ctx[k] != v {
					t.Fatalf("field %s: expected %v, got %v", k, v, ctx[k])
				}
			}
		})
	}
}
