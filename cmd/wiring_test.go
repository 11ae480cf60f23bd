package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/compose"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/pipeline"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

func TestConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	config.applyDefaults()

	if config.MaxAttempts != 3 || config.BackoffBaseMS != 500 || config.BackoffMultiplier != 2 {
		t.Fatalf("unexpected retry defaults: %+v", config)
	}
	if config.TemplateID != "first" || config.FollowUp.TemplateID != "followup" {
		t.Fatalf("unexpected template defaults: %q %q", config.TemplateID, config.FollowUp.TemplateID)
	}
	if config.FollowUp.DaysWait != 3 || config.FollowUp.MaxPerRun != 10 || config.MaxMessagesPerRun != 20 {
		t.Fatalf("unexpected caps: %+v", config.FollowUp)
	}
	if config.Tracker.Path != filepath.Join(".outreach", "tracker.db") {
		t.Fatalf("unexpected tracker path %q", config.Tracker.Path)
	}
	if config.Tracker.ExportLog != filepath.Join(".outreach", "export.jsonl") {
		t.Fatalf("unexpected export log %q", config.Tracker.ExportLog)
	}
}

func TestNewComposer(t *testing.T) {
	config := &Config{Sender: "Alex", TemplateID: "first", FollowUp: pipeline.FollowUpConfig{TemplateID: "followup"}}
	if _, err := newComposer(config); err != nil {
		t.Fatalf("builtin templates should be enough: %v", err)
	}

	config.TemplateID = "custom"
	if _, err := newComposer(config); err == nil || !strings.Contains(err.Error(), `"custom"`) {
		t.Fatalf("expected unknown template error, got %v", err)
	}

	config.Templates = []compose.Template{{ID: "custom", Body: "Hi {{name}}"}}
	if _, err := newComposer(config); err != nil {
		t.Fatalf("custom template should register: %v", err)
	}
}

func TestNewComposerRequiresTemplateFields(t *testing.T) {
	config := &Config{TemplateID: "first", FollowUp: pipeline.FollowUpConfig{TemplateID: "followup"}}
	if _, err := newComposer(config); err == nil || !strings.Contains(err.Error(), `"sender"`) {
		t.Fatalf("expected missing sender error, got %v", err)
	}

	config.Sender = "Alex"
	config.Templates = []compose.Template{{ID: "followup", Body: "Hi {{name}}, {{portfolio}}"}}
	if _, err := newComposer(config); err == nil || !strings.Contains(err.Error(), `"portfolio"`) {
		t.Fatalf("expected missing portfolio error, got %v", err)
	}
}

func TestNewSource(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     *SourceConfig
		want    string
		wantErr bool
	}{
		{name: "page", cfg: &SourceConfig{Kind: "page"}, want: "page"},
		{name: "api with name", cfg: &SourceConfig{Kind: "API", Name: "crm", URL: "http://localhost/lookup"}, want: "crm"},
		{name: "api without url", cfg: &SourceConfig{Kind: "api"}, wantErr: true},
		{name: "missing directory", cfg: &SourceConfig{Kind: "directory", Path: filepath.Join(dir, "nope.yaml")}, wantErr: true},
		{name: "gemini without key", cfg: &SourceConfig{Kind: "gemini", TokenEnv: "OUTREACH_TEST_NO_KEY"}, wantErr: true},
		{name: "unknown", cfg: &SourceConfig{Kind: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := newSource(context.Background(), "primary", tt.cfg, zap.NewNop())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Name() != tt.want {
				t.Fatalf("expected name %q, got %q", tt.want, src.Name())
			}
		})
	}
}

func TestNewResolverRequiresPrimary(t *testing.T) {
	if _, err := newResolver(context.Background(), &Config{}, nil, zap.NewNop()); err == nil {
		t.Fatalf("expected error without primary source")
	}
}

func TestOpenStateAndHistory(t *testing.T) {
	dir := t.TempDir()
	config := &Config{StateDir: dir, MaxAttempts: 1, BackoffBaseMS: -1}
	config.applyDefaults()

	updated := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	job := &outreach.JobRecord{JobID: "J1", Company: "Acme", Title: "SWE", State: outreach.StateMessageSent, UpdatedAt: updated}

	export, err := tracker.OpenExportLog(config.Tracker.ExportLog)
	if err != nil {
		t.Fatalf("open export log: %v", err)
	}
	if err := export.Append(tracker.Entry{RunID: "r1", JobID: "J1", From: outreach.StateRecruiterResolved, State: job.State, Timestamp: updated, Record: job}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := export.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err := openState(context.Background(), config, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("open state: %v", err)
	}

	if _, err := openState(context.Background(), config, nil, zap.NewNop()); err == nil {
		t.Fatalf("expected second run on the same state dir to be refused")
	}

	if got := st.history["J1"]; got == nil || got.State != outreach.StateMessageSent {
		t.Fatalf("unexpected history: %+v", st.history)
	}

	pending, err := behind(context.Background(), st.sink, st.history)
	if err != nil {
		t.Fatalf("behind: %v", err)
	}
	if len(pending) != 1 || pending[0].JobID != "J1" {
		t.Fatalf("expected J1 to be behind, got %v", pending)
	}

	if err := st.sync.Upsert(context.Background(), pending[0]); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pending, err = behind(context.Background(), st.sink, st.history)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected tracker to be up to date, got %v, %v", pending, err)
	}

	st.Close()

	st, err = openState(context.Background(), config, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	st.Close()
}

func TestLoadHistoryMissing(t *testing.T) {
	history, err := loadHistory(filepath.Join(t.TempDir(), "export.jsonl"), zap.NewNop())
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v, %v", history, err)
	}
}

func TestIncludeTrackedOnlyKeepsRecordsInFilterStep(t *testing.T) {
	flag := runCmd.Flags().Lookup("include-tracked")
	if flag == nil || !strings.Contains(flag.Usage, "filter step") || !strings.Contains(flag.Usage, "never reprocessed") {
		t.Fatalf("unexpected include-tracked help: %+v", flag)
	}

	if err := runCmd.Flags().Set("include-tracked", "true"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	t.Cleanup(func() { _ = runCmd.Flags().Set("include-tracked", "false") })

	status := prepareTrackedFilter(runCmd, nil, zap.NewNop()).Status()
	if status.Details["exclude_finished"] != "false" {
		t.Fatalf("expected the filter step to keep finished jobs, got %+v", status)
	}
}
