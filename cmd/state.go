package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

const lockFile = "run.lock"

// state is everything a command shares with other runs on the same state dir.
type state struct {
	lock   *flock.Flock
	sink   tracker.Sink
	sync   *tracker.Sync
	export *tracker.ExportLog
	// history is the last export log snapshot per job.
	history map[string]*outreach.JobRecord
	logger  *zap.Logger
}

// openState takes the state dir lock and opens the tracker and the export log.
func openState(ctx context.Context, config *Config, m *metrics.Metrics, logger *zap.Logger) (*state, error) {
	if err := os.MkdirAll(config.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	lock := flock.New(filepath.Join(config.StateDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("state dir %s is used by another run", config.StateDir)
	}

	s := &state{lock: lock, logger: logger}

	history, err := loadHistory(config.Tracker.ExportLog, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.history = history

	s.export, err = tracker.OpenExportLog(config.Tracker.ExportLog)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.sink, err = newSink(ctx, config, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open tracker: %w", err)
	}

	s.sync = tracker.NewSync(s.sink, newPolicy(config), logger.Named("tracker"), m)

	return s, nil
}

func (s *state) Close() {
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.logger.Warn("closing tracker", zap.Error(err))
		}
	}
	if s.export != nil {
		if err := s.export.Close(); err != nil {
			s.logger.Warn("closing export log", zap.Error(err))
		}
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("releasing state dir lock", zap.Error(err))
	}
}

func loadHistory(path string, logger *zap.Logger) (map[string]*outreach.JobRecord, error) {
	replayed, err := tracker.Replay(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*outreach.JobRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	if replayed.Skipped > 0 {
		logger.Warn("export log has unreadable lines", zap.String("path", path), zap.Int("skipped", replayed.Skipped))
	}

	history := make(map[string]*outreach.JobRecord, len(replayed.Snapshots))
	for id, snap := range replayed.Snapshots {
		if snap.Record != nil {
			history[id] = snap.Record
		}
	}

	return history, nil
}

// behind returns the job ids whose export snapshot is newer than the tracker row.
func behind(ctx context.Context, sink tracker.Sink, history map[string]*outreach.JobRecord) ([]*outreach.JobRecord, error) {
	rows, err := sink.List(ctx)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]*outreach.JobRecord, len(rows))
	for _, row := range rows {
		stored[row.JobID] = row
	}

	var pending []*outreach.JobRecord
	for id, snap := range history {
		row, ok := stored[id]
		if !ok || snap.UpdatedAt.After(row.UpdatedAt) {
			pending = append(pending, snap)
		}
	}

	return pending, nil
}
