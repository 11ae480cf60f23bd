package tracker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

// Entry is one transition in the export log.
type Entry struct {
	RunID     string              `json:"run_id,omitempty"`
	JobID     string              `json:"job_id"`
	From      outreach.State      `json:"from,omitempty"`
	State     outreach.State      `json:"state"`
	Attempts  int                 `json:"attempts"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Record    *outreach.JobRecord `json:"record,omitempty"`
}

// ExportLog is the append-only JSON lines file of every transition. It is the
// recovery source when the tracker sink is behind.
type ExportLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func OpenExportLog(path string) (*ExportLog, error) {
	if path == "" {
		return nil, errors.New("export log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export log dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open export log: %w", err)
	}

	return &ExportLog{path: path, file: file}, nil
}

func (l *ExportLog) Path() string { return l.path }

// Append writes one entry and syncs it to disk before returning.
func (l *ExportLog) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode export entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("export log is closed")
	}

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("write export log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync export log: %w", err)
	}

	return nil
}

func (l *ExportLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Snapshot is the last known record of a job according to the export log.
type Snapshot struct {
	Entry  Entry
	Record *outreach.JobRecord
}

// ReplayResult holds the latest snapshot per job, in order of first appearance.
type ReplayResult struct {
	Order     []string
	Snapshots map[string]*Snapshot
	// Skipped counts lines that could not be decoded, such as a torn last write.
	Skipped int
}

func Replay(path string) (*ReplayResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export log: %w", err)
	}
	defer file.Close()

	return ReplayFrom(file)
}

func ReplayFrom(r io.Reader) (*ReplayResult, error) {
	res := &ReplayResult{Snapshots: make(map[string]*Snapshot)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.JobID == "" {
			res.Skipped++
			continue
		}

		snap, ok := res.Snapshots[e.JobID]
		if !ok {
			snap = &Snapshot{}
			res.Snapshots[e.JobID] = snap
			res.Order = append(res.Order, e.JobID)
		}

		snap.Entry = e
		if e.Record != nil {
			snap.Record = e.Record
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export log: %w", err)
	}

	return res, nil
}
