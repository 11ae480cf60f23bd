package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/utils"
)

const previewLength = 120

// OutboxEntry is one line of the dry run outbox.
type OutboxEntry struct {
	JobID      string          `json:"job_id"`
	TemplateID string          `json:"template_id"`
	Note       bool            `json:"note,omitempty"`
	To         string          `json:"to"`
	Name       string          `json:"name"`
	Source     outreach.Source `json:"source"`
	Text       string          `json:"text"`
	SentAt     time.Time       `json:"sent_at"`
}

// Outbox is the dry run channel: messages are appended to a JSON lines file
// for the user to send by hand.
type Outbox struct {
	mu     sync.Mutex
	file   *os.File
	logger *zap.Logger
}

func NewOutbox(path string, logger *zap.Logger) (*Outbox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path == "" {
		return nil, errors.New("outbox path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	return &Outbox{file: file, logger: logger}, nil
}

func (o *Outbox) Name() string { return "log" }

func (o *Outbox) Deliver(_ context.Context, msg *outreach.OutreachMessage, recruiter *outreach.Recruiter) error {
	if !recruiter.Usable() {
		return permanent(o.Name(), errors.New("recruiter has no contact channel"))
	}

	entry := OutboxEntry{
		JobID:      msg.JobID,
		TemplateID: msg.TemplateID,
		Note:       msg.Note,
		To:         recruiter.ContactChannel,
		Name:       recruiter.Name,
		Source:     recruiter.Source,
		Text:       msg.RenderedText,
		SentAt:     msg.SentAt,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return permanent(o.Name(), err)
	}
	line = append(line, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return permanent(o.Name(), errors.New("outbox is closed"))
	}

	if _, err := o.file.Write(line); err != nil {
		return retryable(o.Name(), err)
	}

	o.logger.Info("message written to outbox",
		zap.String("job_id", msg.JobID),
		zap.String("to", recruiter.ContactChannel),
		zap.String("preview", utils.TruncateForLog(msg.RenderedText, previewLength)),
	)

	return nil
}

func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}
