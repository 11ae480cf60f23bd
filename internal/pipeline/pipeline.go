// Package pipeline drives job records through the outreach lifecycle.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

// Resolver finds the recruiter of a job. A nil recruiter with no error means
// nobody was found.
type Resolver interface {
	Resolve(ctx context.Context, job *outreach.JobRecord) (*outreach.Recruiter, error)
}

type Composer interface {
	Compose(templateID string, job *outreach.JobRecord, recruiter *outreach.Recruiter) (*outreach.OutreachMessage, error)
}

// Tracker persists resting snapshots and loads rows left by earlier runs.
type Tracker interface {
	Upsert(ctx context.Context, job *outreach.JobRecord) error
	Load(ctx context.Context, id string) (*outreach.JobRecord, error)
}

// Exporter is the append-only transition log.
type Exporter interface {
	Append(e tracker.Entry) error
}

// Decision is the answer of an Approver.
type Decision int

const (
	Approve Decision = iota
	Decline
	ApproveAll
	StopRun
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Decline:
		return "decline"
	case ApproveAll:
		return "approve-all"
	case StopRun:
		return "stop"
	default:
		return "unknown"
	}
}

// Approver confirms a rendered message before it is delivered. Calls are
// serialized by the machine.
type Approver interface {
	Approve(ctx context.Context, job *outreach.JobRecord, msg *outreach.OutreachMessage) (Decision, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, job *outreach.JobRecord, msg *outreach.OutreachMessage) (Decision, error)

func (f ApproverFunc) Approve(ctx context.Context, job *outreach.JobRecord, msg *outreach.OutreachMessage) (Decision, error) {
	return f(ctx, job, msg)
}

// errStopped ends the processing of a record that is waiting while the run stops.
var errStopped = errors.New("run stopped")

// FollowUpConfig controls Machine.FollowUp.
type FollowUpConfig struct {
	TemplateID string `mapstructure:"template-id"`
	DaysWait   int    `mapstructure:"days-wait"`
	MaxPerRun  int    `mapstructure:"max-per-run"`
}

func (c FollowUpConfig) wait() time.Duration {
	return time.Duration(c.DaysWait) * 24 * time.Hour
}
