// Package run persists pipeline runs and their update-stream events to
// SQLite, so a finished or in-flight apply can be inspected after the fact.
package run

import (
	"context"
	"time"
)

// Status mirrors the orchestrator's own state machine (SPEC_FULL.md section
// 4.7) rather than an independent status enum, so a persisted Run's status
// is always one of the states the pipeline itself can be in.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusPlanning          Status = "planning"
	StatusResourcesExpanded Status = "resources_expanded"
	StatusStatesProbed      Status = "states_probed"
	StatusDiffed            Status = "diffed"
	StatusLowered           Status = "lowered"
	StatusApplying          Status = "applying"
	StatusDone              Status = "done"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// Run is a persisted record of one apply invocation.
type Run struct {
	ID          string
	PlanID      string
	ParamsJSON  string
	Status      Status
	Epoch       int
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RunEvent is a persisted copy of one updatestream.Record, keyed by
// (run_id, sequence) so replay order survives independent of arrival order
// at any particular subscriber.
type RunEvent struct {
	ID        int64
	RunID     string
	Sequence  int64
	Kind      string
	Payload   string // JSON-encoded updatestream.Record
	Timestamp time.Time
}

// Store is the persistence interface internal/pipeline depends on. A nil
// Store is a valid no-op: the orchestrator treats persistence as an
// observational side effect, not pipeline-semantic I/O.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status Status, epoch int, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, e *RunEvent) error
	ListEvents(ctx context.Context, runID string, afterSequence int64, limit int) ([]*RunEvent, error)

	HealthCheck(ctx context.Context) error
}
