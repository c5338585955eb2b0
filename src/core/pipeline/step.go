package pipeline

import (
	"context"
	"encoding/json"
	"time"
)

// StepStatus is the status of one persisted step record.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusRunning  StepStatus = "running"
	StepStatusComplete StepStatus = "complete"
	StepStatusSkipped  StepStatus = "skipped"
	StepStatusError    StepStatus = "error"
)

// StepRecord is the persisted trace of one ordinal stage of a job. The
// Output payload is step-specific and stored verbatim; the orchestrator
// never branches on its contents.
type StepRecord struct {
	ID            int64
	JobID         int64
	RunID         string
	Ordinal       int
	Name          string
	Status        StepStatus
	InputSummary  string
	OutputSummary string
	Output        json.RawMessage
	ArtifactURL   string
	DurationMS    int64
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StepStore persists step records. ListByRun returns records across
// every job that has executed under the run id, oldest first.
type StepStore interface {
	Append(ctx context.Context, rec *StepRecord) error
	Update(ctx context.Context, rec *StepRecord) error
	ListByRun(ctx context.Context, runID string) ([]StepRecord, error)
	ListByJob(ctx context.Context, jobID int64) ([]StepRecord, error)
}

// Step is one executable stage of a pipeline kind. Implementations do
// the actual domain work; the executor only sequences them.
type Step interface {
	Name() string
	Execute(ctx context.Context, sc *StepContext) (*StepResult, error)
}

// StepContext carries what a step may read: the owning job, the job's
// raw params, and the outputs of the steps completed before it, keyed
// by ordinal. Outputs include results seeded from earlier jobs of the
// same run when the job was created by resume.
type StepContext struct {
	Job     *Job
	Params  json.RawMessage
	Outputs map[int]StepOutput
}

// StepOutput is the reusable output of a completed step.
type StepOutput struct {
	Name        string
	Output      json.RawMessage
	ArtifactURL string
}

// StepResult is what a step reports on success. Result, when set,
// becomes the job's final payload if no later step overrides it.
type StepResult struct {
	InputSummary  string
	OutputSummary string
	Output        json.RawMessage
	ArtifactURL   string
	Result        json.RawMessage
}
