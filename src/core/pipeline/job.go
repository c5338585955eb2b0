package pipeline

import (
	"context"
	"encoding/json"
	"time"
)

// State is the lifecycle state of a job. Transitions only ever move
// forward: DRAFT → PENDING → STARTED → PROGRESS → SUCCESS or FAILURE.
type State string

const (
	StateDraft    State = "DRAFT"
	StatePending  State = "PENDING"
	StateStarted  State = "STARTED"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Terminal reports whether a job in this state will never change again.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Job is one pipeline execution. A job is written only by the worker
// currently executing it; any number of pollers may read it.
type Job struct {
	ID          int64
	Kind        string
	State       State
	Progress    int
	CurrentStep int
	StepName    string
	TotalSteps  int
	StepRange   string
	RunID       string
	Params      json.RawMessage
	Result      json.RawMessage
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobStore is the durable record store for jobs.
//
// Get returns (nil, nil) when no job exists for the id. Transition
// performs a guarded state change and returns ErrStateConflict when the
// job is no longer in the expected state, which is how duplicate queue
// deliveries are fenced off.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	Update(ctx context.Context, job *Job) error
	Transition(ctx context.Context, id int64, from, to State) error
	ListByIDs(ctx context.Context, ids []int64) ([]Job, error)
}
