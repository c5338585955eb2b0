package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"packsight/src/log"
)

// CredentialValidator checks the credential presented when starting a
// gated job. Pass/fail only; implementations keep no state.
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) error
}

// Enqueuer hands a created job to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// Service owns the job lifecycle: creation, the gated start path,
// resume, and the pollable status read. All entry points return as
// soon as the job record is written and enqueued; progress is observed
// exclusively through GetStatus.
type Service struct {
	jobs      JobStore
	steps     StepStore
	runs      RunStore
	registry  *Registry
	queue     Enqueuer
	validator CredentialValidator
}

func NewService(jobs JobStore, steps StepStore, runs RunStore, registry *Registry, queue Enqueuer, validator CredentialValidator) *Service {
	return &Service{
		jobs:      jobs,
		steps:     steps,
		runs:      runs,
		registry:  registry,
		queue:     queue,
		validator: validator,
	}
}

// Init creates a DRAFT job for a gated kind. Nothing is enqueued; the
// job waits for Start. Ungated kinds are rejected and go through Run.
func (s *Service) Init(ctx context.Context, kind string, params json.RawMessage) (*Job, error) {
	def, ok := s.registry.Get(kind)
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q: %w", kind, ErrValidation)
	}
	if !def.Gated {
		return nil, fmt.Errorf("kind %q is not gated, use run: %w", kind, ErrValidation)
	}

	job, err := s.createJob(ctx, def, params, StateDraft)
	if err != nil {
		return nil, err
	}

	log.Info("job initialized", "jobID", job.ID, "kind", kind, "runID", job.RunID)
	return job, nil
}

// Start validates the credential and releases a DRAFT job to the
// worker pool. Validation failure leaves the job in DRAFT untouched.
func (s *Service) Start(ctx context.Context, jobID int64, credential string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	if job.State != StateDraft {
		return fmt.Errorf("job %d is %s, not DRAFT: %w", jobID, job.State, ErrStateConflict)
	}

	if verr := s.validator.Validate(ctx, credential); verr != nil {
		return fmt.Errorf("%w: %v", ErrValidation, verr)
	}

	if err := s.jobs.Transition(ctx, job.ID, StateDraft, StatePending); err != nil {
		return fmt.Errorf("failed to release job %d: %w", jobID, err)
	}
	job.State = StatePending

	if err := s.enqueue(ctx, job); err != nil {
		return err
	}

	log.Info("job started", "jobID", job.ID, "kind", job.Kind)
	return nil
}

// Run creates a job for an ungated kind directly in PENDING and
// enqueues it.
func (s *Service) Run(ctx context.Context, kind string, params json.RawMessage) (*Job, error) {
	def, ok := s.registry.Get(kind)
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q: %w", kind, ErrValidation)
	}
	if def.Gated {
		return nil, fmt.Errorf("kind %q is gated, use init and start: %w", kind, ErrValidation)
	}

	job, err := s.createJob(ctx, def, params, StatePending)
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, job); err != nil {
		return nil, err
	}

	log.Info("job enqueued", "jobID", job.ID, "kind", kind, "runID", job.RunID)
	return job, nil
}

// Status is the pollable snapshot of one job. Reading it never mutates
// anything; two reads with no intervening write return identical
// payloads.
type Status struct {
	JobID       string          `json:"job_id"`
	State       State           `json:"state"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep int             `json:"current_step"`
	StepName    string          `json:"step_name,omitempty"`
	RunID       string          `json:"run_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
}

// GetStatus returns the current job snapshot.
func (s *Service) GetStatus(ctx context.Context, jobID int64) (*Status, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", jobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	return StatusOf(job), nil
}

// StatusOf builds the status payload for a job snapshot.
func StatusOf(job *Job) *Status {
	st := &Status{
		JobID:       strconv.FormatInt(job.ID, 10),
		State:       job.State,
		Status:      statusLine(job),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		StepName:    job.StepName,
		RunID:       job.RunID,
	}
	switch job.State {
	case StateSuccess:
		st.Result = job.Result
	case StateFailure:
		st.Error = job.Error
	}
	return st
}

func statusLine(job *Job) string {
	switch job.State {
	case StateDraft:
		return "awaiting start"
	case StatePending:
		return "queued"
	case StateStarted:
		return "starting"
	case StateProgress:
		return fmt.Sprintf("running step %d of %d: %s", job.CurrentStep, job.TotalSteps, job.StepName)
	case StateSuccess:
		return "completed"
	case StateFailure:
		return "failed"
	}
	return string(job.State)
}

// Result returns the job's final payload. A FAILURE is not a transport
// error: it returns a normal payload carrying the error string. Any
// non-terminal state returns ErrNotReady.
func (s *Service) Result(ctx context.Context, jobID int64) (json.RawMessage, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", jobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}

	switch job.State {
	case StateSuccess:
		return job.Result, nil
	case StateFailure:
		var msg string
		if job.Error != nil {
			msg = *job.Error
		}
		payload, merr := json.Marshal(struct {
			Error string `json:"error"`
		}{Error: msg})
		if merr != nil {
			return nil, fmt.Errorf("failed to encode failure payload: %w", merr)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("job %d is %s: %w", jobID, job.State, ErrNotReady)
	}
}

// RunTrace returns the run record and every step record accumulated
// under the run id, oldest first.
func (s *Service) RunTrace(ctx context.Context, runID string) (*RunRecord, []StepRecord, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run == nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	recs, err := s.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	return run, recs, nil
}

func (s *Service) createJob(ctx context.Context, def Definition, params json.RawMessage, state State) (*Job, error) {
	job := &Job{
		Kind:       def.Kind,
		State:      state,
		Params:     params,
		RunID:      uuid.NewString(),
		TotalSteps: def.TotalSteps(),
		StepRange:  FullRange(def.TotalSteps()).String(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	run := &RunRecord{
		RunID:      job.RunID,
		Kind:       def.Kind,
		ContextKey: contextKey(params),
		Params:     params,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	return job, nil
}

// enqueue publishes the job for the worker pool. A publish failure is
// terminal: the job is marked FAILURE with an infrastructure error so
// it cannot dangle in PENDING forever.
func (s *Service) enqueue(ctx context.Context, job *Job) error {
	if err := s.queue.Enqueue(ctx, job); err != nil {
		msg := fmt.Sprintf("infrastructure: enqueue failed: %v", err)
		job.State = StateFailure
		job.Error = &msg
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			log.Error(uerr, "failed to record enqueue failure", "jobID", job.ID)
		}
		return fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
	}
	return nil
}

// contextKey extracts the category or context label from job params so
// the run record can be found by what it was about.
func contextKey(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var probe struct {
		Category string `json:"category"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(params, &probe); err != nil {
		return ""
	}
	if probe.Category != "" {
		return probe.Category
	}
	return probe.ImageURL
}
