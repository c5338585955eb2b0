package pipeline

import (
	"context"
	"fmt"
	"time"

	"packsight/src/log"
)

// Executor runs the ordered steps of one job strictly sequentially:
// a step's output is durably persisted before the next step begins.
// Step failures are terminal for the job but never for the worker; the
// executor returns an error only when the record store itself fails.
type Executor struct {
	jobs     JobStore
	steps    StepStore
	registry *Registry
	sets     map[string][]Step
}

// NewExecutor wires step implementations to the registry. Every wired
// kind must be registered and carry exactly the steps its definition
// names, in order.
func NewExecutor(jobs JobStore, steps StepStore, registry *Registry, sets map[string][]Step) (*Executor, error) {
	for kind, impls := range sets {
		def, ok := registry.Get(kind)
		if !ok {
			return nil, fmt.Errorf("steps wired for unregistered kind %q", kind)
		}
		if len(impls) != def.TotalSteps() {
			return nil, fmt.Errorf("kind %q defines %d steps, got %d implementations", kind, def.TotalSteps(), len(impls))
		}
		for i, impl := range impls {
			if impl.Name() != def.Steps[i] {
				return nil, fmt.Errorf("kind %q step %d: definition says %q, implementation says %q", kind, i+1, def.Steps[i], impl.Name())
			}
		}
	}

	return &Executor{
		jobs:     jobs,
		steps:    steps,
		registry: registry,
		sets:     sets,
	}, nil
}

// Execute claims the job and runs its requested step range to a
// terminal state. A claim that finds the job already taken returns
// ErrStateConflict, which callers treat as a duplicate delivery.
func (e *Executor) Execute(ctx context.Context, jobID int64) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}

	if err := e.jobs.Transition(ctx, job.ID, StatePending, StateStarted); err != nil {
		return fmt.Errorf("failed to claim job %d: %w", job.ID, err)
	}
	job.State = StateStarted

	def, ok := e.registry.Get(job.Kind)
	if !ok {
		return e.failJob(ctx, job, &StepError{Ordinal: job.CurrentStep, Step: job.StepName,
			Message: fmt.Sprintf("unknown job kind %q", job.Kind)})
	}
	steps, ok := e.sets[job.Kind]
	if !ok {
		return e.failJob(ctx, job, &StepError{Ordinal: job.CurrentStep, Step: job.StepName,
			Message: fmt.Sprintf("no step implementations wired for kind %q", job.Kind)})
	}

	rng, err := ParseStepRange(job.StepRange, def.TotalSteps())
	if err != nil {
		return e.failJob(ctx, job, &StepError{Message: err.Error()})
	}

	outputs, err := e.seedOutputs(ctx, job)
	if err != nil {
		return err
	}

	if err := e.markSkipped(ctx, job, def, rng); err != nil {
		return err
	}

	job.CurrentStep = rng.Start
	job.StepName = def.Steps[rng.Start-1]
	if err := e.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}

	log.Info("executing job", "jobID", job.ID, "kind", job.Kind, "range", rng.String(), "runID", job.RunID)

	sc := &StepContext{Job: job, Params: job.Params, Outputs: outputs}
	done := 0
	for ord := rng.Start; ord <= rng.End; ord++ {
		step := steps[ord-1]

		rec := &StepRecord{
			JobID:   job.ID,
			RunID:   job.RunID,
			Ordinal: ord,
			Name:    step.Name(),
			Status:  StepStatusRunning,
		}
		if err := e.steps.Append(ctx, rec); err != nil {
			return fmt.Errorf("failed to append step record: %w", err)
		}

		began := time.Now()
		res, stepErr := step.Execute(ctx, sc)
		rec.DurationMS = time.Since(began).Milliseconds()

		if stepErr != nil {
			rec.Status = StepStatusError
			rec.ErrorMessage = stepErr.Error()
			if err := e.steps.Update(ctx, rec); err != nil {
				return fmt.Errorf("failed to update step record: %w", err)
			}
			return e.failJob(ctx, job, &StepError{Ordinal: ord, Step: step.Name(), Message: stepErr.Error()})
		}

		rec.Status = StepStatusComplete
		rec.InputSummary = res.InputSummary
		rec.OutputSummary = res.OutputSummary
		rec.Output = res.Output
		rec.ArtifactURL = res.ArtifactURL
		if err := e.steps.Update(ctx, rec); err != nil {
			return fmt.Errorf("failed to update step record: %w", err)
		}

		sc.Outputs[ord] = StepOutput{Name: step.Name(), Output: res.Output, ArtifactURL: res.ArtifactURL}
		if res.Result != nil {
			job.Result = res.Result
		}

		done++
		log.Debug("step complete", "jobID", job.ID, "step", step.Name(), "ordinal", ord, "durationMS", rec.DurationMS)

		if ord == rng.End {
			break
		}
		job.State = StateProgress
		job.Progress = 100 * done / rng.Span()
		job.CurrentStep = ord + 1
		job.StepName = steps[ord].Name()
		if err := e.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("failed to update job %d: %w", job.ID, err)
		}
	}

	job.State = StateSuccess
	job.Progress = 100
	if err := e.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}

	log.Info("job completed", "jobID", job.ID, "kind", job.Kind, "steps", done)
	return nil
}

// seedOutputs loads the latest complete output per ordinal persisted by
// earlier jobs of the same run, so a resumed range can read what the
// completed prefix produced without re-deriving it.
func (e *Executor) seedOutputs(ctx context.Context, job *Job) (map[int]StepOutput, error) {
	recs, err := e.steps.ListByRun(ctx, job.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}

	outputs := make(map[int]StepOutput)
	for _, rec := range recs {
		if rec.Status != StepStatusComplete || rec.JobID == job.ID {
			continue
		}
		outputs[rec.Ordinal] = StepOutput{Name: rec.Name, Output: rec.Output, ArtifactURL: rec.ArtifactURL}
	}
	return outputs, nil
}

// markSkipped records ordinals outside the requested range as skipped
// for this job. They are not executed and contribute nothing to the
// progress denominator.
func (e *Executor) markSkipped(ctx context.Context, job *Job, def Definition, rng StepRange) error {
	for ord := 1; ord <= def.TotalSteps(); ord++ {
		if rng.Contains(ord) {
			continue
		}
		rec := &StepRecord{
			JobID:   job.ID,
			RunID:   job.RunID,
			Ordinal: ord,
			Name:    def.Steps[ord-1],
			Status:  StepStatusSkipped,
		}
		if err := e.steps.Append(ctx, rec); err != nil {
			return fmt.Errorf("failed to append skipped step record: %w", err)
		}
	}
	return nil
}

// failJob marks the job terminally failed with the step's structured
// error. Records of already-completed steps stay queryable.
func (e *Executor) failJob(ctx context.Context, job *Job, stepErr *StepError) error {
	msg := stepErr.Error()
	job.State = StateFailure
	job.Error = &msg
	if err := e.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %d failed: %w", job.ID, err)
	}

	log.Error(stepErr, "job failed", "jobID", job.ID, "kind", job.Kind, "step", stepErr.Step)
	return nil
}
