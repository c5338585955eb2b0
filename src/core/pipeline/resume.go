package pipeline

import (
	"context"
	"fmt"

	"packsight/src/log"
)

// Resume creates a new job on an existing run, restricted to the given
// step range. Every ordinal below the range start must already be
// complete somewhere in the run; completed steps are never re-executed.
func (s *Service) Resume(ctx context.Context, runID string, stepsRange string) (*Job, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	def, ok := s.registry.Get(run.Kind)
	if !ok {
		return nil, fmt.Errorf("run %s has unknown kind %q: %w", runID, run.Kind, ErrValidation)
	}

	rng, err := ParseStepRange(stepsRange, def.TotalSteps())
	if err != nil {
		return nil, err
	}

	recs, err := s.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	complete := make(map[int]bool)
	for _, rec := range recs {
		if rec.Status == StepStatusComplete {
			complete[rec.Ordinal] = true
		}
	}
	for ord := 1; ord < rng.Start; ord++ {
		if !complete[ord] {
			return nil, fmt.Errorf("run %s has no completed step %d (%s): %w",
				runID, ord, def.Steps[ord-1], ErrMissingPrerequisite)
		}
	}

	job := &Job{
		Kind:       run.Kind,
		State:      StatePending,
		Params:     run.Params,
		RunID:      runID,
		TotalSteps: def.TotalSteps(),
		StepRange:  rng.String(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.enqueue(ctx, job); err != nil {
		return nil, err
	}

	log.Info("run resumed", "runID", runID, "jobID", job.ID, "range", rng.String())
	return job, nil
}
