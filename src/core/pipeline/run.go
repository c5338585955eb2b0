package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunRecord pins a run id to the kind, params and context it was
// created for. It accumulates step records across every job that
// executes under the run id and is never deleted by a resume.
type RunRecord struct {
	RunID      string
	Kind       string
	ContextKey string
	Params     json.RawMessage
	CreatedAt  time.Time
}

// RunStore persists run records. Get returns (nil, nil) on a miss.
type RunStore interface {
	Create(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, runID string) (*RunRecord, error)
}

// StepRange is an inclusive range of step ordinals to execute.
type StepRange struct {
	Start int
	End   int
}

// FullRange covers every ordinal of a pipeline with totalSteps steps.
func FullRange(totalSteps int) StepRange {
	return StepRange{Start: 1, End: totalSteps}
}

func (r StepRange) Contains(ordinal int) bool {
	return ordinal >= r.Start && ordinal <= r.End
}

// Span is the number of ordinals in the range, the denominator for
// progress calculation.
func (r StepRange) Span() int {
	return r.End - r.Start + 1
}

func (r StepRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParseStepRange parses a "start-end" range expression, or a single
// ordinal "k" meaning "k-k". The empty string selects the full range.
// The result is validated against the pipeline's step count.
func ParseStepRange(expr string, totalSteps int) (StepRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return FullRange(totalSteps), nil
	}

	var rng StepRange
	start, end, found := strings.Cut(expr, "-")
	if !found {
		end = start
	}

	var err error
	if rng.Start, err = strconv.Atoi(strings.TrimSpace(start)); err != nil {
		return StepRange{}, fmt.Errorf("bad step range %q: %w", expr, ErrValidation)
	}
	if rng.End, err = strconv.Atoi(strings.TrimSpace(end)); err != nil {
		return StepRange{}, fmt.Errorf("bad step range %q: %w", expr, ErrValidation)
	}

	if rng.Start < 1 || rng.End > totalSteps || rng.Start > rng.End {
		return StepRange{}, fmt.Errorf("step range %q outside 1-%d: %w", expr, totalSteps, ErrValidation)
	}
	return rng, nil
}
