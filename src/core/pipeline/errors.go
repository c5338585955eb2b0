package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the lifecycle operations. Handlers map
// these onto boundary error codes; everything else is infrastructure.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrStateConflict       = errors.New("state conflict")
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	ErrNotReady            = errors.New("result not ready")
)

// StepError is the structured failure of one pipeline step. It is
// recorded on both the failing step record and the owning job.
type StepError struct {
	Ordinal int
	Step    string
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %s", e.Ordinal, e.Step, e.Message)
}
