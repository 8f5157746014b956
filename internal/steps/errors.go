package steps

import (
	"fmt"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// StepTimeoutError is returned when a step's target element never appeared.
type StepTimeoutError struct {
	Index int
	Step  schemas.Step
	Query schemas.Query
	Err   error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %d (%s): timeout waiting for selector %s: %v", e.Index, e.Step.Action, e.Query, e.Err)
}

func (e *StepTimeoutError) Unwrap() error { return e.Err }

// StepResolutionError is returned for steps that cannot be dispatched at all,
// or whose element lookup failed for a reason other than a timeout.
type StepResolutionError struct {
	Index  int
	Step   schemas.Step
	Reason string
	Err    error
}

func (e *StepResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d (%s): %s: %v", e.Index, e.Step.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("step %d (%s): %s", e.Index, e.Step.Action, e.Reason)
}

func (e *StepResolutionError) Unwrap() error { return e.Err }
