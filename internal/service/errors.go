package service

import (
	"errors"
	"fmt"
)

var (
	// ErrJobBusy indicates another execution path is active for the job.
	ErrJobBusy = errors.New("job is busy")

	// ErrNoSteps indicates the planner returned an empty plan.
	ErrNoSteps = errors.New("planner returned no steps")
)

// PlanningError reports that no usable plan was produced. The job stays in
// planning status with no steps.
type PlanningError struct {
	JobID string
	Err   error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("plan job %s: %v", e.JobID, e.Err)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}
