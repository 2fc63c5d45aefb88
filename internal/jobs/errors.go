package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the job id is not present in the index.
	ErrNotFound = errors.New("job not found")

	// ErrStepNotFound indicates a step index outside the job's step sequence.
	// It matches ErrNotFound as well.
	ErrStepNotFound = fmt.Errorf("%w: step index out of range", ErrNotFound)

	// ErrEmptyPlan indicates an attempt to store a plan without steps.
	ErrEmptyPlan = errors.New("plan has no steps")

	// ErrInvalidTransition indicates the job's current status does not allow
	// the requested operation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus indicates an unknown or inapplicable status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrJobHalted indicates the job was paused or aborted before a step started.
	ErrJobHalted = errors.New("job halted")
)

// StorageError reports a failure of the durable backend. State is assumed
// unchanged when it is returned.
type StorageError struct {
	Op    string
	JobID string
	Err   error
}

func (e *StorageError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
