package execution

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrExecutionInProgress is returned by Execute while another execution is pending or running.
	ErrExecutionInProgress = errors.New("an execution is already in progress")
	// ErrExecutionTimeout reports an execution that exceeded its time budget.
	ErrExecutionTimeout = errors.New("execution timed out")
	// ErrExecutionPreempted reports an execution canceled before completion.
	ErrExecutionPreempted = errors.New("execution preempted")
)

// ExecutionFailureError reports a backend fault, carrying the backend's diagnostic.
type ExecutionFailureError struct {
	Diagnostic string
}

func (e *ExecutionFailureError) Error() string {
	return fmt.Sprintf("execution failed: %s", e.Diagnostic)
}
