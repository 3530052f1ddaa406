package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Status is the state of one execution. Transitions are driven only by the Coordinator:
// Pending → Running → one of Succeeded, Failed, Preempted or TimedOut. Pending may also go
// directly to Failed when the trajectory cannot be handed to the backend.
type Status int

// Execution states.
const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Preempted
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Preempted:
		return "preempted"
	case TimedOut:
		return "timeout"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case Succeeded, Failed, Preempted, TimedOut:
		return true
	case Pending, Running:
		return false
	default:
		return false
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the terminal result of one Execute call.
type Outcome struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	Status      Status    `json:"status"`
	// Diagnostic is the backend's failure message, passed through unchanged.
	Diagnostic string    `json:"diagnostic,omitempty"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
}

// Duration returns how long the execution took.
func (o *Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Err converts non-success terminal states into errors, nil for Succeeded.
func (o *Outcome) Err() error {
	switch o.Status {
	case Succeeded:
		return nil
	case Failed:
		return &ExecutionFailureError{Diagnostic: o.Diagnostic}
	case TimedOut:
		return ErrExecutionTimeout
	case Preempted:
		if o.Diagnostic == "" {
			return ErrExecutionPreempted
		}
		return errors.Wrap(ErrExecutionPreempted, o.Diagnostic)
	case Pending, Running:
		return errors.Errorf("execution %s has not finished", o.ExecutionID)
	default:
		return errors.Errorf("execution %s ended in unknown status %v", o.ExecutionID, o.Status)
	}
}
