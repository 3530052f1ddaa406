package execution

import (
	"context"

	"go.viam.com/pickplace/motionplan"
)

// BackendResult is what a controller backend reports when a trajectory finishes. Status is one
// of Succeeded, Failed or Preempted.
type BackendResult struct {
	Status     Status
	Diagnostic string
}

// Backend converts trajectories into controller commands. ExecuteAndWait runs on its own
// goroutine and must return once ctx is done; Stop may be called concurrently with it.
type Backend interface {
	// Push hands a trajectory to the controller without starting it.
	Push(ctx context.Context, traj *motionplan.Trajectory) error
	// ExecuteAndWait starts the pushed trajectory and blocks until it finishes.
	ExecuteAndWait(ctx context.Context) (BackendResult, error)
	// Stop halts motion.
	Stop(ctx context.Context) error
	ActiveControllers(ctx context.Context) ([]string, error)
	KnownControllers(ctx context.Context) ([]string, error)
}
