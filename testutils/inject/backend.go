package inject

import (
	"context"

	"go.viam.com/pickplace/execution"
	"go.viam.com/pickplace/motionplan"
)

// Backend is an injected execution backend.
type Backend struct {
	execution.Backend
	PushFunc              func(ctx context.Context, traj *motionplan.Trajectory) error
	ExecuteAndWaitFunc    func(ctx context.Context) (execution.BackendResult, error)
	StopFunc              func(ctx context.Context) error
	ActiveControllersFunc func(ctx context.Context) ([]string, error)
	KnownControllersFunc  func(ctx context.Context) ([]string, error)
}

// Push calls the injected Push or the real version.
func (b *Backend) Push(ctx context.Context, traj *motionplan.Trajectory) error {
	if b.PushFunc == nil {
		return b.Backend.Push(ctx, traj)
	}
	return b.PushFunc(ctx, traj)
}

// ExecuteAndWait calls the injected ExecuteAndWait or the real version.
func (b *Backend) ExecuteAndWait(ctx context.Context) (execution.BackendResult, error) {
	if b.ExecuteAndWaitFunc == nil {
		return b.Backend.ExecuteAndWait(ctx)
	}
	return b.ExecuteAndWaitFunc(ctx)
}

// Stop calls the injected Stop or the real version.
func (b *Backend) Stop(ctx context.Context) error {
	if b.StopFunc == nil {
		return b.Backend.Stop(ctx)
	}
	return b.StopFunc(ctx)
}

// ActiveControllers calls the injected ActiveControllers or the real version.
func (b *Backend) ActiveControllers(ctx context.Context) ([]string, error) {
	if b.ActiveControllersFunc == nil {
		return b.Backend.ActiveControllers(ctx)
	}
	return b.ActiveControllersFunc(ctx)
}

// KnownControllers calls the injected KnownControllers or the real version.
func (b *Backend) KnownControllers(ctx context.Context) ([]string, error) {
	if b.KnownControllersFunc == nil {
		return b.Backend.KnownControllers(ctx)
	}
	return b.KnownControllersFunc(ctx)
}
