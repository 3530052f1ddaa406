package motionplan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/worldmodel"
)

// ResponseAdapter post-processes a successful plan, for example to add timing. Adapters run
// after the scene lock has been released.
type ResponseAdapter interface {
	Name() string
	Adapt(ctx context.Context, traj *Trajectory, req *PlanRequest) (*Trajectory, error)
}

// PlanResult is the outcome of one Plan call. A result is immutable once returned.
type PlanResult struct {
	ID     uuid.UUID
	Code   StatusCode
	Reason string

	// Trajectory is the adapted trajectory; RawTrajectory is what the planner returned.
	Trajectory    *Trajectory
	RawTrajectory *Trajectory

	// Revision of the scene snapshot the plan was computed against.
	Revision     uint64
	PlanningTime time.Duration
}

// Success reports whether planning succeeded.
func (r *PlanResult) Success() bool {
	return r.Code == Success
}

// Err returns a *PlanningFailureError for unsuccessful results, nil otherwise.
func (r *PlanResult) Err() error {
	if r.Success() {
		return nil
	}
	return &PlanningFailureError{Code: r.Code, Reason: r.Reason}
}

// CoordinatorStats counts Plan calls.
type CoordinatorStats struct {
	Attempts  int64
	Successes int64
	Failures  int64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithResponseAdapters appends adapters, run in order on every successful plan.
func WithResponseAdapters(adapters ...ResponseAdapter) CoordinatorOption {
	return func(c *Coordinator) {
		c.adapters = append(c.adapters, adapters...)
	}
}

// Coordinator runs a planner against a locked snapshot of a WorldModel.
type Coordinator struct {
	wm       *worldmodel.WorldModel
	planner  Planner
	adapters []ResponseAdapter
	logger   logging.Logger

	// serializes lock holders of this coordinator
	mu sync.Mutex

	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// NewCoordinator returns a Coordinator planning with planner against wm.
func NewCoordinator(wm *worldmodel.WorldModel, planner Planner, logger logging.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{wm: wm, planner: planner, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plan validates req and plans it against the current scene. Planner failures, timeouts and
// invalid trajectories are reported through the result's Code with a nil error; an error is
// only returned for an invalid request or an unavailable scene.
func (c *Coordinator) Plan(ctx context.Context, req *PlanRequest) (*PlanResult, error) {
	ctx, span := trace.StartSpan(ctx, "motionplan::Coordinator::Plan")
	defer span.End()

	req, err := req.withDefaults()
	if err != nil {
		return nil, err
	}
	c.attempts.Inc()

	result := &PlanResult{ID: uuid.New()}
	start := time.Now()
	resp, revision, err := c.generate(ctx, req)
	result.PlanningTime = time.Since(start)
	result.Revision = revision
	if err != nil {
		if errors.Is(err, worldmodel.ErrStateUnavailable) {
			c.failures.Inc()
			return nil, err
		}
		resp = responseForError(ctx, err)
	}

	switch {
	case resp == nil:
		resp = failed(Failure, "planner returned no response")
	case resp.Code == Success && resp.Trajectory.Empty():
		resp = failed(InvalidMotionPlan, "planner reported success with an empty trajectory")
	case resp.Code == Success && resp.Trajectory.Len() < 2:
		resp = failed(InvalidMotionPlan, "planner reported success with a single waypoint")
	}
	result.Code = resp.Code
	result.Reason = resp.Reason

	if !result.Success() {
		c.failures.Inc()
		c.logger.CInfof(ctx, "planning %s failed after %v: %s %s", req.PlannerID, result.PlanningTime, result.Code, result.Reason)
		return result, nil
	}

	result.RawTrajectory = resp.Trajectory
	adapted, err := c.adapt(ctx, resp.Trajectory, req)
	if err != nil {
		c.failures.Inc()
		result.Code = Failure
		result.Reason = err.Error()
		result.RawTrajectory = nil
		return result, nil
	}
	result.Trajectory = adapted
	c.successes.Inc()
	c.logger.CInfof(ctx, "planned %d waypoints lasting %v in %v", adapted.Len(), adapted.Duration(), result.PlanningTime)
	return result, nil
}

// generate calls the planner while holding the scene read lock.
func (c *Coordinator) generate(ctx context.Context, req *PlanRequest) (*PlannerResponse, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	locked, err := c.wm.AcquireReadLock(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer locked.Release()
	snapshot := locked.Snapshot()

	planCtx, cancel := context.WithTimeout(ctx, req.AllowedPlanningTime)
	defer cancel()
	resp, err := c.invoke(planCtx, snapshot, req)
	if err == nil && planCtx.Err() != nil && (resp == nil || resp.Code != Success) {
		err = planCtx.Err()
	}
	return resp, snapshot.Revision(), err
}

func (c *Coordinator) invoke(ctx context.Context, snapshot *worldmodel.Snapshot, req *PlanRequest) (resp *PlannerResponse, err error) {
	ctx, span := trace.StartSpan(ctx, "motionplan::Coordinator::invoke")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, errors.Errorf("planner panicked: %v", r)
		}
	}()
	return c.planner.GeneratePlan(ctx, snapshot, req)
}

func (c *Coordinator) adapt(ctx context.Context, traj *Trajectory, req *PlanRequest) (*Trajectory, error) {
	for _, adapter := range c.adapters {
		adapted, err := adapter.Adapt(ctx, traj, req)
		if err != nil {
			return nil, errors.Wrapf(err, "response adapter %s", adapter.Name())
		}
		if adapted.Empty() {
			return nil, errors.Errorf("response adapter %s returned an empty trajectory", adapter.Name())
		}
		traj = adapted
	}
	return traj, nil
}

func responseForError(ctx context.Context, err error) *PlannerResponse {
	switch {
	case ctx.Err() != nil:
		return failed(Preempted, "planning canceled: %v", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return failed(Timeout, "planner exceeded its time budget")
	default:
		return failed(Failure, "%v", err)
	}
}

// Stats returns the call counters.
func (c *Coordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		Attempts:  c.attempts.Load(),
		Successes: c.successes.Load(),
		Failures:  c.failures.Load(),
	}
}

func (s CoordinatorStats) String() string {
	return fmt.Sprintf("%d attempts, %d succeeded, %d failed", s.Attempts, s.Successes, s.Failures)
}
