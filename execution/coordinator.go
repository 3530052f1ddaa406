// Package execution drives planned trajectories through a controller backend and reports
// how each execution ended.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/motionplan"
)

// default values for execution options.
const (
	// the expected trajectory duration is multiplied by this to allow for controller lag.
	defaultDurationScaling = 1.2

	// added to every budget for the controller to settle at the goal.
	defaultGoalMargin = 500 * time.Millisecond

	// smallest budget given to any trajectory.
	defaultMinTimeout = time.Second

	// how long to wait for the backend to acknowledge a stop.
	stopTimeout = 5 * time.Second
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for execution budgets and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithDurationScaling sets the factor applied to the trajectory duration. Values ≤ 0 are ignored.
func WithDurationScaling(scaling float64) Option {
	return func(c *Coordinator) {
		if scaling > 0 {
			c.durationScaling = scaling
		}
	}
}

// WithGoalMargin sets the time added to every budget.
func WithGoalMargin(margin time.Duration) Option {
	return func(c *Coordinator) {
		if margin >= 0 {
			c.goalMargin = margin
		}
	}
}

// WithMinTimeout sets the smallest budget.
func WithMinTimeout(minTimeout time.Duration) Option {
	return func(c *Coordinator) {
		if minTimeout >= 0 {
			c.minTimeout = minTimeout
		}
	}
}

// WithStatusListener calls fn with every status an execution passes through, in order, from the
// goroutine calling Execute. fn must not call Execute.
func WithStatusListener(fn func(Status)) Option {
	return func(c *Coordinator) {
		c.listeners = append(c.listeners, fn)
	}
}

// Coordinator runs one execution at a time against a Backend.
type Coordinator struct {
	backend Backend
	logger  logging.Logger
	clock   clock.Clock

	durationScaling float64
	goalMargin      time.Duration
	minTimeout      time.Duration
	listeners       []func(Status)

	mu      sync.Mutex
	status  Status
	active  bool
	preempt chan struct{}
	last    *Outcome

	executions atomic.Int64
}

// NewCoordinator returns a Coordinator for backend.
func NewCoordinator(backend Backend, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:         backend,
		logger:          logger,
		clock:           clock.New(),
		durationScaling: defaultDurationScaling,
		goalMargin:      defaultGoalMargin,
		minTimeout:      defaultMinTimeout,
		status:          Pending,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budget returns how long an execution of traj may take before it times out.
func (c *Coordinator) Budget(traj *motionplan.Trajectory) time.Duration {
	budget := time.Duration(float64(traj.Duration())*c.durationScaling) + c.goalMargin
	if budget < c.minTimeout {
		budget = c.minTimeout
	}
	return budget
}

// Execute runs traj to a terminal status and returns the Outcome. Only a rejected call returns
// an error: ErrExecutionInProgress when another execution has not finished, or an error for an
// empty trajectory. Execution failures are reported through the Outcome. Canceling ctx
// preempts the execution.
func (c *Coordinator) Execute(ctx context.Context, traj *motionplan.Trajectory) (*Outcome, error) {
	if traj.Empty() {
		return nil, errors.New("cannot execute an empty trajectory")
	}
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrExecutionInProgress
	}
	c.active = true
	c.status = Pending
	preempt := make(chan struct{})
	c.preempt = preempt
	c.mu.Unlock()
	c.notify(Pending)

	ctx, span := trace.StartSpan(ctx, "execution::Coordinator::Execute")
	defer span.End()

	c.executions.Inc()
	outcome := &Outcome{ExecutionID: uuid.New(), Status: Pending, Started: c.clock.Now()}
	logger := c.logger.Sublogger(outcome.ExecutionID.String()[:8])
	c.logControllers(ctx, logger)

	status, diagnostic := c.run(ctx, traj, preempt, logger)
	outcome.Status = status
	outcome.Diagnostic = diagnostic
	outcome.Finished = c.clock.Now()

	c.mu.Lock()
	c.status = status
	c.active = false
	c.preempt = nil
	c.last = outcome
	c.mu.Unlock()
	c.notify(status)

	if status == Succeeded {
		logger.CInfof(ctx, "execution succeeded in %v", outcome.Duration())
	} else {
		logger.Warnw("execution ended", "status", status, "diagnostic", diagnostic)
	}
	return outcome, nil
}

type backendDone struct {
	result BackendResult
	err    error
}

func (c *Coordinator) run(
	ctx context.Context,
	traj *motionplan.Trajectory,
	preempt <-chan struct{},
	logger logging.Logger,
) (Status, string) {
	if err := c.backend.Push(ctx, traj); err != nil {
		return Failed, fmt.Sprintf("failed to push trajectory: %v", err)
	}

	budget := c.Budget(traj)
	timer := c.clock.Timer(budget)
	defer timer.Stop()
	c.setStatus(Running)
	logger.CDebugf(ctx, "running %d waypoints over %v, budget %v", traj.Len(), traj.Duration(), budget)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	resultCh := make(chan backendDone, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	goutils.PanicCapturingGo(func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				resultCh <- backendDone{err: errors.Errorf("backend panicked: %v", r)}
			}
		}()
		result, err := c.backend.ExecuteAndWait(workerCtx)
		resultCh <- backendDone{result: result, err: err}
	})
	// the worker is always joined before the status is reported
	defer func() {
		cancelWorker()
		wg.Wait()
	}()

	select {
	case done := <-resultCh:
		return backendStatus(done)
	case <-timer.C:
		c.stopBackend(logger)
		return TimedOut, fmt.Sprintf("trajectory did not finish within %v", budget)
	case <-ctx.Done():
		c.stopBackend(logger)
		return Preempted, ctx.Err().Error()
	case <-preempt:
		c.stopBackend(logger)
		return Preempted, "preempted by request"
	}
}

func backendStatus(done backendDone) (Status, string) {
	if done.err != nil {
		return Failed, done.err.Error()
	}
	switch done.result.Status {
	case Succeeded, Failed, Preempted:
		return done.result.Status, done.result.Diagnostic
	case Pending, Running, TimedOut:
		return Failed, fmt.Sprintf("backend reported non-terminal status %v: %s", done.result.Status, done.result.Diagnostic)
	default:
		return Failed, fmt.Sprintf("backend reported unknown status %v: %s", done.result.Status, done.result.Diagnostic)
	}
}

func (c *Coordinator) stopBackend(logger logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := c.backend.Stop(ctx); err != nil {
		logger.Errorw("failed to stop controller", "error", err)
	}
}

func (c *Coordinator) logControllers(ctx context.Context, logger logging.Logger) {
	active, err := c.backend.ActiveControllers(ctx)
	if err != nil {
		logger.Warnw("failed to list active controllers", "error", err)
	}
	known, err := c.backend.KnownControllers(ctx)
	if err != nil {
		logger.Warnw("failed to list known controllers", "error", err)
	}
	logger.CInfof(ctx, "active controllers: %v, known controllers: %v", active, known)
}

func (c *Coordinator) setStatus(status Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.notify(status)
}

func (c *Coordinator) notify(status Status) {
	for _, fn := range c.listeners {
		fn(status)
	}
}

// Preempt cancels the execution in progress. It returns false if there is none.
func (c *Coordinator) Preempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.preempt == nil {
		return false
	}
	select {
	case <-c.preempt:
		return false
	default:
		close(c.preempt)
		return true
	}
}

// Status returns the status of the current or most recent execution.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastOutcome returns the outcome of the most recent finished execution, nil before the first.
func (c *Coordinator) LastOutcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Executions returns how many executions were started.
func (c *Coordinator) Executions() int64 {
	return c.executions.Load()
}
