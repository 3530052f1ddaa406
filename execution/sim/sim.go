// Package sim implements an execution backend that plays trajectories back over simulated time.
// Time only advances through UpdateForTime unless SimulateTime is set, so tests can step it
// deterministically.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/pickplace/execution"
	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/referenceframe"
)

// DefaultControllerName is the name reported when Config.Controller is empty.
const DefaultControllerName = "simulated_trajectory_controller"

const defaultTickInterval = 10 * time.Millisecond

// Config is used for converting config attributes.
type Config struct {
	Controller string `json:"controller,omitempty"`

	// Speed scales playback. 2 plays a trajectory in half its duration.
	Speed float64 `json:"speed,omitempty"`

	// SimulateTime starts a background goroutine advancing time from the clock every TickInterval.
	SimulateTime bool          `json:"simulate_time,omitempty"`
	TickInterval time.Duration `json:"tick_interval,omitempty"`
}

// operation has the following logical states:
// 1. Pushed: traj != nil, started == false
// 2. Moving: started == true, done == false, stopped == false, fault == ""
// 3. Succeeded: done == true
// 4. Stopped: stopped == true
// 5. Faulted: fault != "".
type operation struct {
	traj    *motionplan.Trajectory
	elapsed time.Duration
	started bool
	done    bool
	stopped bool
	fault   string
}

func (op operation) isMoving() bool {
	return op.traj != nil && op.started && !op.done && !op.stopped && op.fault == ""
}

// StateCallback receives the simulated joint states after every update.
type StateCallback func(states []referenceframe.JointState)

// Backend is a simulated trajectory-following controller.
type Backend struct {
	jointNames []string
	controller string
	speed      float64
	clock      clock.Clock

	mu          sync.Mutex
	positions   []float64
	velocities  []float64
	lastUpdated time.Time
	op          operation
	onState     StateCallback

	timeSimulation *goutils.StoppableWorkers
	closeOnce      sync.Once

	logger logging.Logger
}

// NewBackend returns a Backend for the named joints, starting at initial positions.
func NewBackend(
	jointNames []string,
	initial []float64,
	cfg Config,
	clk clock.Clock,
	logger logging.Logger,
) (*Backend, error) {
	if len(jointNames) == 0 {
		return nil, errors.New("simulated backend requires joint names")
	}
	if len(initial) != len(jointNames) {
		return nil, referenceframe.NewIncorrectDoFError(len(initial), len(jointNames))
	}
	if clk == nil {
		clk = clock.New()
	}
	b := &Backend{
		jointNames: append([]string(nil), jointNames...),
		controller: cfg.Controller,
		speed:      cfg.Speed,
		clock:      clk,
		positions:  append([]float64(nil), initial...),
		velocities: make([]float64, len(initial)),
		logger:     logger,
	}
	if b.controller == "" {
		b.controller = DefaultControllerName
	}
	if b.speed <= 0 {
		b.speed = 1
	}
	if cfg.SimulateTime {
		tick := cfg.TickInterval
		if tick <= 0 {
			tick = defaultTickInterval
		}
		// avoid letting the zero value be visible, lest the first movement jump
		b.lastUpdated = clk.Now()
		b.timeSimulation = goutils.NewStoppableWorkerWithTicker(tick, func(_ context.Context) {
			b.UpdateForTime(b.clock.Now())
		})
	}
	return b, nil
}

// OnState registers a callback for joint state updates.
func (b *Backend) OnState(cb StateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = cb
}

// Push loads a trajectory. The trajectory must be over the backend's joints in the same order.
func (b *Backend) Push(ctx context.Context, traj *motionplan.Trajectory) error {
	if traj.Empty() {
		return errors.New("cannot push an empty trajectory")
	}
	names := traj.JointNames()
	if len(names) != len(b.jointNames) {
		return errors.Errorf("trajectory has %d joints, controller %s has %d", len(names), b.controller, len(b.jointNames))
	}
	for i, name := range names {
		if name != b.jointNames[i] {
			return errors.Errorf("trajectory joint %d is %q, controller %s expects %q", i, name, b.controller, b.jointNames[i])
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.op.isMoving() {
		return errors.Errorf("controller %s is busy", b.controller)
	}
	b.op = operation{traj: traj}
	return nil
}

// ExecuteAndWait starts the pushed trajectory and polls until it completes, is stopped or faults.
func (b *Backend) ExecuteAndWait(ctx context.Context) (execution.BackendResult, error) {
	b.mu.Lock()
	if b.op.traj == nil || b.op.started {
		b.mu.Unlock()
		return execution.BackendResult{}, errors.New("no trajectory has been pushed")
	}
	b.op.started = true
	b.lastUpdated = b.clock.Now()
	b.mu.Unlock()

	for {
		b.mu.Lock()
		op := b.op
		b.mu.Unlock()

		switch {
		case op.fault != "":
			return execution.BackendResult{Status: execution.Failed, Diagnostic: op.fault}, nil
		case op.stopped:
			return execution.BackendResult{Status: execution.Preempted, Diagnostic: "stopped before reaching goal"}, nil
		case op.done:
			return execution.BackendResult{Status: execution.Succeeded}, nil
		}
		if !goutils.SelectContextOrWait(ctx, time.Millisecond) {
			return execution.BackendResult{}, ctx.Err()
		}
	}
}

// UpdateForTime advances a running trajectory to now. Without SimulateTime, the owner must call
// this for the backend to move.
func (b *Backend) UpdateForTime(now time.Time) {
	b.mu.Lock()
	if !b.op.isMoving() {
		b.lastUpdated = now
		b.mu.Unlock()
		return
	}
	if now.After(b.lastUpdated) {
		b.op.elapsed += time.Duration(float64(now.Sub(b.lastUpdated)) * b.speed)
	}
	b.lastUpdated = now

	traj := b.op.traj
	if b.op.elapsed >= traj.Duration() {
		end := traj.Waypoint(traj.Len() - 1)
		copy(b.positions, end.Positions)
		for i := range b.velocities {
			b.velocities[i] = 0
		}
		b.op.done = true
	} else {
		b.sampleLocked(traj, b.op.elapsed)
	}
	states := b.statesLocked()
	cb := b.onState
	b.mu.Unlock()

	if cb != nil {
		cb(states)
	}
}

// sampleLocked interpolates the trajectory at t, which is before its end.
func (b *Backend) sampleLocked(traj *motionplan.Trajectory, t time.Duration) {
	for k := 1; k < traj.Len(); k++ {
		next := traj.Waypoint(k)
		if next.TimeFromStart <= t {
			continue
		}
		prev := traj.Waypoint(k - 1)
		span := next.TimeFromStart - prev.TimeFromStart
		frac := 0.
		if span > 0 {
			frac = float64(t-prev.TimeFromStart) / float64(span)
		}
		for j := range b.positions {
			b.positions[j] = prev.Positions[j] + (next.Positions[j]-prev.Positions[j])*frac
			if span > 0 {
				b.velocities[j] = (next.Positions[j] - prev.Positions[j]) / span.Seconds()
			}
		}
		return
	}
}

func (b *Backend) statesLocked() []referenceframe.JointState {
	states := make([]referenceframe.JointState, len(b.jointNames))
	for i, name := range b.jointNames {
		states[i] = referenceframe.JointState{Name: name, Position: b.positions[i], Velocity: b.velocities[i]}
	}
	return states
}

// Stop halts a moving trajectory. A backend that is not moving is left untouched, so a completed
// trajectory still reports success.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.op.isMoving() {
		return nil
	}
	b.op.stopped = true
	for i := range b.velocities {
		b.velocities[i] = 0
	}
	return nil
}

// InjectFault makes a moving trajectory fail with diagnostic.
func (b *Backend) InjectFault(diagnostic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.op.isMoving() {
		b.op.fault = diagnostic
	}
}

// IsMoving reports whether a trajectory is being followed.
func (b *Backend) IsMoving() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.op.isMoving()
}

// JointStates returns the current simulated joint states.
func (b *Backend) JointStates() []referenceframe.JointState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statesLocked()
}

// ActiveControllers returns the controller while it is following a trajectory.
func (b *Backend) ActiveControllers(ctx context.Context) ([]string, error) {
	if b.IsMoving() {
		return []string{b.controller}, nil
	}
	return []string{}, nil
}

// KnownControllers returns the simulated controller.
func (b *Backend) KnownControllers(ctx context.Context) ([]string, error) {
	return []string{b.controller}, nil
}

// Close stops time simulation.
func (b *Backend) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		if b.timeSimulation != nil {
			b.timeSimulation.Stop()
		}
	})
	return nil
}
