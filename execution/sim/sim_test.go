package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/pickplace/execution"
	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/referenceframe"
)

var jointNames = []string{"shoulder", "elbow"}

func twoSecondTrajectory(t *testing.T) *motionplan.Trajectory {
	t.Helper()
	traj, err := motionplan.NewTrajectory(jointNames, []motionplan.Waypoint{
		{Positions: []float64{0, 0}},
		{Positions: []float64{1, -1}, TimeFromStart: time.Second},
		{Positions: []float64{2, -2}, TimeFromStart: 2 * time.Second},
	})
	test.That(t, err, test.ShouldBeNil)
	return traj
}

func startExecution(t *testing.T, b *Backend) <-chan execution.BackendResult {
	t.Helper()
	results := make(chan execution.BackendResult, 1)
	go func() {
		result, err := b.ExecuteAndWait(context.Background())
		test.That(t, err, test.ShouldBeNil)
		results <- result
	}()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, b.IsMoving(), test.ShouldBeTrue)
	})
	return results
}

func TestNewBackend(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewBackend(nil, nil, Config{}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBackend(jointNames, []float64{0}, Config{}, nil, logger)
	test.That(t, err, test.ShouldBeError, referenceframe.NewIncorrectDoFError(1, 2))

	b, err := NewBackend(jointNames, []float64{0, 0}, Config{}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	known, err := b.KnownControllers(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, known, test.ShouldResemble, []string{DefaultControllerName})
	active, err := b.ActiveControllers(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, active, test.ShouldBeEmpty)
	test.That(t, b.Close(context.Background()), test.ShouldBeNil)
}

func TestPush(t *testing.T) {
	b, err := NewBackend(jointNames, []float64{0, 0}, Config{}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, b.Push(context.Background(), nil), test.ShouldNotBeNil)

	swapped, err := motionplan.NewTrajectory([]string{"elbow", "shoulder"}, []motionplan.Waypoint{{Positions: []float64{0, 0}}})
	test.That(t, err, test.ShouldBeNil)
	err = b.Push(context.Background(), swapped)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expects \"shoulder\"")

	_, err = b.ExecuteAndWait(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFollowTrajectory(t *testing.T) {
	mock := clock.NewMock()
	b, err := NewBackend(jointNames, []float64{0, 0}, Config{Speed: 2}, mock, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	var mu sync.Mutex
	var updates [][]referenceframe.JointState
	b.OnState(func(states []referenceframe.JointState) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, states)
	})

	test.That(t, b.Push(context.Background(), twoSecondTrajectory(t)), test.ShouldBeNil)
	results := startExecution(t, b)

	active, err := b.ActiveControllers(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, active, test.ShouldResemble, []string{DefaultControllerName})

	// at double speed, 250ms of wall time is 0.5s along the trajectory
	b.UpdateForTime(mock.Now().Add(250 * time.Millisecond))
	states := b.JointStates()
	test.That(t, states[0].Name, test.ShouldEqual, "shoulder")
	test.That(t, states[0].Position, test.ShouldAlmostEqual, 0.5)
	test.That(t, states[1].Position, test.ShouldAlmostEqual, -0.5)
	test.That(t, states[0].Velocity, test.ShouldAlmostEqual, 1)

	b.UpdateForTime(mock.Now().Add(750 * time.Millisecond))
	test.That(t, b.JointStates()[0].Position, test.ShouldAlmostEqual, 1.5)

	b.UpdateForTime(mock.Now().Add(2 * time.Second))
	result := <-results
	test.That(t, result.Status, test.ShouldEqual, execution.Succeeded)
	states = b.JointStates()
	test.That(t, states[0].Position, test.ShouldEqual, 2.)
	test.That(t, states[1].Position, test.ShouldEqual, -2.)
	test.That(t, states[0].Velocity, test.ShouldEqual, 0.)
	test.That(t, b.IsMoving(), test.ShouldBeFalse)

	mu.Lock()
	test.That(t, len(updates), test.ShouldEqual, 3)
	test.That(t, updates[2][0].Position, test.ShouldEqual, 2.)
	mu.Unlock()

	// stopping after completion keeps the success
	test.That(t, b.Stop(context.Background()), test.ShouldBeNil)
	test.That(t, b.IsMoving(), test.ShouldBeFalse)
}

func TestStopAndFault(t *testing.T) {
	mock := clock.NewMock()
	b, err := NewBackend(jointNames, []float64{0, 0}, Config{}, mock, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, b.Push(context.Background(), twoSecondTrajectory(t)), test.ShouldBeNil)
	results := startExecution(t, b)
	test.That(t, b.Push(context.Background(), twoSecondTrajectory(t)), test.ShouldNotBeNil)

	b.UpdateForTime(mock.Now().Add(500 * time.Millisecond))
	test.That(t, b.Stop(context.Background()), test.ShouldBeNil)
	result := <-results
	test.That(t, result.Status, test.ShouldEqual, execution.Preempted)
	test.That(t, b.JointStates()[0].Position, test.ShouldAlmostEqual, 0.5)
	test.That(t, b.JointStates()[0].Velocity, test.ShouldEqual, 0.)

	// the stopped arm stays put
	b.UpdateForTime(mock.Now().Add(time.Second))
	test.That(t, b.JointStates()[0].Position, test.ShouldAlmostEqual, 0.5)

	test.That(t, b.Push(context.Background(), twoSecondTrajectory(t)), test.ShouldBeNil)
	results = startExecution(t, b)
	b.InjectFault("GOAL_TOLERANCE_VIOLATED")
	result = <-results
	test.That(t, result.Status, test.ShouldEqual, execution.Failed)
	test.That(t, result.Diagnostic, test.ShouldEqual, "GOAL_TOLERANCE_VIOLATED")
}

func TestExecuteAndWaitCanceled(t *testing.T) {
	b, err := NewBackend(jointNames, []float64{0, 0}, Config{}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Push(context.Background(), twoSecondTrajectory(t)), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.ExecuteAndWait(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestSimulateTime(t *testing.T) {
	b, err := NewBackend(jointNames, []float64{0, 0},
		Config{Speed: 20, SimulateTime: true, TickInterval: time.Millisecond}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, b.Close(context.Background()), test.ShouldBeNil)
	}()

	c := execution.NewCoordinator(b, logging.NewTestLogger(t))
	outcome, err := c.Execute(context.Background(), twoSecondTrajectory(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome.Status, test.ShouldEqual, execution.Succeeded)
	test.That(t, b.JointStates()[0].Position, test.ShouldEqual, 2.)
}
