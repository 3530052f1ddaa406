package worldmodel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
)

func jointUpdate(positions ...float64) StateUpdate {
	names := []string{"j1", "j2", "j3"}
	var update StateUpdate
	for i, p := range positions {
		update.Joints = append(update.Joints, referenceframe.JointState{Name: names[i], Position: p})
	}
	return update
}

func TestAcquireBeforeFirstUpdate(t *testing.T) {
	ctx := context.Background()
	wm := New(logging.NewTestLogger(t))

	_, err := wm.AcquireReadLock(ctx)
	test.That(t, err, test.ShouldBeError, ErrStateUnavailable)

	// the failed read must not hold the lock, otherwise this would deadlock
	rev, err := wm.UpdateFromSensors(jointUpdate(0, 0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rev, test.ShouldEqual, 1)

	locked, err := wm.AcquireReadLock(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, locked.Snapshot().Revision(), test.ShouldEqual, 1)
	test.That(t, len(locked.Snapshot().Joints()), test.ShouldEqual, 3)
	locked.Release()
	locked.Release()

	_, err = wm.UpdateFromSensors(jointUpdate(1))
	test.That(t, err, test.ShouldBeNil)
}

func TestReadersCannotModifyScene(t *testing.T) {
	ctx := context.Background()
	wm := New(logging.NewTestLogger(t))
	_, err := wm.UpdateFromSensors(jointUpdate(0, 0, 0))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, wm.WithReadLock(ctx, func(s *Snapshot) error {
		joints := s.Joints()
		joints[0].Position = 42
		return nil
	}), test.ShouldBeNil)

	test.That(t, wm.WithReadLock(ctx, func(s *Snapshot) error {
		test.That(t, s.Revision(), test.ShouldEqual, 1)
		test.That(t, s.Joints()[0].Position, test.ShouldEqual, 0)
		test.That(t, s.JointPositions()["j1"], test.ShouldEqual, 0)
		return nil
	}), test.ShouldBeNil)
}

func TestNewSnapshotCopiesInputs(t *testing.T) {
	joints := []referenceframe.JointState{{Name: "j1", Position: 0.5}}
	ball, err := spatialmath.NewSphere(spatialmath.NewPoseFromPoint(r3.Vector{Y: 1}), 0.05, "ball")
	test.That(t, err, test.ShouldBeNil)

	s := NewSnapshot(4, time.Time{}, joints, ball)
	joints[0].Position = 2
	test.That(t, s.Revision(), test.ShouldEqual, 4)
	test.That(t, s.Joints()[0].Position, test.ShouldEqual, 0.5)
	test.That(t, s.ObstacleCount(), test.ShouldEqual, 1)
	got, ok := s.Obstacle("ball")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got.Centroid(), test.ShouldResemble, r3.Vector{Y: 1})
	_, ok = s.Obstacle("box")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestAcquireCanceled(t *testing.T) {
	wm := New(logging.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := wm.AcquireReadLock(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestUpdateMerges(t *testing.T) {
	wm := New(logging.NewTestLogger(t))
	_, err := wm.UpdateFromSensors(jointUpdate(0.1, 0.2))
	test.That(t, err, test.ShouldBeNil)

	box, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, "box")
	test.That(t, err, test.ShouldBeNil)
	ball, err := spatialmath.NewSphere(spatialmath.NewPoseFromPoint(r3.Vector{Y: 1}), 0.05, "ball")
	test.That(t, err, test.ShouldBeNil)

	_, err = wm.UpdateFromSensors(StateUpdate{
		Joints:    []referenceframe.JointState{{Name: "j2", Position: 0.5}, {Name: "j3", Position: 0.7}},
		Obstacles: []spatialmath.Geometry{box, ball},
	})
	test.That(t, err, test.ShouldBeNil)

	err = wm.WithReadLock(context.Background(), func(s *Snapshot) error {
		test.That(t, s.JointPositions(), test.ShouldResemble, map[string]float64{"j1": 0.1, "j2": 0.5, "j3": 0.7})
		test.That(t, s.Joints()[2].Name, test.ShouldEqual, "j3")
		test.That(t, s.ObstacleNames(), test.ShouldResemble, []string{"ball", "box"})
		test.That(t, s.ObstaclePositions(), test.ShouldResemble, []r3.Vector{{Y: 1}, {X: 1}})
		return nil
	})
	test.That(t, err, test.ShouldBeNil)

	var old *Snapshot
	test.That(t, wm.WithReadLock(context.Background(), func(s *Snapshot) error {
		old = s
		return nil
	}), test.ShouldBeNil)

	_, err = wm.UpdateFromSensors(StateUpdate{RemoveObstacles: []string{"box"}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wm.Revision(), test.ShouldEqual, 3)

	// published snapshots are never modified
	test.That(t, old.ObstacleNames(), test.ShouldResemble, []string{"ball", "box"})
	test.That(t, wm.WithReadLock(context.Background(), func(s *Snapshot) error {
		test.That(t, s.ObstacleNames(), test.ShouldResemble, []string{"ball"})
		return nil
	}), test.ShouldBeNil)
}

func TestWithReadLockReleasesOnError(t *testing.T) {
	wm := New(logging.NewTestLogger(t))
	_, err := wm.UpdateFromSensors(jointUpdate(0))
	test.That(t, err, test.ShouldBeNil)

	errBoom := errors.New("boom")
	err = wm.WithReadLock(context.Background(), func(*Snapshot) error { return errBoom })
	test.That(t, err, test.ShouldBeError, errBoom)

	func() {
		defer func() {
			test.That(t, recover(), test.ShouldNotBeNil)
		}()
		//nolint:errcheck
		wm.WithReadLock(context.Background(), func(*Snapshot) error { panic("reader panicked") })
	}()

	_, err = wm.UpdateFromSensors(jointUpdate(1))
	test.That(t, err, test.ShouldBeNil)
}

func TestWriterWaitsForReaders(t *testing.T) {
	wm := New(logging.NewTestLogger(t))
	_, err := wm.UpdateFromSensors(jointUpdate(0))
	test.That(t, err, test.ShouldBeNil)

	first, err := wm.AcquireReadLock(context.Background())
	test.That(t, err, test.ShouldBeNil)
	second, err := wm.AcquireReadLock(context.Background())
	test.That(t, err, test.ShouldBeNil)

	published := make(chan struct{})
	go func() {
		defer close(published)
		wm.UpdateFromSensors(jointUpdate(1))
	}()

	select {
	case <-published:
		t.Fatal("update published while readers held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	test.That(t, first.Snapshot().JointPositions()["j1"], test.ShouldEqual, 0)

	first.Release()
	second.Release()
	<-published
	test.That(t, wm.Revision(), test.ShouldEqual, 2)
}

func TestWaitForRevision(t *testing.T) {
	wm := New(logging.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	test.That(t, wm.WaitForRevision(ctx, 1), test.ShouldBeError, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		test.That(t, wm.WaitForRevision(context.Background(), 2), test.ShouldBeNil)
	}()
	wm.UpdateFromSensors(jointUpdate(0))
	wm.UpdateFromSensors(jointUpdate(1))
	wg.Wait()
}

func TestStateMonitor(t *testing.T) {
	ctx := context.Background()
	wm := New(logging.NewTestLogger(t))
	sm := NewStateMonitor(wm, logging.NewTestLogger(t))
	defer sm.Close()

	for i := 0; i < 5; i++ {
		test.That(t, sm.Publish(ctx, jointUpdate(float64(i))), test.ShouldBeNil)
	}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, wm.Revision(), test.ShouldEqual, 5)
	})
	test.That(t, wm.WithReadLock(ctx, func(s *Snapshot) error {
		test.That(t, s.JointPositions()["j1"], test.ShouldEqual, 4)
		return nil
	}), test.ShouldBeNil)

	test.That(t, sm.PublishAndWait(ctx, jointUpdate(9)), test.ShouldBeNil)
	test.That(t, wm.Revision(), test.ShouldEqual, 6)

	sm.Close()
	test.That(t, sm.Publish(ctx, jointUpdate(0)), test.ShouldBeError, errMonitorClosed)
}
