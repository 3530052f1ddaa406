package motionplan

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
	"go.viam.com/pickplace/worldmodel"
)

func pandaModel(t *testing.T) *referenceframe.SerialModel {
	t.Helper()
	model, err := referenceframe.ModelFromName("panda")
	test.That(t, err, test.ShouldBeNil)
	return model
}

func TestBuildPoseGoal(t *testing.T) {
	gb := NewGoalBuilder(pandaModel(t))
	target := spatialmath.NewPose(r3.Vector{X: 0.5, Z: 0.75}, quat.Number{Real: 2})

	goal, err := gb.BuildPoseGoal("panda_link8", target, 0.01, 0.02)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goal.Kind(), test.ShouldEqual, PoseGoal)
	test.That(t, goal.Link(), test.ShouldEqual, "panda_link8")
	test.That(t, goal.PositionTolerance(), test.ShouldEqual, 0.01)
	test.That(t, goal.OrientationTolerance(), test.ShouldEqual, 0.02)
	test.That(t, goal.Pose().Point(), test.ShouldResemble, r3.Vector{X: 0.5, Z: 0.75})
	// orientations are normalized
	test.That(t, goal.Pose().Orientation().Real, test.ShouldAlmostEqual, 1)

	_, err = gb.BuildPoseGoal("", target, 0.01, 0.01)
	test.That(t, err, test.ShouldBeError, ErrEmptyLinkName)

	for _, tol := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = gb.BuildPoseGoal("panda_link8", target, tol, 0.01)
		test.That(t, err, test.ShouldNotBeNil)
		_, err = gb.BuildPoseGoal("panda_link8", target, 0.01, tol)
		test.That(t, err, test.ShouldNotBeNil)
	}

	_, err = gb.BuildPoseGoal("panda_link8", spatialmath.NewPoseFromPoint(r3.Vector{X: math.NaN()}), 0.01, 0.01)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBuildJointGoal(t *testing.T) {
	gb := NewGoalBuilder(pandaModel(t))

	t.Run("unknown joint", func(t *testing.T) {
		_, err := gb.BuildJointGoal(map[string]float64{"panda_joint1": 0, "elbow": 1})
		var unknown *UnknownJointError
		test.That(t, errors.As(err, &unknown), test.ShouldBeTrue)
		test.That(t, unknown.Name, test.ShouldEqual, "elbow")
		test.That(t, unknown.Model, test.ShouldEqual, "panda")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := gb.BuildJointGoal(nil)
		test.That(t, err, test.ShouldBeError, ErrEmptyJointGoal)
	})

	t.Run("joint set is exactly the input", func(t *testing.T) {
		targets := map[string]float64{"panda_joint4": -1.2, "panda_joint2": 0.3}
		goal, err := gb.BuildJointGoal(targets)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, goal.Kind(), test.ShouldEqual, JointGoal)
		test.That(t, goal.JointNames(), test.ShouldResemble, []string{"panda_joint2", "panda_joint4"})
		test.That(t, goal.JointTargets(), test.ShouldResemble, targets)

		// neither the input nor the returned copy alias the goal
		targets["panda_joint1"] = 1
		returned := goal.JointTargets()
		returned["panda_joint2"] = 9
		test.That(t, goal.JointTargets(), test.ShouldResemble, map[string]float64{"panda_joint4": -1.2, "panda_joint2": 0.3})
	})

	t.Run("non-finite", func(t *testing.T) {
		_, err := gb.BuildJointGoal(map[string]float64{"panda_joint1": math.NaN()})
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestBuildPerceivedPoseGoal(t *testing.T) {
	gb := NewGoalBuilder(pandaModel(t))
	cube, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(r3.Vector{X: 0.5, Z: 0.2}), r3.Vector{X: 0.05, Y: 0.05, Z: 0.05}, "cube")
	test.That(t, err, test.ShouldBeNil)
	snapshot := worldmodel.NewSnapshot(1, time.Now(), nil, cube)
	down := (&spatialmath.R4AA{Theta: math.Pi, RX: 1}).ToQuat()

	goal, err := gb.BuildPerceivedPoseGoal("panda_link8", snapshot, "cube", r3.Vector{Z: 0.1}, down, 0.01, 0.01)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goal.Pose().Point().Distance(r3.Vector{X: 0.5, Z: 0.3}), test.ShouldBeLessThan, 1e-12)
	test.That(t, spatialmath.QuatAlmostEqual(goal.Pose().Orientation(), down, 1e-9), test.ShouldBeTrue)

	_, err = gb.BuildPerceivedPoseGoal("panda_link8", snapshot, "sphere", r3.Vector{}, down, 0.01, 0.01)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = gb.BuildPerceivedPoseGoal("panda_link8", nil, "cube", r3.Vector{}, down, 0.01, 0.01)
	test.That(t, err, test.ShouldBeError, worldmodel.ErrStateUnavailable)
}

func TestStatusCodeString(t *testing.T) {
	test.That(t, Success.String(), test.ShouldEqual, "SUCCESS")
	test.That(t, NoIKSolution.String(), test.ShouldEqual, "NO_IK_SOLUTION")
	test.That(t, StatusCode(42).String(), test.ShouldEqual, "UNKNOWN(42)")
	test.That(t, int32(Timeout), test.ShouldEqual, -6)
}
