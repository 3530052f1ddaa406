package motionplan

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
)

// goalMet reports whether pose satisfies a pose goal.
func goalMet(goal *MotionGoal, pose spatialmath.Pose) bool {
	return spatialmath.PoseAlmostEqual(
		goal.Pose(), pose,
		math.Max(goal.PositionTolerance(), goalEpsilon),
		math.Max(goal.OrientationTolerance(), goalEpsilon),
	)
}

func TestGoalMet(t *testing.T) {
	gb := NewGoalBuilder(pandaModel(t))
	goal, err := gb.BuildPoseGoal("panda_link8", spatialmath.NewPose(r3.Vector{X: 0.5, Z: 0.75}, quat.Number{Real: 1}), 0.01, 0.01)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, goalMet(goal, goal.Pose()), test.ShouldBeTrue)
	test.That(t, goalMet(goal, spatialmath.NewPose(r3.Vector{X: 0.505, Z: 0.75}, quat.Number{Real: 1})), test.ShouldBeTrue)
	test.That(t, goalMet(goal, spatialmath.NewPose(r3.Vector{X: 0.52, Z: 0.75}, quat.Number{Real: 1})), test.ShouldBeFalse)
	test.That(t, goalMet(goal, spatialmath.NewPose(r3.Vector{X: 0.5, Z: 0.75}, quat.Number{Imag: 1})), test.ShouldBeFalse)

	// zero tolerances fall back to the solver's floor
	exact, err := gb.BuildPoseGoal("panda_link8", goal.Pose(), 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goalMet(exact, spatialmath.NewPose(r3.Vector{X: 0.5 + goalEpsilon/2, Z: 0.75}, quat.Number{Real: 1})), test.ShouldBeTrue)
}

func TestIKSolutionMeetsGoal(t *testing.T) {
	model := pandaModel(t)
	ik := &jacobianIK{model: model, maxIterations: 500, restarts: 10, damping: 0.05, maxStep: 0.2}

	start := referenceframe.FloatsToInputs([]float64{0, -0.3, 0, -2, 0, 1.8, 0.8})
	target, err := model.Transform(referenceframe.FloatsToInputs([]float64{0.3, 0.2, 0, -1.8, 0, 2, 0.8}))
	test.That(t, err, test.ShouldBeNil)
	goal, err := NewGoalBuilder(model).BuildPoseGoal("panda_link8", target, 0.005, 0.01)
	test.That(t, err, test.ShouldBeNil)

	res, err := ik.solve(context.Background(), goal, start, rand.New(rand.NewSource(1)), func([]referenceframe.Input) string { return "" })
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Solution, test.ShouldNotBeNil)
	pose, err := model.Transform(res.Solution)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goalMet(goal, pose), test.ShouldBeTrue)
	test.That(t, res.Rejections, test.ShouldBeEmpty)
}
