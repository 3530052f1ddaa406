package motionplan

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
)

// goalEpsilon is the tightest tolerance IK will attempt, so that zero tolerances are solvable.
const goalEpsilon = 1e-5

// convergeFraction is the fraction of the goal tolerance IK converges to before checking a solution.
const convergeFraction = 0.5

// rejectFunc reports why an IK solution is unusable, or "" if it is acceptable.
type rejectFunc func(q []referenceframe.Input) string

// ikResult reports an IK solve. When Solution is nil, Rejections counts why otherwise converged
// solutions were discarded.
type ikResult struct {
	Solution   []referenceframe.Input
	Rejections map[string]int
	Attempts   int
}

// jacobianIK is a damped least squares solver over the 6xN geometric Jacobian. When an attempt
// does not converge or its solution is rejected, it restarts from a random configuration.
type jacobianIK struct {
	model         referenceframe.KinematicModel
	maxIterations int
	restarts      int
	damping       float64
	maxStep       float64
}

func (ik *jacobianIK) solve(
	ctx context.Context,
	goal *MotionGoal,
	seed []referenceframe.Input,
	randSeed *rand.Rand,
	reject rejectFunc,
) (*ikResult, error) {
	res := &ikResult{Rejections: map[string]int{}}
	for attempt := 0; attempt <= ik.restarts; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts++
		q := seed
		if attempt > 0 {
			q = referenceframe.RandomInputs(ik.model, randSeed)
		}
		q, converged, err := ik.descend(ctx, goal, referenceframe.ClampInputs(ik.model, q))
		if err != nil {
			return res, err
		}
		if !converged {
			continue
		}
		if reason := reject(q); reason != "" {
			res.Rejections[reason]++
			continue
		}
		res.Solution = q
		return res, nil
	}
	return res, nil
}

func (ik *jacobianIK) descend(
	ctx context.Context,
	goal *MotionGoal,
	q []referenceframe.Input,
) ([]referenceframe.Input, bool, error) {
	posTarget := math.Max(goal.PositionTolerance()*convergeFraction, goalEpsilon)
	orientTarget := math.Max(goal.OrientationTolerance()*convergeFraction, goalEpsilon)
	lambdaSq := ik.damping * ik.damping

	for iter := 0; iter < ik.maxIterations; iter++ {
		// checking every iteration costs more than the solve itself
		if iter%50 == 0 && ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		pose, err := ik.model.Transform(q)
		if err != nil {
			return nil, false, err
		}
		posErr := goal.Pose().Point().Sub(pose.Point())
		orientErr := spatialmath.OrientationError(goal.Pose().Orientation(), pose.Orientation())
		if posErr.Norm() <= posTarget && orientErr.Norm() <= orientTarget {
			return q, true, nil
		}

		jac, err := ik.model.GeometricJacobian(q)
		if err != nil {
			return nil, false, err
		}
		dx := mat.NewVecDense(6, []float64{posErr.X, posErr.Y, posErr.Z, orientErr.X, orientErr.Y, orientErr.Z})

		// dq = Jᵀ (J Jᵀ + λ²I)⁻¹ dx
		var jjt mat.Dense
		jjt.Mul(jac, jac.T())
		for i := 0; i < 6; i++ {
			jjt.Set(i, i, jjt.At(i, i)+lambdaSq)
		}
		var y mat.VecDense
		if err := y.SolveVec(&jjt, dx); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return q, false, nil
			}
		}
		var dq mat.VecDense
		dq.MulVec(jac.T(), &y)
		step := dq.RawVector().Data
		if largest := floats.Norm(step, math.Inf(1)); largest > ik.maxStep {
			floats.Scale(ik.maxStep/largest, step)
		}

		next := make([]referenceframe.Input, len(q))
		for i := range q {
			next[i] = referenceframe.Input{Value: q[i].Value + step[i]}
		}
		q = referenceframe.ClampInputs(ik.model, next)
	}
	return q, false, nil
}
