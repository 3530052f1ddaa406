package motionplan

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/pickplace/referenceframe"
)

// fallback limits for joints whose model does not set one, rad/s and rad/s².
const (
	fallbackVelocityLimit     = 1.0
	fallbackAccelerationLimit = 1.0
)

// TimeParameterization times a path so that every segment is a rest-to-rest trapezoidal velocity
// profile within the scaled joint limits, then fills velocities and accelerations by finite
// differences.
type TimeParameterization struct {
	jointNames []string
	velLimits  []float64
	accLimits  []float64
}

// NewTimeParameterization reads the joint limits of model.
func NewTimeParameterization(model referenceframe.KinematicModel) *TimeParameterization {
	tp := &TimeParameterization{
		jointNames: model.JointNames(),
		velLimits:  model.VelocityLimits(),
		accLimits:  model.AccelerationLimits(),
	}
	for i := range tp.velLimits {
		if tp.velLimits[i] <= 0 {
			tp.velLimits[i] = fallbackVelocityLimit
		}
		if tp.accLimits[i] <= 0 {
			tp.accLimits[i] = fallbackAccelerationLimit
		}
	}
	return tp
}

// Name returns the adapter name.
func (tp *TimeParameterization) Name() string {
	return "time_parameterization"
}

// Adapt returns a timed copy of traj. Existing timing is discarded.
func (tp *TimeParameterization) Adapt(ctx context.Context, traj *Trajectory, req *PlanRequest) (*Trajectory, error) {
	names := traj.JointNames()
	if len(names) != len(tp.jointNames) {
		return nil, errors.Errorf("trajectory has %d joints, model has %d", len(names), len(tp.jointNames))
	}
	velScale, accScale := 1., 1.
	if req != nil {
		if req.MaxVelocityScaling > 0 {
			velScale = req.MaxVelocityScaling
		}
		if req.MaxAccelerationScaling > 0 {
			accScale = req.MaxAccelerationScaling
		}
	}

	waypoints := traj.Waypoints()
	n := len(waypoints)
	times := make([]float64, n)
	for k := 1; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segment := 0.
		for j := range names {
			d := math.Abs(waypoints[k].Positions[j] - waypoints[k-1].Positions[j])
			segment = math.Max(segment, trapezoidTime(d, tp.velLimits[j]*velScale, tp.accLimits[j]*accScale))
		}
		times[k] = times[k-1] + segment
	}

	for k := range waypoints {
		waypoints[k].TimeFromStart = time.Duration(times[k] * float64(time.Second))
		waypoints[k].Velocities = make([]float64, len(names))
		waypoints[k].Accelerations = make([]float64, len(names))
	}
	for k := 1; k < n-1; k++ {
		dt := times[k+1] - times[k-1]
		if dt <= 0 {
			continue
		}
		for j := range names {
			waypoints[k].Velocities[j] = (waypoints[k+1].Positions[j] - waypoints[k-1].Positions[j]) / dt
		}
	}
	for k := range waypoints {
		lo, hi := k-1, k+1
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		dt := times[hi] - times[lo]
		if dt <= 0 {
			continue
		}
		for j := range names {
			waypoints[k].Accelerations[j] = (waypoints[hi].Velocities[j] - waypoints[lo].Velocities[j]) / dt
		}
	}
	return NewTrajectory(names, waypoints)
}

// trapezoidTime is the shortest rest-to-rest time to move d with speed limit v and acceleration
// limit a. Short moves never reach v and follow a triangular profile.
func trapezoidTime(d, v, a float64) float64 {
	if d <= 0 {
		return 0
	}
	if d <= v*v/a {
		return 2 * math.Sqrt(d/a)
	}
	return d/v + v/a
}
