package motionplan

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/utils"
)

// DefaultAllowedPlanningTime is used when a request does not set a time budget.
const DefaultAllowedPlanningTime = 5 * time.Second

// PlanRequest is one planning attempt.
type PlanRequest struct {
	GroupName string
	Goals     []*MotionGoal
	PlannerID string

	// AllowedPlanningTime bounds the planner call. Zero means DefaultAllowedPlanningTime.
	AllowedPlanningTime time.Duration

	// Scaling factors in [0, 1] applied to the model's velocity and acceleration limits. Zero
	// means full speed.
	MaxVelocityScaling     float64
	MaxAccelerationScaling float64

	// StartState overrides the joint state of the locked snapshot when set.
	StartState []referenceframe.JointState
}

// withDefaults validates the request and returns a copy with zero values replaced by defaults.
func (req *PlanRequest) withDefaults() (*PlanRequest, error) {
	if req == nil {
		return nil, errors.New("nil plan request")
	}
	if req.GroupName == "" {
		return nil, ErrEmptyGroupName
	}
	if len(req.Goals) == 0 {
		return nil, ErrNoGoals
	}
	for i, g := range req.Goals {
		if g == nil {
			return nil, errors.Errorf("goal %d is nil", i)
		}
	}
	if req.MaxVelocityScaling < 0 || req.MaxVelocityScaling > 1 {
		return nil, newScalingError("velocity", req.MaxVelocityScaling)
	}
	if req.MaxAccelerationScaling < 0 || req.MaxAccelerationScaling > 1 {
		return nil, newScalingError("acceleration", req.MaxAccelerationScaling)
	}
	if req.AllowedPlanningTime < 0 {
		return nil, errors.Errorf("allowed planning time must not be negative, got %v", req.AllowedPlanningTime)
	}

	out := *req
	out.Goals = append([]*MotionGoal(nil), req.Goals...)
	out.StartState = append([]referenceframe.JointState(nil), req.StartState...)
	out.MaxVelocityScaling = utils.ScaleOrDefault(out.MaxVelocityScaling)
	out.MaxAccelerationScaling = utils.ScaleOrDefault(out.MaxAccelerationScaling)
	if out.AllowedPlanningTime == 0 {
		out.AllowedPlanningTime = DefaultAllowedPlanningTime
	}
	return &out, nil
}
