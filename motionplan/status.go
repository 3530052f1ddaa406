package motionplan

import "fmt"

// StatusCode is a planner outcome. The values match the MoveIt error codes so that results can
// be compared with logs from ROS based planners.
type StatusCode int32

// Planner outcomes.
const (
	Success                StatusCode = 1
	Failure                StatusCode = 99999
	PlanningFailed         StatusCode = -1
	InvalidMotionPlan      StatusCode = -2
	Timeout                StatusCode = -6
	Preempted              StatusCode = -7
	StartStateInCollision  StatusCode = -10
	GoalInCollision        StatusCode = -12
	InvalidGroupName       StatusCode = -15
	InvalidGoalConstraints StatusCode = -16
	NoIKSolution           StatusCode = -31
)

var statusNames = map[StatusCode]string{
	Success:                "SUCCESS",
	Failure:                "FAILURE",
	PlanningFailed:         "PLANNING_FAILED",
	InvalidMotionPlan:      "INVALID_MOTION_PLAN",
	Timeout:                "TIMED_OUT",
	Preempted:              "PREEMPTED",
	StartStateInCollision:  "START_STATE_IN_COLLISION",
	GoalInCollision:        "GOAL_IN_COLLISION",
	InvalidGroupName:       "INVALID_GROUP_NAME",
	InvalidGoalConstraints: "INVALID_GOAL_CONSTRAINTS",
	NoIKSolution:           "NO_IK_SOLUTION",
}

func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(c))
}
