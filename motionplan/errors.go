package motionplan

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyLinkName is returned when a pose goal names no link.
	ErrEmptyLinkName = errors.New("pose goal requires a link name")
	// ErrEmptyJointGoal is returned when a joint goal has no joints.
	ErrEmptyJointGoal = errors.New("joint goal requires at least one joint")
	// ErrNoGoals is returned for a plan request without goals.
	ErrNoGoals = errors.New("plan request requires at least one goal")
	// ErrEmptyGroupName is returned for a plan request without a planning group.
	ErrEmptyGroupName = errors.New("plan request requires a group name")
)

// UnknownJointError is returned when a goal references a joint the robot model does not have.
type UnknownJointError struct {
	Name  string
	Model string
}

func (e *UnknownJointError) Error() string {
	return fmt.Sprintf("joint %q is not a joint of model %q", e.Name, e.Model)
}

// NewUnknownJointError returns an UnknownJointError.
func NewUnknownJointError(name, model string) error {
	return &UnknownJointError{Name: name, Model: model}
}

// PlanningFailureError describes a planner that returned a non-success status. It is not
// returned from Plan; PlanResult.Err produces it for callers that prefer error handling.
type PlanningFailureError struct {
	Code   StatusCode
	Reason string
}

func (e *PlanningFailureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("motion planning failed: %s", e.Code)
	}
	return fmt.Sprintf("motion planning failed: %s: %s", e.Code, e.Reason)
}

func newInvalidToleranceError(name string, value float64) error {
	return errors.Errorf("%s tolerance must be finite and non-negative, got %v", name, value)
}

func newScalingError(name string, value float64) error {
	return errors.Errorf("%s scaling factor must be in [0, 1], got %v", name, value)
}

// NewIKError is the reason reported when no inverse kinematics solution was found.
func NewIKError() error {
	return errors.New("unable to solve for position")
}

// NewPlannerFailedError is the reason reported when a path between solutions was not found.
func NewPlannerFailedError() error {
	return errors.New("motion planner failed to find path")
}
