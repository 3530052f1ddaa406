package motionplan

import (
	"testing"

	"go.viam.com/test"
)

func TestPlanningFailureError(t *testing.T) {
	err := &PlanningFailureError{Code: NoIKSolution}
	test.That(t, err.Error(), test.ShouldEqual, "motion planning failed: NO_IK_SOLUTION")

	err.Reason = NewIKError().Error()
	test.That(t, err.Error(), test.ShouldEqual, "motion planning failed: NO_IK_SOLUTION: unable to solve for position")
}

func TestUnknownJointError(t *testing.T) {
	test.That(t, NewUnknownJointError("elbow", "panda"), test.ShouldBeError, `joint "elbow" is not a joint of model "panda"`)
}
