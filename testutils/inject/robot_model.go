package inject

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/pickplace/referenceframe"
)

// RobotModel is an injected robot model.
type RobotModel struct {
	referenceframe.RobotModel
	NameFunc          func() string
	JointNamesFunc    func() []string
	VariableCountFunc func() int
	JacobianAtFunc    func(inputs []referenceframe.Input) (*mat.Dense, error)
}

// Name calls the injected Name or the real version.
func (m *RobotModel) Name() string {
	if m.NameFunc == nil {
		return m.RobotModel.Name()
	}
	return m.NameFunc()
}

// JointNames calls the injected JointNames or the real version.
func (m *RobotModel) JointNames() []string {
	if m.JointNamesFunc == nil {
		return m.RobotModel.JointNames()
	}
	return m.JointNamesFunc()
}

// VariableCount calls the injected VariableCount or the real version.
func (m *RobotModel) VariableCount() int {
	if m.VariableCountFunc == nil {
		return m.RobotModel.VariableCount()
	}
	return m.VariableCountFunc()
}

// JacobianAt calls the injected JacobianAt or the real version.
func (m *RobotModel) JacobianAt(inputs []referenceframe.Input) (*mat.Dense, error) {
	if m.JacobianAtFunc == nil {
		return m.RobotModel.JacobianAt(inputs)
	}
	return m.JacobianAtFunc(inputs)
}
