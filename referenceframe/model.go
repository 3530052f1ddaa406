package referenceframe

import (
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pickplace/spatialmath"
	"go.viam.com/pickplace/utils"
)

// World is the name of the root frame every model is attached to.
const World = "world"

// Limit represents the limits of motion for a joint.
type Limit struct {
	Min float64
	Max float64
}

// RobotModel is what goal validation and manipulability analysis need from a robot: its ordered
// joints and the translational Jacobian at a configuration.
type RobotModel interface {
	Name() string
	// JointNames returns the variable names in the order inputs are given.
	JointNames() []string
	VariableCount() int
	// JacobianAt returns the 3xN translational Jacobian of the end effector.
	JacobianAt(inputs []Input) (*mat.Dense, error)
}

// KinematicModel is a RobotModel that planners can solve against.
type KinematicModel interface {
	RobotModel
	EndEffector() string
	DoF() []Limit
	// AreInputsValid reports whether every input is within its joint limits.
	AreInputsValid(inputs []Input) bool
	VelocityLimits() []float64
	AccelerationLimits() []float64
	// Transform returns the end effector pose at the given inputs.
	Transform(inputs []Input) (spatialmath.Pose, error)
	// JointOrigins returns the world position of every joint origin followed by the end effector.
	JointOrigins(inputs []Input) ([]r3.Vector, error)
	// GeometricJacobian returns the 6xN Jacobian: translational rows first, then rotational.
	GeometricJacobian(inputs []Input) (*mat.Dense, error)
}

type revoluteJoint struct {
	name        string
	axis        r3.Vector
	translation r3.Vector
	limit       Limit
	maxVel      float64
	maxAcc      float64
}

var _ KinematicModel = (*SerialModel)(nil)

// SerialModel is a chain of revolute joints. Each joint frame is its parent's frame translated by
// the joint's offset; the joint then rotates about its local axis.
type SerialModel struct {
	name        string
	joints      []revoluteJoint
	eeName      string
	eeOffset    r3.Vector
	modelConfig *ModelConfigJSON
}

// Name returns the name of the model.
func (m *SerialModel) Name() string {
	return m.name
}

// JointNames returns the joint names, base first.
func (m *SerialModel) JointNames() []string {
	names := make([]string, len(m.joints))
	for i, j := range m.joints {
		names[i] = j.name
	}
	return names
}

// VariableCount returns the number of joints.
func (m *SerialModel) VariableCount() int {
	return len(m.joints)
}

// EndEffector returns the name of the link at the tip of the chain.
func (m *SerialModel) EndEffector() string {
	return m.eeName
}

// DoF returns the position limits of every joint, in radians.
func (m *SerialModel) DoF() []Limit {
	limits := make([]Limit, len(m.joints))
	for i, j := range m.joints {
		limits[i] = j.limit
	}
	return limits
}

// VelocityLimits returns the maximum joint speeds in radians per second.
func (m *SerialModel) VelocityLimits() []float64 {
	limits := make([]float64, len(m.joints))
	for i, j := range m.joints {
		limits[i] = j.maxVel
	}
	return limits
}

// AccelerationLimits returns the maximum joint accelerations in radians per second squared.
func (m *SerialModel) AccelerationLimits() []float64 {
	limits := make([]float64, len(m.joints))
	for i, j := range m.joints {
		limits[i] = j.maxAcc
	}
	return limits
}

// walk runs forward kinematics, returning each joint's world origin and world axis and the end
// effector pose.
func (m *SerialModel) walk(inputs []Input) ([]r3.Vector, []r3.Vector, spatialmath.Pose, error) {
	if len(inputs) != len(m.joints) {
		return nil, nil, nil, NewIncorrectDoFError(len(inputs), len(m.joints))
	}
	origins := make([]r3.Vector, len(m.joints))
	axes := make([]r3.Vector, len(m.joints))
	pos := r3.Vector{}
	orientation := quat.Number{Real: 1}
	for i, j := range m.joints {
		pos = pos.Add(spatialmath.RotateVector(orientation, j.translation))
		origins[i] = pos
		axes[i] = spatialmath.RotateVector(orientation, j.axis)
		rot := &spatialmath.R4AA{Theta: inputs[i].Value, RX: j.axis.X, RY: j.axis.Y, RZ: j.axis.Z}
		orientation = spatialmath.Normalize(quat.Mul(orientation, rot.ToQuat()))
	}
	eePos := pos.Add(spatialmath.RotateVector(orientation, m.eeOffset))
	return origins, axes, spatialmath.NewPose(eePos, orientation), nil
}

// Transform returns the end effector pose. Out of bounds inputs are computed without error;
// use AreInputsValid to check limits.
func (m *SerialModel) Transform(inputs []Input) (spatialmath.Pose, error) {
	_, _, ee, err := m.walk(inputs)
	return ee, err
}

// JointOrigins returns the world position of each joint origin, then the end effector.
func (m *SerialModel) JointOrigins(inputs []Input) ([]r3.Vector, error) {
	origins, _, ee, err := m.walk(inputs)
	if err != nil {
		return nil, err
	}
	return append(origins, ee.Point()), nil
}

// GeometricJacobian returns the 6xN geometric Jacobian of the end effector in the world frame.
// Column i is [a_i x (p_ee - p_i); a_i] for joint axis a_i at origin p_i.
func (m *SerialModel) GeometricJacobian(inputs []Input) (*mat.Dense, error) {
	origins, axes, ee, err := m.walk(inputs)
	if err != nil {
		return nil, err
	}
	jac := mat.NewDense(6, len(m.joints), nil)
	for i := range m.joints {
		linear := axes[i].Cross(ee.Point().Sub(origins[i]))
		jac.Set(0, i, linear.X)
		jac.Set(1, i, linear.Y)
		jac.Set(2, i, linear.Z)
		jac.Set(3, i, axes[i].X)
		jac.Set(4, i, axes[i].Y)
		jac.Set(5, i, axes[i].Z)
	}
	return jac, nil
}

// JacobianAt returns the translational rows of the geometric Jacobian.
func (m *SerialModel) JacobianAt(inputs []Input) (*mat.Dense, error) {
	full, err := m.GeometricJacobian(inputs)
	if err != nil {
		return nil, err
	}
	translational := mat.DenseCopyOf(full.Slice(0, 3, 0, len(m.joints)))
	return translational, nil
}

// AreInputsValid reports whether every input is within its joint limits.
func (m *SerialModel) AreInputsValid(inputs []Input) bool {
	if len(inputs) != len(m.joints) {
		return false
	}
	for i, j := range m.joints {
		if inputs[i].Value < j.limit.Min || inputs[i].Value > j.limit.Max {
			return false
		}
	}
	return true
}

// RandomInputs returns in-bounds inputs drawn from randSeed.
func RandomInputs(m KinematicModel, randSeed *rand.Rand) []Input {
	limits := m.DoF()
	inputs := make([]Input, len(limits))
	for i, l := range limits {
		inputs[i] = Input{l.Min + randSeed.Float64()*(l.Max-l.Min)}
	}
	return inputs
}

// ClampInputs moves every input inside its joint limit.
func ClampInputs(m KinematicModel, inputs []Input) []Input {
	limits := m.DoF()
	ret := make([]Input, len(inputs))
	for i, in := range inputs {
		ret[i] = Input{utils.Clamp(in.Value, limits[i].Min, limits[i].Max)}
	}
	return ret
}

// MarshalJSON serializes the model in the same format it is parsed from.
func (m *SerialModel) MarshalJSON() ([]byte, error) {
	if m.modelConfig == nil {
		return nil, ErrNoModelInformation
	}
	return m.modelConfig.marshal()
}
