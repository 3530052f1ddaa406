package spatialmath

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a 6dof pose in space: a position in meters and a unit quaternion orientation.
type Pose interface {
	Point() r3.Vector
	Orientation() quat.Number
}

type pose struct {
	point       r3.Vector
	orientation quat.Number
}

// NewPose returns a pose at the given point with the given orientation. The orientation is
// normalized.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	return &pose{point: point, orientation: Normalize(orientation)}
}

// NewPoseFromPoint returns a pose at the given point with the identity orientation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return &pose{point: point, orientation: quat.Number{Real: 1}}
}

// NewPoseFromAxisAngle returns a pose at the given point rotated by the axis angle.
func NewPoseFromAxisAngle(point r3.Vector, aa *R4AA) Pose {
	return &pose{point: point, orientation: aa.ToQuat()}
}

// NewZeroPose returns a pose at the origin with the identity orientation.
func NewZeroPose() Pose {
	return NewPoseFromPoint(r3.Vector{})
}

func (p *pose) Point() r3.Vector {
	return p.point
}

func (p *pose) Orientation() quat.Number {
	return p.orientation
}

func (p *pose) String() string {
	aa := QuatToR4AA(p.orientation)
	return fmt.Sprintf("{X:%.4f Y:%.4f Z:%.4f Theta:%.4f RX:%.3f RY:%.3f RZ:%.3f}",
		p.point.X, p.point.Y, p.point.Z, aa.Theta, aa.RX, aa.RY, aa.RZ)
}

type poseJSON struct {
	X, Y, Z       float64
	W, QX, QY, QZ float64
}

func (p *pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{
		X: p.point.X, Y: p.point.Y, Z: p.point.Z,
		W: p.orientation.Real, QX: p.orientation.Imag, QY: p.orientation.Jmag, QZ: p.orientation.Kmag,
	})
}

// Compose returns the pose b expressed in the frame whose pose is a.
func Compose(a, b Pose) Pose {
	return &pose{
		point:       a.Point().Add(RotateVector(a.Orientation(), b.Point())),
		orientation: Normalize(quat.Mul(a.Orientation(), b.Orientation())),
	}
}

// PoseInverse returns the inverse of the pose, such that Compose(p, PoseInverse(p)) is the zero pose.
func PoseInverse(p Pose) Pose {
	inv := quat.Conj(p.Orientation())
	return &pose{point: RotateVector(inv, p.Point()).Mul(-1), orientation: inv}
}

// PoseAlmostEqual reports whether two poses are within the given position (meters) and
// orientation (radians) tolerances.
func PoseAlmostEqual(a, b Pose, posTol, orientTol float64) bool {
	return a.Point().Distance(b.Point()) <= posTol &&
		QuatAlmostEqual(a.Orientation(), b.Orientation(), orientTol)
}
