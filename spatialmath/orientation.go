// Package spatialmath defines poses, orientations and the simple geometries used to describe
// obstacles in the planning scene.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// R4AA represents an R4 axis angle: a unit axis (RX, RY, RZ) and a rotation Theta in radians
// around that axis.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// Axis returns the rotation axis as a vector.
func (r4 *R4AA) Axis() r3.Vector {
	return r3.Vector{X: r4.RX, Y: r4.RY, Z: r4.RZ}
}

// Normalize scales the axis to unit length. A zero axis becomes +Z with no rotation.
func (r4 *R4AA) Normalize() {
	norm := r4.Axis().Norm()
	if norm == 0 {
		r4.Theta, r4.RX, r4.RY, r4.RZ = 0, 0, 0, 1
		return
	}
	r4.RX /= norm
	r4.RY /= norm
	r4.RZ /= norm
}

// ToQuat converts the axis angle to a unit quaternion.
func (r4 *R4AA) ToQuat() quat.Number {
	axis := r4.Axis()
	norm := axis.Norm()
	if norm == 0 || r4.Theta == 0 {
		return quat.Number{Real: 1}
	}
	axis = axis.Mul(1 / norm)
	sinHalf := math.Sin(r4.Theta / 2)
	return quat.Number{
		Real: math.Cos(r4.Theta / 2),
		Imag: axis.X * sinHalf,
		Jmag: axis.Y * sinHalf,
		Kmag: axis.Z * sinHalf,
	}
}

// QuatToR4AA converts a quaternion to an axis angle with Theta in [0, pi].
func QuatToR4AA(q quat.Number) *R4AA {
	q = Normalize(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	vec := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := vec.Norm()
	if sinHalf < 1e-12 {
		return &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
	}
	axis := vec.Mul(1 / sinHalf)
	return &R4AA{Theta: 2 * math.Atan2(sinHalf, q.Real), RX: axis.X, RY: axis.Y, RZ: axis.Z}
}

// Normalize returns the unit quaternion in the direction of q. The zero quaternion becomes identity.
func Normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// OrientationError returns the rotation vector (axis scaled by angle, world frame) that takes
// current onto goal, taking the shorter way around.
func OrientationError(goal, current quat.Number) r3.Vector {
	diff := quat.Mul(Normalize(goal), quat.Conj(Normalize(current)))
	aa := QuatToR4AA(diff)
	return aa.Axis().Mul(aa.Theta)
}

// QuatAlmostEqual reports whether two unit quaternions describe the same rotation within tol radians.
func QuatAlmostEqual(a, b quat.Number, tol float64) bool {
	return OrientationError(a, b).Norm() <= tol
}
