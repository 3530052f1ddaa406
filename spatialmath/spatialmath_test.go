package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestAxisAngleRoundTrip(t *testing.T) {
	aa := &R4AA{Theta: math.Pi / 3, RX: 0, RY: 2, RZ: 0}
	back := QuatToR4AA(aa.ToQuat())
	test.That(t, back.Theta, test.ShouldAlmostEqual, math.Pi/3)
	test.That(t, back.RY, test.ShouldAlmostEqual, 1)

	identity := QuatToR4AA(quat.Number{Real: 1})
	test.That(t, identity.Theta, test.ShouldEqual, 0.)
}

func TestRotateVector(t *testing.T) {
	q := (&R4AA{Theta: math.Pi / 2, RZ: 1}).ToQuat()
	v := RotateVector(q, r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1)
	test.That(t, v.Z, test.ShouldAlmostEqual, 0)
}

func TestOrientationError(t *testing.T) {
	current := (&R4AA{Theta: 0.2, RX: 1}).ToQuat()
	goal := (&R4AA{Theta: 0.5, RX: 1}).ToQuat()
	e := OrientationError(goal, current)
	test.That(t, e.X, test.ShouldAlmostEqual, 0.3)
	test.That(t, e.Y, test.ShouldAlmostEqual, 0)
	test.That(t, e.Z, test.ShouldAlmostEqual, 0)

	// q and -q are the same rotation
	test.That(t, OrientationError(goal, quat.Scale(-1, goal)).Norm(), test.ShouldAlmostEqual, 0)
}

func TestCompose(t *testing.T) {
	a := NewPoseFromAxisAngle(r3.Vector{X: 1}, &R4AA{Theta: math.Pi / 2, RZ: 1})
	b := NewPoseFromPoint(r3.Vector{X: 1})
	c := Compose(a, b)
	test.That(t, c.Point().X, test.ShouldAlmostEqual, 1)
	test.That(t, c.Point().Y, test.ShouldAlmostEqual, 1)

	zero := Compose(a, PoseInverse(a))
	test.That(t, PoseAlmostEqual(zero, NewZeroPose(), 1e-9, 1e-9), test.ShouldBeTrue)
}

func TestGeometryContainment(t *testing.T) {
	b, err := NewBox(NewPoseFromAxisAngle(r3.Vector{Z: 1}, &R4AA{Theta: math.Pi / 4, RZ: 1}), r3.Vector{X: 2, Y: 0.2, Z: 0.2}, "shelf")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.ContainsPoint(r3.Vector{X: 0.5, Y: 0.5, Z: 1}, 0), test.ShouldBeTrue)
	test.That(t, b.ContainsPoint(r3.Vector{X: 0.5, Y: -0.5, Z: 1}, 0), test.ShouldBeFalse)

	s, err := NewSphere(NewPoseFromPoint(r3.Vector{X: 0.5}), 0.1, "ball")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.ContainsPoint(r3.Vector{X: 0.65}, 0), test.ShouldBeFalse)
	test.That(t, s.ContainsPoint(r3.Vector{X: 0.65}, 0.1), test.ShouldBeTrue)
	test.That(t, s.Centroid(), test.ShouldResemble, r3.Vector{X: 0.5})

	_, err = NewSphere(NewZeroPose(), -1, "")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGeometryConfig(t *testing.T) {
	cfg := GeometryConfig{Type: BoxType, Label: "table", X: 1, Y: 1, Z: 0.1, Position: r3.Vector{Z: -0.05}}
	g, err := cfg.ParseConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.Label(), test.ShouldEqual, "table")
	test.That(t, g.ContainsPoint(r3.Vector{X: 0.4, Z: -0.02}, 0), test.ShouldBeTrue)

	cfg.Type = "capsule"
	_, err = cfg.ParseConfig()
	test.That(t, err, test.ShouldNotBeNil)
}
