package spatialmath

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// Geometry is an entity that takes up space in the planning scene.
type Geometry interface {
	Pose() Pose
	Label() string
	// Centroid returns the center of the geometry in the world frame.
	Centroid() r3.Vector
	// ContainsPoint reports whether pt lies within the geometry grown by buffer meters.
	ContainsPoint(pt r3.Vector, buffer float64) bool
	json.Marshaler
}

func newBadGeometryDimensionsError(g Geometry) error {
	return fmt.Errorf("invalid dimension(s) for Geometry type %T", g)
}

type box struct {
	pose     Pose
	halfSize r3.Vector
	label    string
}

// NewBox instantiates a new box Geometry centered at pose with full side lengths dims.
func NewBox(pose Pose, dims r3.Vector, label string) (Geometry, error) {
	// Zero dimensions are allowed, negative ones are not.
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return nil, newBadGeometryDimensionsError(&box{})
	}
	return &box{pose: pose, halfSize: dims.Mul(0.5), label: label}, nil
}

func (b *box) Pose() Pose {
	return b.pose
}

func (b *box) Label() string {
	return b.label
}

func (b *box) Centroid() r3.Vector {
	return b.pose.Point()
}

func (b *box) ContainsPoint(pt r3.Vector, buffer float64) bool {
	local := RotateVector(quat.Conj(b.pose.Orientation()), pt.Sub(b.pose.Point()))
	return math.Abs(local.X) <= b.halfSize.X+buffer &&
		math.Abs(local.Y) <= b.halfSize.Y+buffer &&
		math.Abs(local.Z) <= b.halfSize.Z+buffer
}

func (b *box) MarshalJSON() ([]byte, error) {
	return json.Marshal(GeometryConfig{
		Type:  BoxType,
		Label: b.label,
		X:     b.halfSize.X * 2,
		Y:     b.halfSize.Y * 2,
		Z:     b.halfSize.Z * 2,

		Position:    b.pose.Point(),
		Orientation: QuatToR4AA(b.pose.Orientation()),
	})
}

type sphere struct {
	pose   Pose
	radius float64
	label  string
}

// NewSphere instantiates a new sphere Geometry.
func NewSphere(pose Pose, radius float64, label string) (Geometry, error) {
	if radius < 0 {
		return nil, newBadGeometryDimensionsError(&sphere{})
	}
	return &sphere{pose: pose, radius: radius, label: label}, nil
}

func (s *sphere) Pose() Pose {
	return s.pose
}

func (s *sphere) Label() string {
	return s.label
}

func (s *sphere) Centroid() r3.Vector {
	return s.pose.Point()
}

func (s *sphere) ContainsPoint(pt r3.Vector, buffer float64) bool {
	return pt.Distance(s.pose.Point()) <= s.radius+buffer
}

func (s *sphere) MarshalJSON() ([]byte, error) {
	return json.Marshal(GeometryConfig{
		Type:        SphereType,
		Label:       s.label,
		R:           s.radius,
		Position:    s.pose.Point(),
		Orientation: QuatToR4AA(s.pose.Orientation()),
	})
}

// GeometryType defines what geometry creator representations are known.
type GeometryType string

// The set of allowed representations for geometries.
const (
	BoxType    = GeometryType("box")
	SphereType = GeometryType("sphere")
)

// GeometryConfig specifies the format of geometries specified through configuration files.
type GeometryConfig struct {
	Type  GeometryType `json:"type"`
	Label string       `json:"label,omitempty"`

	// parameters used for defining a box's full dimensions, in meters
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`

	// parameter used for defining a sphere's radius, in meters
	R float64 `json:"r,omitempty"`

	Position    r3.Vector `json:"position"`
	Orientation *R4AA     `json:"orientation,omitempty"`
}

// ParseConfig converts a GeometryConfig into a Geometry.
func (config *GeometryConfig) ParseConfig() (Geometry, error) {
	var center Pose
	if config.Orientation != nil {
		center = NewPoseFromAxisAngle(config.Position, config.Orientation)
	} else {
		center = NewPoseFromPoint(config.Position)
	}
	switch config.Type {
	case BoxType:
		return NewBox(center, r3.Vector{X: config.X, Y: config.Y, Z: config.Z}, config.Label)
	case SphereType:
		return NewSphere(center, config.R, config.Label)
	default:
		return nil, errors.Errorf("geometry type %q unsupported", config.Type)
	}
}
