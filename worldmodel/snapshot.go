package worldmodel

import (
	"sort"
	"time"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
)

// Snapshot is one published revision of the planning scene. Its contents cannot be changed after
// it is published: every accessor returns a copy. Readers may keep it past their lock, but must
// not assume it is current.
type Snapshot struct {
	revision  uint64
	time      time.Time
	joints    []referenceframe.JointState
	obstacles map[string]spatialmath.Geometry
}

// NewSnapshot returns a standalone scene, for planners and goals evaluated outside a WorldModel.
// Obstacles with the same label replace earlier ones.
func NewSnapshot(
	revision uint64,
	at time.Time,
	joints []referenceframe.JointState,
	obstacles ...spatialmath.Geometry,
) *Snapshot {
	return &Snapshot{
		revision: revision,
		time:     at,
		joints:   append([]referenceframe.JointState(nil), joints...),
		obstacles: lo.SliceToMap(obstacles, func(g spatialmath.Geometry) (string, spatialmath.Geometry) {
			return g.Label(), g
		}),
	}
}

// Revision is the number of updates applied to produce this scene.
func (s *Snapshot) Revision() uint64 {
	return s.revision
}

// Time is when the update that produced this scene was observed.
func (s *Snapshot) Time() time.Time {
	return s.time
}

// Joints returns a copy of the joint states in first-seen order.
func (s *Snapshot) Joints() []referenceframe.JointState {
	return append([]referenceframe.JointState(nil), s.joints...)
}

// JointPositions returns the joint positions keyed by name.
func (s *Snapshot) JointPositions() map[string]float64 {
	return lo.SliceToMap(s.joints, func(j referenceframe.JointState) (string, float64) {
		return j.Name, j.Position
	})
}

// Obstacle returns the obstacle with the given label.
func (s *Snapshot) Obstacle(name string) (spatialmath.Geometry, bool) {
	g, ok := s.obstacles[name]
	return g, ok
}

// ObstacleCount returns the number of obstacles in the scene.
func (s *Snapshot) ObstacleCount() int {
	return len(s.obstacles)
}

// ObstacleNames returns the obstacle names in sorted order.
func (s *Snapshot) ObstacleNames() []string {
	names := lo.Keys(s.obstacles)
	sort.Strings(names)
	return names
}

// ObstaclePositions returns the centroid of every obstacle, in ObstacleNames order.
func (s *Snapshot) ObstaclePositions() []r3.Vector {
	return lo.Map(s.ObstacleNames(), func(name string, _ int) r3.Vector {
		return s.obstacles[name].Centroid()
	})
}

// StateUpdate is a partial scene update from a sensor or controller monitor. Joints are merged
// by name; obstacles are upserted by label, then RemoveObstacles are dropped.
type StateUpdate struct {
	Joints          []referenceframe.JointState
	Obstacles       []spatialmath.Geometry
	RemoveObstacles []string
	Time            time.Time
}

// apply builds the next snapshot from prev without modifying it.
func (u StateUpdate) apply(prev *Snapshot, revision uint64) *Snapshot {
	next := &Snapshot{
		revision:  revision,
		time:      u.Time,
		obstacles: map[string]spatialmath.Geometry{},
	}
	if next.time.IsZero() {
		next.time = time.Now()
	}
	if prev != nil {
		next.joints = append(next.joints, prev.joints...)
		for name, g := range prev.obstacles {
			next.obstacles[name] = g
		}
	}

	index := make(map[string]int, len(next.joints))
	for i, j := range next.joints {
		index[j.Name] = i
	}
	for _, j := range u.Joints {
		if i, ok := index[j.Name]; ok {
			next.joints[i] = j
			continue
		}
		index[j.Name] = len(next.joints)
		next.joints = append(next.joints, j)
	}

	for _, g := range u.Obstacles {
		next.obstacles[g.Label()] = g
	}
	for _, name := range u.RemoveObstacles {
		delete(next.obstacles, name)
	}
	return next
}
