package motionplan

import (
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
	"go.viam.com/pickplace/utils"
	"go.viam.com/pickplace/worldmodel"
)

// GoalKind distinguishes pose targets from joint targets.
type GoalKind int

// Goal kinds.
const (
	PoseGoal GoalKind = iota
	JointGoal
)

func (k GoalKind) String() string {
	switch k {
	case PoseGoal:
		return "pose"
	case JointGoal:
		return "joint"
	default:
		return fmt.Sprintf("GoalKind(%d)", int(k))
	}
}

// MotionGoal is an immutable pose or joint target. Build one with a GoalBuilder.
type MotionGoal struct {
	kind GoalKind

	link      string
	pose      spatialmath.Pose
	posTol    float64
	orientTol float64

	joints map[string]float64
}

// Kind returns whether this is a pose or joint goal.
func (g *MotionGoal) Kind() GoalKind {
	return g.kind
}

// Link returns the link a pose goal constrains.
func (g *MotionGoal) Link() string {
	return g.link
}

// Pose returns the target pose of a pose goal, nil for joint goals.
func (g *MotionGoal) Pose() spatialmath.Pose {
	return g.pose
}

// PositionTolerance is the allowed distance from the target point in meters.
func (g *MotionGoal) PositionTolerance() float64 {
	return g.posTol
}

// OrientationTolerance is the allowed rotation from the target orientation in radians.
func (g *MotionGoal) OrientationTolerance() float64 {
	return g.orientTol
}

// JointTargets returns a copy of the joint goal's targets.
func (g *MotionGoal) JointTargets() map[string]float64 {
	return lo.Assign(g.joints)
}

// JointNames returns the joints of a joint goal in sorted order.
func (g *MotionGoal) JointNames() []string {
	names := lo.Keys(g.joints)
	sort.Strings(names)
	return names
}

func (g *MotionGoal) String() string {
	if g.kind == JointGoal {
		return fmt.Sprintf("joint goal %v", g.joints)
	}
	return fmt.Sprintf("pose goal for %s at %v (tol %g m, %g rad)", g.link, g.pose, g.posTol, g.orientTol)
}

// GoalBuilder validates goals against a robot model.
type GoalBuilder struct {
	model referenceframe.RobotModel
}

// NewGoalBuilder returns a GoalBuilder for model.
func NewGoalBuilder(model referenceframe.RobotModel) *GoalBuilder {
	return &GoalBuilder{model: model}
}

// BuildPoseGoal returns a goal placing link at pose within the given tolerances.
func (gb *GoalBuilder) BuildPoseGoal(link string, pose spatialmath.Pose, posTol, orientTol float64) (*MotionGoal, error) {
	if link == "" {
		return nil, ErrEmptyLinkName
	}
	if pose == nil {
		return nil, errors.New("pose goal requires a pose")
	}
	if !utils.IsFinite(posTol) || posTol < 0 {
		return nil, newInvalidToleranceError("position", posTol)
	}
	if !utils.IsFinite(orientTol) || orientTol < 0 {
		return nil, newInvalidToleranceError("orientation", orientTol)
	}
	pt := pose.Point()
	if !utils.IsFinite(pt.X, pt.Y, pt.Z) {
		return nil, errors.Errorf("pose goal position must be finite, got %v", pt)
	}
	return &MotionGoal{
		kind:      PoseGoal,
		link:      link,
		pose:      spatialmath.NewPose(pt, spatialmath.Normalize(pose.Orientation())),
		posTol:    posTol,
		orientTol: orientTol,
	}, nil
}

// BuildJointGoal returns a goal for the named joints. Every name must be a joint of the model.
func (gb *GoalBuilder) BuildJointGoal(targets map[string]float64) (*MotionGoal, error) {
	if len(targets) == 0 {
		return nil, ErrEmptyJointGoal
	}
	known := lo.SliceToMap(gb.model.JointNames(), func(name string) (string, struct{}) {
		return name, struct{}{}
	})
	// sorted so that the reported joint is deterministic
	names := lo.Keys(targets)
	sort.Strings(names)
	for _, name := range names {
		if _, ok := known[name]; !ok {
			return nil, NewUnknownJointError(name, gb.model.Name())
		}
		if !utils.IsFinite(targets[name]) {
			return nil, errors.Errorf("joint %q target must be finite, got %v", name, targets[name])
		}
	}
	return &MotionGoal{kind: JointGoal, joints: lo.Assign(targets)}, nil
}

// BuildPerceivedPoseGoal targets a perceived obstacle: link is placed at the obstacle's centroid
// plus offset, with the given orientation. Used to approach an object from above.
func (gb *GoalBuilder) BuildPerceivedPoseGoal(
	link string,
	snapshot *worldmodel.Snapshot,
	obstacle string,
	offset r3.Vector,
	orientation quat.Number,
	posTol, orientTol float64,
) (*MotionGoal, error) {
	if snapshot == nil {
		return nil, worldmodel.ErrStateUnavailable
	}
	geom, ok := snapshot.Obstacle(obstacle)
	if !ok {
		return nil, errors.Errorf("obstacle %q is not in the planning scene", obstacle)
	}
	target := spatialmath.NewPose(geom.Centroid().Add(offset), orientation)
	return gb.BuildPoseGoal(link, target, posTol, orientTol)
}
