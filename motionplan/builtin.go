package motionplan

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/manipulability"
	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/utils"
	"go.viam.com/pickplace/worldmodel"
)

// Names of the built-in planners.
const (
	InterpolatePlannerName = "interpolate"
	DirectPlannerName      = "direct"
	RRTConnectPlannerName  = "rrtconnect"
)

// connectMode selects how a planner joins two configurations.
type connectMode int

const (
	// only the endpoint of a straight joint-space segment is kept.
	connectDirect connectMode = iota
	// straight segments sampled at the configured resolution.
	connectInterpolate
	// straight segments, falling back to a bidirectional tree search when they collide.
	connectSearch
)

// default values for built-in planner attributes.
const (
	defaultMaxIterations = 300

	// damping factor of the least squares step.
	defaultDamping = 0.05

	// largest change of any joint in one IK iteration, radians.
	defaultMaxStep = 0.2

	// largest change of any joint between interpolated waypoints, radians.
	defaultResolution = 0.05

	// obstacles are grown by this much when checking the arm against them, meters.
	defaultCollisionBuffer = 0.01

	// points sampled along each link when checking collisions.
	linkSamples = 4

	rejectManipulability = "manipulability"
	rejectCollision      = "collision"
)

var defaultRestarts = 30

func init() {
	defaultRestarts = utils.GetenvInt("PICKPLACE_IK_RESTARTS", defaultRestarts)

	RegisterPlanner(InterpolatePlannerName, func(
		model referenceframe.KinematicModel, analyzer *manipulability.Analyzer, attrs map[string]interface{}, logger logging.Logger,
	) (Planner, error) {
		return newIKPlanner(model, analyzer, attrs, connectInterpolate, logger)
	})
	RegisterPlanner(DirectPlannerName, func(
		model referenceframe.KinematicModel, analyzer *manipulability.Analyzer, attrs map[string]interface{}, logger logging.Logger,
	) (Planner, error) {
		return newIKPlanner(model, analyzer, attrs, connectDirect, logger)
	})
	RegisterPlanner(RRTConnectPlannerName, func(
		model referenceframe.KinematicModel, analyzer *manipulability.Analyzer, attrs map[string]interface{}, logger logging.Logger,
	) (Planner, error) {
		return newIKPlanner(model, analyzer, attrs, connectSearch, logger)
	})
}

// IKPlannerConfig holds the attributes of the built-in planners. Zero values use defaults; to
// disable restarts set Restarts < 0.
type IKPlannerConfig struct {
	// Planning group this planner serves. Defaults to the model name.
	GroupName string `json:"group_name"`

	MaxIterations int     `json:"max_iterations"`
	Restarts      int     `json:"restarts"`
	Damping       float64 `json:"damping"`
	MaxStep       float64 `json:"max_step_rad"`

	// Waypoint spacing of the interpolating and searching planners.
	Resolution float64 `json:"resolution_rad"`

	// Tree search parameters of the searching planner.
	SearchIterations int     `json:"search_iterations"`
	SearchStep       float64 `json:"search_step_rad"`
	SmoothIterations int     `json:"smooth_iterations"`

	CollisionBuffer float64 `json:"collision_buffer_m"`
	RandomSeed      int64   `json:"random_seed"`
}

func (cfg *IKPlannerConfig) setDefaults(model referenceframe.KinematicModel) {
	if cfg.GroupName == "" {
		cfg.GroupName = model.Name()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Restarts == 0 {
		cfg.Restarts = defaultRestarts
	} else if cfg.Restarts < 0 {
		cfg.Restarts = 0
	}
	if cfg.Damping <= 0 {
		cfg.Damping = defaultDamping
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = defaultMaxStep
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = defaultResolution
	}
	if cfg.SearchIterations <= 0 {
		cfg.SearchIterations = defaultSearchIterations
	}
	if cfg.SearchStep <= 0 {
		cfg.SearchStep = defaultSearchStep
	}
	if cfg.SmoothIterations == 0 {
		cfg.SmoothIterations = defaultSmoothIterations
	} else if cfg.SmoothIterations < 0 {
		cfg.SmoothIterations = 0
	}
	if cfg.CollisionBuffer == 0 {
		cfg.CollisionBuffer = defaultCollisionBuffer
	} else if cfg.CollisionBuffer < 0 {
		cfg.CollisionBuffer = 0
	}
}

// ikPlanner solves pose goals with Jacobian IK and connects configurations with straight
// joint-space segments, or with a tree search when it searches and the straight segment collides.
type ikPlanner struct {
	model    referenceframe.KinematicModel
	analyzer *manipulability.Analyzer
	cfg      IKPlannerConfig
	ik       *jacobianIK
	mode     connectMode
	logger   logging.Logger
}

func newIKPlanner(
	model referenceframe.KinematicModel,
	analyzer *manipulability.Analyzer,
	attrs map[string]interface{},
	mode connectMode,
	logger logging.Logger,
) (*ikPlanner, error) {
	if model == nil {
		return nil, errors.New("planner requires a robot model")
	}
	var cfg IKPlannerConfig
	if err := decodeAttributes(attrs, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults(model)
	if analyzer == nil {
		analyzer = manipulability.NewAnalyzer(manipulability.Config{})
	}
	return &ikPlanner{
		model:    model,
		analyzer: analyzer,
		cfg:      cfg,
		ik: &jacobianIK{
			model:         model,
			maxIterations: cfg.MaxIterations,
			restarts:      cfg.Restarts,
			damping:       cfg.Damping,
			maxStep:       cfg.MaxStep,
		},
		mode:   mode,
		logger: logger,
	}, nil
}

// Config returns the planner's resolved configuration.
func (p *ikPlanner) Config() IKPlannerConfig {
	return p.cfg
}

func failed(code StatusCode, format string, args ...interface{}) *PlannerResponse {
	return &PlannerResponse{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func (p *ikPlanner) GeneratePlan(
	ctx context.Context,
	snapshot *worldmodel.Snapshot,
	req *PlanRequest,
) (*PlannerResponse, error) {
	ctx, span := trace.StartSpan(ctx, "motionplan::ikPlanner::GeneratePlan")
	defer span.End()

	if req.GroupName != p.cfg.GroupName {
		return failed(InvalidGroupName, "planner serves group %q, not %q", p.cfg.GroupName, req.GroupName), nil
	}
	states := snapshot.Joints()
	if len(req.StartState) > 0 {
		states = req.StartState
	}
	start, err := referenceframe.InputsFromJointStates(p.model, states)
	if err != nil {
		return failed(Failure, "invalid start state: %v", err), nil
	}
	if !p.model.AreInputsValid(start) {
		return failed(Failure, "start state is outside joint limits"), nil
	}
	if name, hit := p.collides(snapshot, start); hit {
		return failed(StartStateInCollision, "start state collides with %q", name), nil
	}

	randSeed := rand.New(rand.NewSource(p.cfg.RandomSeed)) //nolint:gosec
	configs := [][]referenceframe.Input{start}
	for i, goal := range req.Goals {
		from := configs[len(configs)-1]
		target, resp, err := p.solveGoal(ctx, snapshot, goal, from, randSeed)
		if err != nil || resp != nil {
			return resp, err
		}
		segment, resp, err := p.connect(ctx, snapshot, from, target, randSeed)
		if err != nil || resp != nil {
			return resp, err
		}
		p.logger.CDebugf(ctx, "goal %d of %d solved with %d waypoints", i+1, len(req.Goals), len(segment))
		configs = append(configs, segment...)
	}

	traj, err := TrajectoryFromInputs(p.model.JointNames(), configs)
	if err != nil {
		return nil, err
	}
	return &PlannerResponse{Code: Success, Trajectory: traj}, nil
}

// solveGoal returns the goal configuration, or a failure response.
func (p *ikPlanner) solveGoal(
	ctx context.Context,
	snapshot *worldmodel.Snapshot,
	goal *MotionGoal,
	from []referenceframe.Input,
	randSeed *rand.Rand,
) ([]referenceframe.Input, *PlannerResponse, error) {
	switch goal.Kind() {
	case JointGoal:
		target := append([]referenceframe.Input(nil), from...)
		targets := goal.JointTargets()
		for i, name := range p.model.JointNames() {
			if v, ok := targets[name]; ok {
				target[i] = referenceframe.Input{Value: v}
			}
		}
		if !p.model.AreInputsValid(target) {
			return nil, failed(InvalidGoalConstraints, "joint goal is outside joint limits"), nil
		}
		if name, hit := p.collides(snapshot, target); hit {
			return nil, failed(GoalInCollision, "joint goal collides with %q", name), nil
		}
		return target, nil, nil
	case PoseGoal:
		if goal.Link() != p.model.EndEffector() {
			return nil, failed(InvalidGoalConstraints, "link %q is not the end effector %q of group %q",
				goal.Link(), p.model.EndEffector(), p.cfg.GroupName), nil
		}
		res, err := p.ik.solve(ctx, goal, from, randSeed, func(q []referenceframe.Input) string {
			if !p.passesManipulability(q) {
				return rejectManipulability
			}
			if _, hit := p.collides(snapshot, q); hit {
				return rejectCollision
			}
			return ""
		})
		if err != nil {
			return nil, nil, err
		}
		if res.Solution == nil {
			if len(res.Rejections) == 1 && res.Rejections[rejectCollision] > 0 {
				return nil, failed(GoalInCollision, "every IK solution collides with an obstacle"), nil
			}
			return nil, failed(NoIKSolution, "%v after %d attempts%s", NewIKError(), res.Attempts, rejectionSummary(res.Rejections)), nil
		}
		return res.Solution, nil, nil
	default:
		return nil, failed(InvalidGoalConstraints, "unsupported goal kind %v", goal.Kind()), nil
	}
}

// connect returns the waypoints after from up to and including to.
func (p *ikPlanner) connect(
	ctx context.Context,
	snapshot *worldmodel.Snapshot,
	from, to []referenceframe.Input,
	randSeed *rand.Rand,
) ([][]referenceframe.Input, *PlannerResponse, error) {
	ctx, span := trace.StartSpan(ctx, "motionplan::ikPlanner::connect")
	defer span.End()

	segment, blocker, err := p.straightSegment(ctx, snapshot, from, to)
	if err != nil {
		return nil, nil, err
	}
	if blocker == "" {
		return segment, nil, nil
	}
	if p.mode != connectSearch {
		return nil, failed(PlanningFailed, "%v: path collides with %q", NewPlannerFailedError(), blocker), nil
	}

	p.logger.CDebugf(ctx, "straight path collides with %q, searching", blocker)
	path, err := p.search(ctx, snapshot, from, to, randSeed)
	if err != nil {
		return nil, nil, err
	}
	if path == nil {
		return nil, failed(PlanningFailed, "%v: no path around %q after %d iterations",
			NewPlannerFailedError(), blocker, p.cfg.SearchIterations), nil
	}
	path = p.smooth(snapshot, path, randSeed)

	segment = nil
	for i := 1; i < len(path); i++ {
		part, blocker, err := p.straightSegment(ctx, snapshot, path[i-1], path[i])
		if err != nil {
			return nil, nil, err
		}
		if blocker != "" {
			return nil, failed(PlanningFailed, "%v: searched path collides with %q", NewPlannerFailedError(), blocker), nil
		}
		segment = append(segment, part...)
	}
	return segment, nil, nil
}

// straightSegment samples the straight joint-space path from from to to at the configured
// resolution. It returns the kept waypoints, or the name of the first obstacle hit.
func (p *ikPlanner) straightSegment(
	ctx context.Context,
	snapshot *worldmodel.Snapshot,
	from, to []referenceframe.Input,
) ([][]referenceframe.Input, string, error) {
	steps := p.steps(from, to)
	var segment [][]referenceframe.Input
	for s := 1; s <= steps; s++ {
		if s%20 == 0 && ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		q := referenceframe.InterpolateInputs(from, to, float64(s)/float64(steps))
		if name, hit := p.collides(snapshot, q); hit {
			return nil, name, nil
		}
		if p.mode != connectDirect || s == steps {
			segment = append(segment, q)
		}
	}
	return segment, "", nil
}

func (p *ikPlanner) steps(from, to []referenceframe.Input) int {
	largest := 0.
	for i := range from {
		largest = math.Max(largest, math.Abs(to[i].Value-from[i].Value))
	}
	steps := int(math.Ceil(largest / p.cfg.Resolution))
	if steps < 1 {
		steps = 1
	}
	return steps
}

func (p *ikPlanner) passesManipulability(q []referenceframe.Input) bool {
	jac, err := p.model.JacobianAt(q)
	if err != nil {
		return false
	}
	measures, err := p.analyzer.Evaluate(jac)
	if err != nil {
		return false
	}
	return measures.Pass
}

// collides checks the joint origins, the flange and points along every link against the obstacles.
func (p *ikPlanner) collides(snapshot *worldmodel.Snapshot, q []referenceframe.Input) (string, bool) {
	if snapshot.ObstacleCount() == 0 {
		return "", false
	}
	origins, err := p.model.JointOrigins(q)
	if err != nil {
		return "", false
	}
	points := []r3.Vector{origins[0]}
	for i := 1; i < len(origins); i++ {
		for s := 1; s <= linkSamples; s++ {
			frac := float64(s) / float64(linkSamples)
			points = append(points, origins[i-1].Add(origins[i].Sub(origins[i-1]).Mul(frac)))
		}
	}
	for _, name := range snapshot.ObstacleNames() {
		geom, _ := snapshot.Obstacle(name)
		for _, pt := range points {
			if geom.ContainsPoint(pt, p.cfg.CollisionBuffer) {
				return name, true
			}
		}
	}
	return "", false
}

func rejectionSummary(rejections map[string]int) string {
	if len(rejections) == 0 {
		return ""
	}
	parts := make([]string, 0, len(rejections))
	for reason, n := range rejections {
		parts = append(parts, fmt.Sprintf("%d rejected by %s", n, reason))
	}
	sort.Strings(parts)
	return " (" + strings.Join(parts, ", ") + ")"
}
