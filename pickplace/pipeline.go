// Package pickplace runs one pick and place cycle: it seeds the planning scene, builds the goal,
// checks manipulability, plans, publishes the results for review and optionally executes.
package pickplace

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pickplace/config"
	"go.viam.com/pickplace/execution"
	"go.viam.com/pickplace/execution/sim"
	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/manipulability"
	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/visualization"
	"go.viam.com/pickplace/worldmodel"
)

// Report summarizes one Run. Fields are filled in as far as the run got.
type Report struct {
	Goal *motionplan.MotionGoal

	// Manipulability of the configuration the robot started from.
	Manipulability *manipulability.Measures

	Plan       *motionplan.PlanResult
	Candidates []*motionplan.Candidate

	// Execution is nil when execution is disabled or never started.
	Execution *execution.Outcome
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	prompter Prompter
	sinks    []visualization.Sink
	backend  execution.Backend
	clock    clock.Clock
	execOpts []execution.Option
}

// WithPrompter sets the confirmation prompter. The default confirms automatically.
func WithPrompter(p Prompter) Option {
	return func(o *options) {
		o.prompter = p
	}
}

// WithSinks adds visualization sinks next to the log sink.
func WithSinks(sinks ...visualization.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithBackend replaces the simulated controller.
func WithBackend(b execution.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithExecutionOptions adds options to the execution coordinator after those from the config.
func WithExecutionOptions(opts ...execution.Option) Option {
	return func(o *options) {
		o.execOpts = append(o.execOpts, opts...)
	}
}

// WithClock sets the clock for simulated time and execution budgets.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// Pipeline owns every component of a pick and place run.
type Pipeline struct {
	cfg    *config.Config
	logger logging.Logger

	model    *referenceframe.SerialModel
	analyzer *manipulability.Analyzer
	world    *worldmodel.WorldModel
	monitor  *worldmodel.StateMonitor

	coordinators []*motionplan.Coordinator
	scorer       *motionplan.Scorer

	sim      *sim.Backend
	executor *execution.Coordinator

	viz      *visualization.SafeSink
	fileSink *visualization.FileSink
	prompter Prompter
}

// New builds a Pipeline from cfg. Call Close when done.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	o := options{prompter: AutoConfirm{}, clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	model, err := cfg.Robot.ParseModel()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		model:    model,
		analyzer: manipulability.NewAnalyzer(cfg.Manipulability),
		world:    worldmodel.New(logger.Sublogger("worldmodel")),
		prompter: o.prompter,
	}
	p.monitor = worldmodel.NewStateMonitor(p.world, logger.Sublogger("worldmodel"))
	p.scorer = motionplan.NewScorer(model, p.analyzer)

	if err := p.buildCoordinators(); err != nil {
		p.monitor.Close()
		return nil, err
	}

	backend := o.backend
	if backend == nil {
		initial, err := cfg.Robot.InitialInputs(model)
		if err != nil {
			p.monitor.Close()
			return nil, err
		}
		p.sim, err = sim.NewBackend(model.JointNames(), referenceframe.InputsToFloats(initial),
			cfg.Execution.SimBackendConfig(), o.clock, logger.Sublogger("sim"))
		if err != nil {
			p.monitor.Close()
			return nil, err
		}
		// the simulated controller is the joint state source of the scene
		p.sim.OnState(func(states []referenceframe.JointState) {
			if err := p.monitor.Publish(context.Background(), worldmodel.StateUpdate{Joints: states}); err != nil {
				logger.Debugw("joint state not published", "error", err)
			}
		})
		backend = p.sim
	}
	execLogger := logger.Sublogger("execution")
	execOpts := append(cfg.Execution.CoordinatorOptions(),
		execution.WithClock(o.clock),
		execution.WithStatusListener(func(status execution.Status) {
			execLogger.Debugw("execution status changed", "status", status)
		}))
	execOpts = append(execOpts, o.execOpts...)
	p.executor = execution.NewCoordinator(backend, execLogger, execOpts...)

	vizLogger := logger.Sublogger("viz")
	sinks := visualization.MultiSink{visualization.NewLogSink(vizLogger)}
	if cfg.Visualization.File != "" {
		p.fileSink = visualization.NewFileSink(cfg.Visualization.File, cfg.Visualization.VisualizationMaxSizeMB())
		sinks = append(sinks, p.fileSink)
	}
	if cfg.Visualization.PlotDir != "" {
		sinks = append(sinks, visualization.NewPlotSink(cfg.Visualization.PlotDir))
	}
	sinks = append(sinks, o.sinks...)
	p.viz = visualization.NewSafeSink(sinks, vizLogger)
	return p, nil
}

// buildCoordinators creates one planner per candidate, each seeded differently.
func (p *Pipeline) buildCoordinators() error {
	n := p.cfg.Planning.Candidates
	if n < 1 {
		n = 1
	}
	baseSeed := seedOf(p.cfg.Planning.Attributes)
	planLogger := p.logger.Sublogger("planning")
	for i := 0; i < n; i++ {
		attrs := lo.Assign(p.cfg.Planning.Attributes)
		if n > 1 {
			attrs["random_seed"] = baseSeed + int64(i)
		}
		planner, err := motionplan.NewPlanner(p.cfg.Planning.PlannerName(), p.model, p.analyzer, attrs, planLogger)
		if err != nil {
			return err
		}
		p.coordinators = append(p.coordinators, motionplan.NewCoordinator(p.world, planner, planLogger,
			motionplan.WithResponseAdapters(motionplan.NewTimeParameterization(p.model))))
	}
	return nil
}

func seedOf(attrs map[string]interface{}) int64 {
	return cast.ToInt64(attrs["random_seed"])
}

// Model returns the robot model.
func (p *Pipeline) Model() *referenceframe.SerialModel {
	return p.model
}

// WorldModel returns the planning scene.
func (p *Pipeline) WorldModel() *worldmodel.WorldModel {
	return p.world
}

// Executor returns the execution coordinator.
func (p *Pipeline) Executor() *execution.Coordinator {
	return p.executor
}

// Run performs one cycle. The returned Report is never nil; a failed plan or execution is also
// returned as an error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	ctx, span := trace.StartSpan(ctx, "pickplace::Pipeline::Run")
	defer span.End()

	report := &Report{}
	if err := p.seedScene(ctx); err != nil {
		return report, err
	}

	var markers []r3.Vector
	err := p.world.WithReadLock(ctx, func(snapshot *worldmodel.Snapshot) error {
		goal, err := p.buildGoal(snapshot)
		if err != nil {
			return err
		}
		report.Goal = goal
		report.Manipulability, err = p.evaluate(snapshot)
		markers = snapshot.ObstaclePositions()
		return err
	})
	if err != nil {
		return report, err
	}
	p.logger.CInfof(ctx, "goal: %v", report.Goal)
	if report.Manipulability.Pass {
		p.logger.CInfof(ctx, "start configuration manipulability: %v", report.Manipulability)
	} else {
		p.logger.Warnw("start configuration is near a singularity", "measures", report.Manipulability.String())
	}

	p.viz.PublishObstacleMarkers(ctx, markers)
	if report.Goal.Kind() == motionplan.JointGoal {
		targets := report.Goal.JointTargets()
		names := report.Goal.JointNames()
		p.viz.PublishGoalState(ctx, names, lo.Map(names, func(name string, _ int) float64 { return targets[name] }))
	}
	if err := p.prompter.Confirm(ctx, "Goal and obstacles published, plan the motion"); err != nil {
		return report, err
	}

	report.Plan, report.Candidates, err = p.plan(ctx, report.Goal)
	for _, c := range p.coordinators {
		p.logger.CDebugf(ctx, "planning stats: %v", c.Stats())
	}
	if err != nil {
		return report, err
	}
	if !report.Plan.Success() {
		return report, report.Plan.Err()
	}

	traj := report.Plan.Trajectory
	p.viz.PublishTrajectory(ctx, traj, visualization.PlannedPathLabel)
	p.viz.PublishTrajectory(ctx, report.Plan.RawTrajectory, visualization.RawPathLabel)
	p.viz.PublishGoalState(ctx, traj.JointNames(), referenceframe.InputsToFloats(traj.End()))

	if !p.cfg.Execution.Enabled {
		p.logger.CInfof(ctx, "execution disabled, planned %d waypoints over %v", traj.Len(), traj.Duration())
		return report, nil
	}
	if err := p.prompter.Confirm(ctx, "Planned path published, execute it"); err != nil {
		return report, err
	}
	p.logger.CInfof(ctx, "executing %d waypoints, budget %v", traj.Len(), p.executor.Budget(traj))
	report.Execution, err = p.executor.Execute(ctx, traj)
	if err != nil {
		return report, err
	}
	return report, report.Execution.Err()
}

// seedScene publishes the starting joint state and the configured obstacles.
func (p *Pipeline) seedScene(ctx context.Context) error {
	var states []referenceframe.JointState
	if p.sim != nil {
		states = p.sim.JointStates()
	} else {
		initial, err := p.cfg.Robot.InitialInputs(p.model)
		if err != nil {
			return err
		}
		if states, err = referenceframe.JointStatesFromInputs(p.model, initial); err != nil {
			return err
		}
	}
	obstacles, err := p.cfg.ParseObstacles()
	if err != nil {
		return err
	}
	return p.monitor.PublishAndWait(ctx, worldmodel.StateUpdate{Joints: states, Obstacles: obstacles, Time: time.Now()})
}

func (p *Pipeline) buildGoal(snapshot *worldmodel.Snapshot) (*motionplan.MotionGoal, error) {
	builder := motionplan.NewGoalBuilder(p.model)
	goal := p.cfg.Goal
	posTol, orientTol := goal.Tolerances()
	switch goal.Type {
	case config.PoseGoalType:
		return builder.BuildPoseGoal(goal.Link, goal.Pose(), posTol, orientTol)
	case config.JointGoalType:
		return builder.BuildJointGoal(goal.Joints)
	case config.PerceivedGoalType:
		orientation := quat.Number{Real: 1}
		if goal.Orientation != nil {
			orientation = goal.Orientation.ToQuat()
		}
		return builder.BuildPerceivedPoseGoal(goal.Link, snapshot, goal.Obstacle, goal.Offset, orientation, posTol, orientTol)
	default:
		return nil, errors.Errorf("unknown goal type %q", goal.Type)
	}
}

// evaluate measures the manipulability of the snapshot's joint configuration.
func (p *Pipeline) evaluate(snapshot *worldmodel.Snapshot) (*manipulability.Measures, error) {
	inputs, err := referenceframe.InputsFromJointStates(p.model, snapshot.Joints())
	if err != nil {
		return nil, err
	}
	jac, err := p.model.JacobianAt(inputs)
	if err != nil {
		return nil, err
	}
	return p.analyzer.Evaluate(jac)
}

func (p *Pipeline) plan(ctx context.Context, goal *motionplan.MotionGoal) (*motionplan.PlanResult, []*motionplan.Candidate, error) {
	group := p.cfg.Planning.GroupName
	if group == "" {
		group = p.model.Name()
	}
	req := &motionplan.PlanRequest{
		GroupName:              group,
		Goals:                  []*motionplan.MotionGoal{goal},
		PlannerID:              p.cfg.Planning.PlannerName(),
		AllowedPlanningTime:    p.cfg.Planning.PlanningTime(),
		MaxVelocityScaling:     p.cfg.Planning.MaxVelocityScaling,
		MaxAccelerationScaling: p.cfg.Planning.MaxAccelerationScaling,
	}
	if len(p.coordinators) == 1 {
		result, err := p.coordinators[0].Plan(ctx, req)
		return result, nil, err
	}

	requests := lo.Map(p.coordinators, func(*motionplan.Coordinator, int) *motionplan.PlanRequest { return req })
	candidates, err := motionplan.PlanCandidates(ctx, p.scorer, p.coordinators, requests)
	if err != nil {
		return nil, nil, err
	}
	best, ok := motionplan.BestCandidate(candidates)
	if !ok {
		return candidates[0].Result, candidates, nil
	}
	p.logger.CInfof(ctx, "picked candidate %s of %d with manipulability %+v", best.Result.ID, len(candidates), best.Score)
	return best.Result, candidates, nil
}

// Close stops the background workers and closes the artifact file.
func (p *Pipeline) Close(ctx context.Context) error {
	p.executor.Preempt()
	var errs error
	if p.sim != nil {
		errs = multierr.Append(errs, p.sim.Close(ctx))
	}
	p.monitor.Close()
	if p.fileSink != nil {
		errs = multierr.Append(errs, p.fileSink.Close())
	}
	return errs
}
