// Package config defines the JSON configuration of a pick and place run.
package config

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/pickplace/execution"
	"go.viam.com/pickplace/execution/sim"
	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/manipulability"
	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/spatialmath"
)

// Goal types.
const (
	PoseGoalType      = "pose"
	JointGoalType     = "joint"
	PerceivedGoalType = "perceived"
)

// default values used when the configuration leaves them unset.
const (
	defaultModel             = "panda"
	defaultPositionTolerance = 0.01
	defaultOrientTolerance   = 0.01
	defaultVisualizationMB   = 10
)

// Config describes a complete pick and place run.
type Config struct {
	Robot          RobotConfig                  `json:"robot"`
	Planning       PlanningConfig               `json:"planning"`
	Manipulability manipulability.Config        `json:"manipulability"`
	Goal           GoalConfig                   `json:"goal"`
	Obstacles      []spatialmath.GeometryConfig `json:"obstacles,omitempty"`
	Execution      ExecutionConfig              `json:"execution"`
	Visualization  VisualizationConfig          `json:"visualization"`
	Log            LogConfig                    `json:"log"`
}

// RobotConfig selects the kinematic model and its starting configuration.
type RobotConfig struct {
	// Model is a built-in model name, or the model name inside ModelFile.
	Model     string `json:"model,omitempty"`
	ModelFile string `json:"model_file,omitempty"`

	// InitialJoints are the joint positions reported before any motion. Missing joints start at 0.
	InitialJoints map[string]float64 `json:"initial_joints,omitempty"`
}

// PlanningConfig selects the planner and the request parameters.
type PlanningConfig struct {
	Planner                string  `json:"planner,omitempty"`
	GroupName              string  `json:"group_name,omitempty"`
	AllowedPlanningTime    string  `json:"allowed_planning_time,omitempty"`
	MaxVelocityScaling     float64 `json:"max_velocity_scaling,omitempty"`
	MaxAccelerationScaling float64 `json:"max_acceleration_scaling,omitempty"`

	// Candidates > 1 plans that many differently seeded requests concurrently and keeps the
	// best-conditioned trajectory.
	Candidates int `json:"candidates,omitempty"`

	// Attributes are passed to the planner constructor.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// GoalConfig describes the single goal of the run.
type GoalConfig struct {
	Type string `json:"type"`
	Link string `json:"link,omitempty"`

	// pose goals
	Position    *r3.Vector        `json:"position,omitempty"`
	Orientation *spatialmath.R4AA `json:"orientation,omitempty"`

	// joint goals
	Joints map[string]float64 `json:"joints,omitempty"`

	// perceived goals target Obstacle's centroid plus Offset
	Obstacle string    `json:"obstacle,omitempty"`
	Offset   r3.Vector `json:"offset"`

	PositionTolerance    float64 `json:"position_tolerance,omitempty"`
	OrientationTolerance float64 `json:"orientation_tolerance,omitempty"`
}

// ExecutionConfig controls whether and how the planned trajectory is executed.
type ExecutionConfig struct {
	Enabled         bool      `json:"enabled"`
	DurationScaling float64   `json:"duration_scaling,omitempty"`
	GoalMargin      string    `json:"goal_margin,omitempty"`
	MinTimeout      string    `json:"min_timeout,omitempty"`
	Sim             SimConfig `json:"sim"`
}

// SimConfig configures the simulated controller.
type SimConfig struct {
	Controller   string  `json:"controller,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	TickInterval string  `json:"tick_interval,omitempty"`
}

// VisualizationConfig selects where artifacts are published. Artifacts are always logged.
type VisualizationConfig struct {
	File      string `json:"file,omitempty"`
	MaxSizeMB int    `json:"max_size_mb,omitempty"`

	// PlotDir receives a PNG chart of every published trajectory.
	PlotDir string `json:"plot_dir,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `json:"level,omitempty"`
	File      string `json:"file,omitempty"`
	MaxSizeMB int    `json:"max_size_mb,omitempty"`
}

// Validate ensures all parts of the config are valid. path is prefixed to field names in errors.
func (c *Config) Validate(path string) error {
	var errs error
	if c.Robot.Model == "" && c.Robot.ModelFile != "" {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path+".robot", "model"))
	}
	errs = multierr.Append(errs, c.Planning.Validate(path+".planning"))
	if err := c.Manipulability.Validate(); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".manipulability", err))
	}
	errs = multierr.Append(errs, c.Goal.Validate(path+".goal"))

	labels := map[string]bool{}
	for i, obs := range c.Obstacles {
		obsPath := fmt.Sprintf("%s.obstacles.%d", path, i)
		if obs.Label == "" {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(obsPath, "label"))
			continue
		}
		if labels[obs.Label] {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(obsPath, errors.Errorf("duplicate label %q", obs.Label)))
		}
		labels[obs.Label] = true
		if _, err := obs.ParseConfig(); err != nil {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(obsPath, err))
		}
	}
	if c.Goal.Type == PerceivedGoalType && c.Goal.Obstacle != "" && !labels[c.Goal.Obstacle] {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".goal",
			errors.Errorf("obstacle %q is not configured", c.Goal.Obstacle)))
	}

	errs = multierr.Append(errs, c.Execution.Validate(path+".execution"))
	if c.Visualization.MaxSizeMB < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".visualization",
			errors.New("max_size_mb must not be negative")))
	}
	if c.Log.Level != "" {
		if _, err := logging.LevelFromString(c.Log.Level); err != nil {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path+".log", err))
		}
	}
	return errs
}

// Validate checks the planning section.
func (c *PlanningConfig) Validate(path string) error {
	var errs error
	if _, err := parseDuration(c.AllowedPlanningTime); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Wrap(err, "allowed_planning_time")))
	}
	if c.MaxVelocityScaling < 0 || c.MaxVelocityScaling > 1 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("max_velocity_scaling must be in [0, 1], got %v", c.MaxVelocityScaling)))
	}
	if c.MaxAccelerationScaling < 0 || c.MaxAccelerationScaling > 1 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("max_acceleration_scaling must be in [0, 1], got %v", c.MaxAccelerationScaling)))
	}
	if c.Candidates < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.New("candidates must not be negative")))
	}
	return errs
}

// Validate checks the goal section.
func (c *GoalConfig) Validate(path string) error {
	var errs error
	if c.PositionTolerance < 0 || c.OrientationTolerance < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.New("tolerances must not be negative")))
	}
	switch c.Type {
	case "":
		return multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "type"))
	case PoseGoalType:
		if c.Link == "" {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "link"))
		}
		if c.Position == nil {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "position"))
		}
	case JointGoalType:
		if len(c.Joints) == 0 {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "joints"))
		}
	case PerceivedGoalType:
		if c.Link == "" {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "link"))
		}
		if c.Obstacle == "" {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "obstacle"))
		}
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Errorf("unknown goal type %q", c.Type)))
	}
	return errs
}

// Validate checks the execution section.
func (c *ExecutionConfig) Validate(path string) error {
	var errs error
	for field, value := range map[string]string{
		"goal_margin":       c.GoalMargin,
		"min_timeout":       c.MinTimeout,
		"sim.tick_interval": c.Sim.TickInterval,
	} {
		if _, err := parseDuration(value); err != nil {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Wrap(err, field)))
		}
	}
	if c.DurationScaling < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.New("duration_scaling must not be negative")))
	}
	if c.Sim.Speed < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.New("sim.speed must not be negative")))
	}
	return errs
}

// ParseModel loads the configured kinematic model, the built-in panda by default.
func (c *RobotConfig) ParseModel() (*referenceframe.SerialModel, error) {
	if c.ModelFile != "" {
		return referenceframe.ParseModelJSONFile(c.ModelFile, c.Model)
	}
	name := c.Model
	if name == "" {
		name = defaultModel
	}
	return referenceframe.ModelFromName(name)
}

// InitialInputs returns the starting configuration of model.
func (c *RobotConfig) InitialInputs(model referenceframe.RobotModel) ([]referenceframe.Input, error) {
	positions := make([]float64, model.VariableCount())
	known := map[string]bool{}
	for i, name := range model.JointNames() {
		known[name] = true
		positions[i] = c.InitialJoints[name]
	}
	for name := range c.InitialJoints {
		if !known[name] {
			return nil, motionplan.NewUnknownJointError(name, model.Name())
		}
	}
	return referenceframe.FloatsToInputs(positions), nil
}

// PlanningTime returns the planner time budget, zero when unset.
func (c *PlanningConfig) PlanningTime() time.Duration {
	d, _ := parseDuration(c.AllowedPlanningTime)
	return d
}

// PlannerName returns the configured planner, the interpolating planner by default.
func (c *PlanningConfig) PlannerName() string {
	if c.Planner == "" {
		return motionplan.InterpolatePlannerName
	}
	return c.Planner
}

// Tolerances returns the goal tolerances with defaults applied.
func (c *GoalConfig) Tolerances() (float64, float64) {
	posTol, orientTol := c.PositionTolerance, c.OrientationTolerance
	if posTol == 0 {
		posTol = defaultPositionTolerance
	}
	if orientTol == 0 {
		orientTol = defaultOrientTolerance
	}
	return posTol, orientTol
}

// Pose returns the configured pose target.
func (c *GoalConfig) Pose() spatialmath.Pose {
	var pt r3.Vector
	if c.Position != nil {
		pt = *c.Position
	}
	if c.Orientation == nil {
		return spatialmath.NewPoseFromPoint(pt)
	}
	return spatialmath.NewPoseFromAxisAngle(pt, c.Orientation)
}

// ParseObstacles converts the configured obstacles into geometries.
func (c *Config) ParseObstacles() ([]spatialmath.Geometry, error) {
	geoms := make([]spatialmath.Geometry, 0, len(c.Obstacles))
	for i := range c.Obstacles {
		g, err := c.Obstacles[i].ParseConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "obstacle %d", i)
		}
		geoms = append(geoms, g)
	}
	return geoms, nil
}

// CoordinatorOptions returns the execution coordinator options set in this section.
func (c *ExecutionConfig) CoordinatorOptions() []execution.Option {
	var opts []execution.Option
	if c.DurationScaling > 0 {
		opts = append(opts, execution.WithDurationScaling(c.DurationScaling))
	}
	if d, err := parseDuration(c.GoalMargin); err == nil && c.GoalMargin != "" {
		opts = append(opts, execution.WithGoalMargin(d))
	}
	if d, err := parseDuration(c.MinTimeout); err == nil && c.MinTimeout != "" {
		opts = append(opts, execution.WithMinTimeout(d))
	}
	return opts
}

// SimBackendConfig converts the sim section. The simulated controller always advances with the
// clock when driven by a pipeline.
func (c *ExecutionConfig) SimBackendConfig() sim.Config {
	tick, _ := parseDuration(c.Sim.TickInterval)
	return sim.Config{
		Controller:   c.Sim.Controller,
		Speed:        c.Sim.Speed,
		SimulateTime: true,
		TickInterval: tick,
	}
}

// VisualizationMaxSizeMB returns the rotation size of the artifact file.
func (c *VisualizationConfig) VisualizationMaxSizeMB() int {
	if c.MaxSizeMB == 0 {
		return defaultVisualizationMB
	}
	return c.MaxSizeMB
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}
