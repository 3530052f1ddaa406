package motionplan

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/utils"
)

// Waypoint is one timestamped joint-space point. Velocities, Accelerations and Efforts are either
// empty or have one entry per joint.
type Waypoint struct {
	Positions     []float64     `json:"positions"`
	Velocities    []float64     `json:"velocities,omitempty"`
	Accelerations []float64     `json:"accelerations,omitempty"`
	Efforts       []float64     `json:"effort,omitempty"`
	TimeFromStart time.Duration `json:"time_from_start"`
}

func (w Waypoint) copy() Waypoint {
	return Waypoint{
		Positions:     append([]float64(nil), w.Positions...),
		Velocities:    append([]float64(nil), w.Velocities...),
		Accelerations: append([]float64(nil), w.Accelerations...),
		Efforts:       append([]float64(nil), w.Efforts...),
		TimeFromStart: w.TimeFromStart,
	}
}

// Inputs returns the positions as model inputs.
func (w Waypoint) Inputs() []referenceframe.Input {
	return referenceframe.FloatsToInputs(w.Positions)
}

// Trajectory is an immutable ordered sequence of waypoints over named joints. Accessors return
// copies, so a Trajectory can be shared between visualization and execution.
type Trajectory struct {
	jointNames []string
	waypoints  []Waypoint
}

// NewTrajectory copies and validates the waypoints.
func NewTrajectory(jointNames []string, waypoints []Waypoint) (*Trajectory, error) {
	if len(jointNames) == 0 {
		return nil, errors.New("trajectory requires joint names")
	}
	traj := &Trajectory{jointNames: append([]string(nil), jointNames...)}
	var last time.Duration
	for i, w := range waypoints {
		n := len(jointNames)
		if len(w.Positions) != n {
			return nil, errors.Errorf("waypoint %d has %d positions, expected %d", i, len(w.Positions), n)
		}
		for name, vals := range map[string][]float64{
			"velocities": w.Velocities, "accelerations": w.Accelerations, "efforts": w.Efforts,
		} {
			if len(vals) != 0 && len(vals) != n {
				return nil, errors.Errorf("waypoint %d has %d %s, expected 0 or %d", i, len(vals), name, n)
			}
		}
		if !utils.IsFinite(w.Positions...) {
			return nil, errors.Errorf("waypoint %d has non-finite positions", i)
		}
		if w.TimeFromStart < last {
			return nil, errors.Errorf("waypoint %d time %v is before previous waypoint %v", i, w.TimeFromStart, last)
		}
		last = w.TimeFromStart
		traj.waypoints = append(traj.waypoints, w.copy())
	}
	return traj, nil
}

// TrajectoryFromInputs builds an untimed trajectory from model configurations.
func TrajectoryFromInputs(jointNames []string, configs [][]referenceframe.Input) (*Trajectory, error) {
	waypoints := make([]Waypoint, 0, len(configs))
	for _, c := range configs {
		waypoints = append(waypoints, Waypoint{Positions: referenceframe.InputsToFloats(c)})
	}
	return NewTrajectory(jointNames, waypoints)
}

// JointNames returns the joint order of every waypoint.
func (t *Trajectory) JointNames() []string {
	return append([]string(nil), t.jointNames...)
}

// Len returns the number of waypoints.
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.waypoints)
}

// Empty reports whether the trajectory has no waypoints.
func (t *Trajectory) Empty() bool {
	return t.Len() == 0
}

// Waypoint returns a copy of the i'th waypoint.
func (t *Trajectory) Waypoint(i int) Waypoint {
	return t.waypoints[i].copy()
}

// Waypoints returns copies of every waypoint.
func (t *Trajectory) Waypoints() []Waypoint {
	out := make([]Waypoint, len(t.waypoints))
	for i, w := range t.waypoints {
		out[i] = w.copy()
	}
	return out
}

// Duration returns the time of the last waypoint.
func (t *Trajectory) Duration() time.Duration {
	if t.Empty() {
		return 0
	}
	return t.waypoints[len(t.waypoints)-1].TimeFromStart
}

// Start returns the first configuration.
func (t *Trajectory) Start() []referenceframe.Input {
	return t.waypoints[0].Inputs()
}

// End returns the last configuration.
func (t *Trajectory) End() []referenceframe.Input {
	return t.waypoints[len(t.waypoints)-1].Inputs()
}

type trajectoryJSON struct {
	JointNames []string   `json:"joint_names"`
	Points     []Waypoint `json:"points"`
}

// MarshalJSON encodes the trajectory in the joint_names/points layout of a joint trajectory message.
func (t *Trajectory) MarshalJSON() ([]byte, error) {
	return json.Marshal(trajectoryJSON{JointNames: t.jointNames, Points: t.waypoints})
}

// UnmarshalJSON decodes and validates a trajectory.
func (t *Trajectory) UnmarshalJSON(data []byte) error {
	var raw trajectoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := NewTrajectory(raw.JointNames, raw.Points)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
