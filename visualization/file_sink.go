package visualization

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/pickplace/motionplan"
)

// record kinds written by FileSink.
const (
	TrajectoryKind = "trajectory"
	GoalStateKind  = "goal_state"
	ObstaclesKind  = "obstacle_markers"
)

// Record is one line of a FileSink's output.
type Record struct {
	Time        time.Time              `json:"time"`
	Kind        string                 `json:"kind"`
	Label       string                 `json:"label,omitempty"`
	Trajectory  *motionplan.Trajectory `json:"trajectory,omitempty"`
	JointNames  []string               `json:"joint_names,omitempty"`
	JointValues []float64              `json:"joint_values,omitempty"`
	Positions   []r3.Vector            `json:"positions,omitempty"`
}

// FileSink appends artifacts as JSON lines to a size-rotated file, for replay in an external viewer.
type FileSink struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	closed bool
}

// NewFileSink writes to filename, rotating after maxSizeMB megabytes.
func NewFileSink(filename string, maxSizeMB int) *FileSink {
	return &FileSink{out: &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
	}}
}

func (s *FileSink) write(rec Record) error {
	rec.Time = time.Now().UTC()
	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "error encoding %s record", rec.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("file sink is closed")
	}
	_, err = s.out.Write(append(line, '\n'))
	return err
}

// PublishTrajectory writes a trajectory record.
func (s *FileSink) PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) error {
	if traj.Empty() {
		return errors.Errorf("trajectory %q is empty", label)
	}
	return s.write(Record{Kind: TrajectoryKind, Label: label, Trajectory: traj})
}

// PublishGoalState writes a goal state record.
func (s *FileSink) PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) error {
	if len(jointNames) != len(jointValues) {
		return errors.Errorf("goal state has %d names and %d values", len(jointNames), len(jointValues))
	}
	return s.write(Record{Kind: GoalStateKind, JointNames: jointNames, JointValues: jointValues})
}

// PublishObstacleMarkers writes an obstacle marker record.
func (s *FileSink) PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) error {
	return s.write(Record{Kind: ObstaclesKind, Positions: positions})
}

// Close closes the file. Later publishes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Close()
}
