package visualization

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/motionplan"
)

// LogSink logs a summary of every artifact.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink returns a LogSink.
func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// PublishTrajectory logs the trajectory length and duration.
func (s *LogSink) PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) error {
	if traj.Empty() {
		return errors.Errorf("trajectory %q is empty", label)
	}
	s.logger.CInfof(ctx, "%s: %d waypoints over %v", label, traj.Len(), traj.Duration())
	s.logger.CDebugw(ctx, "trajectory endpoints", "label", label,
		"start", traj.Waypoint(0).Positions, "end", traj.Waypoint(traj.Len()-1).Positions)
	return nil
}

// PublishGoalState logs the goal joint values.
func (s *LogSink) PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) error {
	if len(jointNames) != len(jointValues) {
		return errors.Errorf("goal state has %d names and %d values", len(jointNames), len(jointValues))
	}
	kv := make([]interface{}, 0, 2*len(jointNames))
	for i, name := range jointNames {
		kv = append(kv, name, jointValues[i])
	}
	s.logger.Infow("goal state", kv...)
	return nil
}

// PublishObstacleMarkers logs the obstacle positions.
func (s *LogSink) PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) error {
	s.logger.CInfof(ctx, "%d obstacle markers: %v", len(positions), positions)
	return nil
}
