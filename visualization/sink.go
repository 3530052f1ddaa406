// Package visualization publishes planning artifacts (trajectories, goal states and obstacle
// markers) for display. Publishing is fire-and-forget: SafeSink logs failures and never returns
// them to the planning or execution path.
package visualization

import (
	"context"

	"github.com/golang/geo/r3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/motionplan"
)

// Labels used by the pick and place pipeline.
const (
	PlannedPathLabel = "planned_path"
	RawPathLabel     = "raw_path"
)

// Sink receives artifacts for display.
type Sink interface {
	PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) error
	PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) error
	PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) error
}

// SafeSink wraps a Sink so that publishing failures are logged and counted but not returned.
type SafeSink struct {
	sink     Sink
	logger   logging.Logger
	failures atomic.Int64
}

// NewSafeSink wraps sink.
func NewSafeSink(sink Sink, logger logging.Logger) *SafeSink {
	return &SafeSink{sink: sink, logger: logger}
}

func (s *SafeSink) report(what string, err error) {
	if err == nil {
		return
	}
	s.failures.Inc()
	s.logger.Warnw("visualization publish failed", "artifact", what, "error", err)
}

// PublishTrajectory publishes traj under label.
func (s *SafeSink) PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) {
	s.report("trajectory "+label, s.sink.PublishTrajectory(ctx, traj, label))
}

// PublishGoalState publishes a goal joint configuration.
func (s *SafeSink) PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) {
	s.report("goal state", s.sink.PublishGoalState(ctx, jointNames, jointValues))
}

// PublishObstacleMarkers publishes obstacle positions.
func (s *SafeSink) PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) {
	s.report("obstacle markers", s.sink.PublishObstacleMarkers(ctx, positions))
}

// Failures returns how many publishes failed.
func (s *SafeSink) Failures() int64 {
	return s.failures.Load()
}

// MultiSink publishes to every sink, combining their errors.
type MultiSink []Sink

// PublishTrajectory publishes to every sink.
func (ms MultiSink) PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) error {
	var errs error
	for _, s := range ms {
		errs = multierr.Append(errs, s.PublishTrajectory(ctx, traj, label))
	}
	return errs
}

// PublishGoalState publishes to every sink.
func (ms MultiSink) PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) error {
	var errs error
	for _, s := range ms {
		errs = multierr.Append(errs, s.PublishGoalState(ctx, jointNames, jointValues))
	}
	return errs
}

// PublishObstacleMarkers publishes to every sink.
func (ms MultiSink) PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) error {
	var errs error
	for _, s := range ms {
		errs = multierr.Append(errs, s.PublishObstacleMarkers(ctx, positions))
	}
	return errs
}
