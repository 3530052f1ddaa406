package inject

import (
	"context"

	"github.com/golang/geo/r3"

	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/visualization"
)

// Sink is an injected visualization sink.
type Sink struct {
	visualization.Sink
	PublishTrajectoryFunc      func(ctx context.Context, traj *motionplan.Trajectory, label string) error
	PublishGoalStateFunc       func(ctx context.Context, jointNames []string, jointValues []float64) error
	PublishObstacleMarkersFunc func(ctx context.Context, positions []r3.Vector) error
}

// PublishTrajectory calls the injected PublishTrajectory or the real version.
func (s *Sink) PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) error {
	if s.PublishTrajectoryFunc == nil {
		return s.Sink.PublishTrajectory(ctx, traj, label)
	}
	return s.PublishTrajectoryFunc(ctx, traj, label)
}

// PublishGoalState calls the injected PublishGoalState or the real version.
func (s *Sink) PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) error {
	if s.PublishGoalStateFunc == nil {
		return s.Sink.PublishGoalState(ctx, jointNames, jointValues)
	}
	return s.PublishGoalStateFunc(ctx, jointNames, jointValues)
}

// PublishObstacleMarkers calls the injected PublishObstacleMarkers or the real version.
func (s *Sink) PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) error {
	if s.PublishObstacleMarkersFunc == nil {
		return s.Sink.PublishObstacleMarkers(ctx, positions)
	}
	return s.PublishObstacleMarkersFunc(ctx, positions)
}
