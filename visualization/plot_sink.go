package visualization

import (
	"context"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/pickplace/motionplan"
)

// PlotSink renders each published trajectory as a joint position over time chart, saved as
// <dir>/<label>.png. Goal states and markers are not plotted.
type PlotSink struct {
	dir string
}

// NewPlotSink writes charts to dir, creating it on first use.
func NewPlotSink(dir string) *PlotSink {
	return &PlotSink{dir: dir}
}

// Path returns the file a trajectory published under label is written to.
func (s *PlotSink) Path(label string) string {
	return filepath.Join(s.dir, label+".png")
}

// PublishTrajectory plots every joint of traj. An untimed trajectory is plotted against
// waypoint index.
func (s *PlotSink) PublishTrajectory(ctx context.Context, traj *motionplan.Trajectory, label string) error {
	if traj.Empty() {
		return errors.Errorf("cannot plot empty trajectory %q", label)
	}
	timed := traj.Duration() > 0

	p := plot.New()
	p.Title.Text = label
	p.Y.Label.Text = "position (rad)"
	p.X.Label.Text = "waypoint"
	if timed {
		p.X.Label.Text = "time (s)"
	}

	waypoints := traj.Waypoints()
	for j, name := range traj.JointNames() {
		pts := make(plotter.XYs, len(waypoints))
		for i, w := range waypoints {
			pts[i].X = float64(i)
			if timed {
				pts[i].X = w.TimeFromStart.Seconds()
			}
			pts[i].Y = w.Positions[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "joint %s", name)
		}
		line.Color = plotutil.Color(j)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, s.Path(label))
}

// PublishGoalState is a no-op.
func (s *PlotSink) PublishGoalState(ctx context.Context, jointNames []string, jointValues []float64) error {
	return nil
}

// PublishObstacleMarkers is a no-op.
func (s *PlotSink) PublishObstacleMarkers(ctx context.Context, positions []r3.Vector) error {
	return nil
}
