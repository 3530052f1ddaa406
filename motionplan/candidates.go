package motionplan

import (
	"context"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/pickplace/manipulability"
	"go.viam.com/pickplace/referenceframe"
)

// TrajectoryScore summarizes the manipulability index √det(JvJvᵀ) over a trajectory's waypoints.
type TrajectoryScore struct {
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Less orders scores by their worst waypoint, then by their mean.
func (s TrajectoryScore) Less(other TrajectoryScore) bool {
	if s.Min != other.Min {
		return s.Min < other.Min
	}
	return s.Mean < other.Mean
}

// Scorer rates trajectories of one robot model.
type Scorer struct {
	model    referenceframe.RobotModel
	analyzer *manipulability.Analyzer
}

// NewScorer returns a Scorer.
func NewScorer(model referenceframe.RobotModel, analyzer *manipulability.Analyzer) *Scorer {
	return &Scorer{model: model, analyzer: analyzer}
}

// ScoreTrajectory evaluates the manipulability at every waypoint of traj.
func (s *Scorer) ScoreTrajectory(traj *Trajectory) (TrajectoryScore, error) {
	if traj.Empty() {
		return TrajectoryScore{}, errors.New("cannot score an empty trajectory")
	}
	volumes := make(stats.Float64Data, 0, traj.Len())
	for i := 0; i < traj.Len(); i++ {
		jac, err := s.model.JacobianAt(traj.Waypoint(i).Inputs())
		if err != nil {
			return TrajectoryScore{}, err
		}
		measures, err := s.analyzer.Evaluate(jac)
		if err != nil {
			return TrajectoryScore{}, errors.Wrapf(err, "waypoint %d", i)
		}
		volumes = append(volumes, measures.Volume())
	}
	var score TrajectoryScore
	var err error
	if score.Min, err = volumes.Min(); err != nil {
		return TrajectoryScore{}, err
	}
	if score.Mean, err = volumes.Mean(); err != nil {
		return TrajectoryScore{}, err
	}
	if score.Median, err = volumes.Median(); err != nil {
		return TrajectoryScore{}, err
	}
	return score, nil
}

// Candidate is one what-if planning request and its outcome.
type Candidate struct {
	Request *PlanRequest
	Result  *PlanResult
	Score   TrajectoryScore
	// Err is set when the candidate could not be scored.
	Err error
}

// PlanCandidates plans every request concurrently, each on its own coordinator, so the read
// locks are held independently. Successful results are scored when scorer is non-nil. An error
// is returned only if some request could not be planned at all.
func PlanCandidates(
	ctx context.Context,
	scorer *Scorer,
	coordinators []*Coordinator,
	requests []*PlanRequest,
) ([]*Candidate, error) {
	if len(coordinators) != len(requests) {
		return nil, errors.Errorf("got %d coordinators for %d requests", len(coordinators), len(requests))
	}
	candidates := make([]*Candidate, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i := range requests {
		g.Go(func() error {
			result, err := coordinators[i].Plan(gctx, requests[i])
			if err != nil {
				return errors.Wrapf(err, "candidate %d", i)
			}
			cand := &Candidate{Request: requests[i], Result: result}
			if scorer != nil && result.Success() {
				cand.Score, cand.Err = scorer.ScoreTrajectory(result.Trajectory)
			}
			candidates[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// BestCandidate returns the successful, scored candidate with the highest score.
func BestCandidate(candidates []*Candidate) (*Candidate, bool) {
	var best *Candidate
	for _, c := range candidates {
		if c == nil || c.Result == nil || !c.Result.Success() || c.Err != nil {
			continue
		}
		if best == nil || best.Score.Less(c.Score) {
			best = c
		}
	}
	return best, best != nil
}
