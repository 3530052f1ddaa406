package inject

import (
	"context"

	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/worldmodel"
)

// Planner is an injected planner.
type Planner struct {
	motionplan.Planner
	GeneratePlanFunc func(ctx context.Context, snapshot *worldmodel.Snapshot, req *motionplan.PlanRequest) (
		*motionplan.PlannerResponse, error)
}

// GeneratePlan calls the injected GeneratePlan or the real version.
func (p *Planner) GeneratePlan(
	ctx context.Context,
	snapshot *worldmodel.Snapshot,
	req *motionplan.PlanRequest,
) (*motionplan.PlannerResponse, error) {
	if p.GeneratePlanFunc == nil {
		return p.Planner.GeneratePlan(ctx, snapshot, req)
	}
	return p.GeneratePlanFunc(ctx, snapshot, req)
}
