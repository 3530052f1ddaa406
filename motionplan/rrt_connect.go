package motionplan

import (
	"context"
	"math"
	"math/rand"

	"go.opencensus.io/trace"

	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/worldmodel"
)

const (
	defaultSearchIterations = 2000

	// largest joint-space distance a tree grows in one extension, radians.
	defaultSearchStep = 0.25

	// shortcut attempts made on a found path.
	defaultSmoothIterations = 100
)

type node struct {
	q []referenceframe.Input
}

// rrtMap maps each node of a tree to its parent. Roots map to nil.
type rrtMap map[*node]*node

// search grows one tree from each end until they meet. It returns nil if the trees have not met
// after the configured iterations. The returned path starts at from and ends at to.
func (p *ikPlanner) search(
	ctx context.Context,
	snapshot *worldmodel.Snapshot,
	from, to []referenceframe.Input,
	randSeed *rand.Rand,
) ([][]referenceframe.Input, error) {
	ctx, span := trace.StartSpan(ctx, "motionplan::ikPlanner::search")
	defer span.End()

	startMap := rrtMap{&node{q: from}: nil}
	goalMap := rrtMap{&node{q: to}: nil}

	// the first target is halfway between the ends
	target := referenceframe.InterpolateInputs(from, to, 0.5)
	map1, map2 := startMap, goalMap

	for i := 0; i < p.cfg.SearchIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if added := p.extend(snapshot, map1, target); added != nil {
			if reached := p.connectTree(snapshot, map2, added.q); reached != nil {
				p.logger.CDebugf(ctx, "trees met after %d iterations with %d nodes", i+1, len(map1)+len(map2))
				if _, ok := startMap[added]; ok {
					return extractPath(startMap, goalMap, added, reached), nil
				}
				return extractPath(startMap, goalMap, reached, added), nil
			}
		}
		target = referenceframe.RandomInputs(p.model, randSeed)
		map1, map2 = map2, map1
	}
	return nil, nil
}

// extend grows tree one step from its nearest node toward target. It returns the new node, or nil
// if the step collides.
func (p *ikPlanner) extend(snapshot *worldmodel.Snapshot, tree rrtMap, target []referenceframe.Input) *node {
	nearest := nearestNeighbor(tree, target)
	q := steer(nearest.q, target, p.cfg.SearchStep)
	if !p.segmentFree(snapshot, nearest.q, q) {
		return nil
	}
	added := &node{q: q}
	tree[added] = nearest
	return added
}

// connectTree extends tree toward target until it reaches it or is blocked.
func (p *ikPlanner) connectTree(snapshot *worldmodel.Snapshot, tree rrtMap, target []referenceframe.Input) *node {
	maxSteps := int(math.Ceil(2*math.Pi*math.Sqrt(float64(len(target)))/p.cfg.SearchStep)) + 1
	for i := 0; i < maxSteps; i++ {
		added := p.extend(snapshot, tree, target)
		if added == nil {
			return nil
		}
		if referenceframe.InputsL2Distance(added.q, target) < 1e-9 {
			return added
		}
	}
	return nil
}

func (p *ikPlanner) segmentFree(snapshot *worldmodel.Snapshot, from, to []referenceframe.Input) bool {
	steps := p.steps(from, to)
	for s := 1; s <= steps; s++ {
		if _, hit := p.collides(snapshot, referenceframe.InterpolateInputs(from, to, float64(s)/float64(steps))); hit {
			return false
		}
	}
	return true
}

// smooth replaces random stretches of path with straight segments where they are free.
func (p *ikPlanner) smooth(snapshot *worldmodel.Snapshot, path [][]referenceframe.Input, randSeed *rand.Rand) [][]referenceframe.Input {
	for k := 0; k < p.cfg.SmoothIterations && len(path) > 2; k++ {
		i := randSeed.Intn(len(path) - 2)
		j := i + 2 + randSeed.Intn(len(path)-i-2)
		if p.segmentFree(snapshot, path[i], path[j]) {
			path = append(path[:i+1:i+1], path[j:]...)
		}
	}
	return path
}

func nearestNeighbor(tree rrtMap, target []referenceframe.Input) *node {
	var best *node
	bestDist := math.Inf(1)
	for n := range tree {
		if d := referenceframe.InputsL2Distance(n.q, target); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// steer returns the configuration at most step away from from on the way to to.
func steer(from, to []referenceframe.Input, step float64) []referenceframe.Input {
	dist := referenceframe.InputsL2Distance(from, to)
	if dist <= step {
		return append([]referenceframe.Input(nil), to...)
	}
	return referenceframe.InterpolateInputs(from, to, step/dist)
}

// extractPath joins the branch from the start root to startNode with the branch from goalNode to the
// goal root. The two nodes hold the same configuration.
func extractPath(startMap, goalMap rrtMap, startNode, goalNode *node) [][]referenceframe.Input {
	var path [][]referenceframe.Input
	for n := startNode; n != nil; n = startMap[n] {
		path = append(path, n.q)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	for n := goalMap[goalNode]; n != nil; n = goalMap[n] {
		path = append(path, n.q)
	}
	return path
}
