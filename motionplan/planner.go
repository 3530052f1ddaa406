package motionplan

import (
	"context"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/manipulability"
	"go.viam.com/pickplace/referenceframe"
	"go.viam.com/pickplace/worldmodel"
)

// PlannerResponse is what a Planner reports for one request. Trajectory is only read when Code
// is Success.
type PlannerResponse struct {
	Code       StatusCode
	Reason     string
	Trajectory *Trajectory
}

// Planner turns a scene snapshot and a request into a trajectory. Implementations may retry
// internally but must honor ctx, which carries the request's planning time budget. The snapshot
// is only valid for the duration of the call.
type Planner interface {
	GeneratePlan(ctx context.Context, snapshot *worldmodel.Snapshot, req *PlanRequest) (*PlannerResponse, error)
}

// PlannerConstructor builds a named planner variant from its configuration attributes.
type PlannerConstructor func(
	model referenceframe.KinematicModel,
	analyzer *manipulability.Analyzer,
	attrs map[string]interface{},
	logger logging.Logger,
) (Planner, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]PlannerConstructor{}
)

// RegisterPlanner registers a planner constructor under name. It panics on duplicate names.
func RegisterPlanner(name string, constructor PlannerConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(errors.Errorf("planner %q already registered", name))
	}
	registry[name] = constructor
}

// RegisteredPlanners returns the registered planner names in sorted order.
func RegisteredPlanners() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPlanner constructs the planner registered under name.
func NewPlanner(
	name string,
	model referenceframe.KinematicModel,
	analyzer *manipulability.Analyzer,
	attrs map[string]interface{},
	logger logging.Logger,
) (Planner, error) {
	registryMu.RLock()
	constructor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown planner %q, registered planners: %v", name, RegisteredPlanners())
	}
	return constructor(model, analyzer, attrs, logger.Sublogger(name))
}

// decodeAttributes decodes planner attributes into cfg using its json tags.
func decodeAttributes(attrs map[string]interface{}, cfg interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating planner attribute decoder")
	}
	if err := decoder.Decode(attrs); err != nil {
		return errors.Wrap(err, "error decoding planner attributes")
	}
	return nil
}
