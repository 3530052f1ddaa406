package referenceframe

import (
	"embed"
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pickplace/utils"
)

//go:embed models/*.json
var builtinModels embed.FS

// ModelConfigJSON represents all supported fields in a kinematics JSON file.
type ModelConfigJSON struct {
	Name        string            `json:"name"`
	Joints      []JointConfig     `json:"joints"`
	EndEffector EndEffectorConfig `json:"end_effector"`
}

// JointConfig is a revolute joint. Translation is the offset from the parent joint frame, in
// meters. Limits are in degrees.
type JointConfig struct {
	ID          string    `json:"id"`
	Parent      string    `json:"parent"`
	Axis        r3.Vector `json:"axis"`
	Translation r3.Vector `json:"translation"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	// MaxVelocity is in degrees per second and MaxAcceleration in degrees per second squared.
	MaxVelocity     float64 `json:"max_vel_degs_per_sec"`
	MaxAcceleration float64 `json:"max_acc_degs_per_sec_per_sec"`
}

// EndEffectorConfig is the tip link of the chain, offset from the last joint frame.
type EndEffectorConfig struct {
	ID          string    `json:"id"`
	Translation r3.Vector `json:"translation"`
}

// UnmarshalModelJSON will parse the given JSON data into a kinematics model. modelName sets the
// name of the model, will use the name from the JSON if string is empty.
func UnmarshalModelJSON(jsonData []byte, modelName string) (*SerialModel, error) {
	// empty data probably means that the arm has no model information
	if len(jsonData) == 0 {
		return nil, ErrNoModelInformation
	}

	m := &ModelConfigJSON{}
	if err := json.Unmarshal(jsonData, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}

	return m.ParseConfig(modelName)
}

// ParseModelJSONFile will read a given file and then parse the contained JSON data.
func ParseModelJSONFile(filename, modelName string) (*SerialModel, error) {
	//nolint:gosec
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read json file")
	}
	return UnmarshalModelJSON(jsonData, modelName)
}

// ModelFromName returns one of the built-in models, e.g. "panda".
func ModelFromName(name string) (*SerialModel, error) {
	jsonData, err := builtinModels.ReadFile("models/" + name + ".json")
	if err != nil {
		return nil, NewUnknownModelError(name)
	}
	return UnmarshalModelJSON(jsonData, name)
}

// ParseConfig converts the ModelConfigJSON struct into a SerialModel with the name modelName.
func (cfg *ModelConfigJSON) ParseConfig(modelName string) (*SerialModel, error) {
	if modelName == "" {
		modelName = cfg.Name
	}
	if len(cfg.Joints) == 0 {
		return nil, errors.Errorf("model %q has no joints", modelName)
	}

	ordered, err := sortJoints(cfg.Joints)
	if err != nil {
		return nil, err
	}

	model := &SerialModel{
		name:        modelName,
		eeName:      cfg.EndEffector.ID,
		eeOffset:    cfg.EndEffector.Translation,
		modelConfig: cfg,
	}
	if model.eeName == "" {
		model.eeName = ordered[len(ordered)-1].ID + "_tip"
	}
	for _, jc := range ordered {
		axisNorm := jc.Axis.Norm()
		if axisNorm == 0 {
			return nil, errors.Errorf("joint %q has a zero axis", jc.ID)
		}
		if jc.Min > jc.Max {
			return nil, errors.Errorf("joint %q has min %.2f greater than max %.2f", jc.ID, jc.Min, jc.Max)
		}
		if jc.MaxVelocity <= 0 || jc.MaxAcceleration <= 0 {
			return nil, errors.Errorf("joint %q must have positive velocity and acceleration limits", jc.ID)
		}
		model.joints = append(model.joints, revoluteJoint{
			name:        jc.ID,
			axis:        jc.Axis.Mul(1 / axisNorm),
			translation: jc.Translation,
			limit:       Limit{Min: utils.DegToRad(jc.Min), Max: utils.DegToRad(jc.Max)},
			maxVel:      utils.DegToRad(jc.MaxVelocity),
			maxAcc:      utils.DegToRad(jc.MaxAcceleration),
		})
	}

	return model, nil
}

func (cfg *ModelConfigJSON) marshal() ([]byte, error) {
	return json.Marshal(cfg)
}

// sortJoints orders joints from the world outwards. The chain must not branch.
func sortJoints(joints []JointConfig) ([]JointConfig, error) {
	children := map[string]JointConfig{}
	for _, j := range joints {
		if j.ID == World {
			return nil, NewReservedWordError("joint", World)
		}
		parent := j.Parent
		if parent == "" {
			parent = World
		}
		if other, ok := children[parent]; ok {
			return nil, errors.Errorf("joints %q and %q share parent %q, only serial chains are supported", other.ID, j.ID, parent)
		}
		children[parent] = j
	}

	ordered := make([]JointConfig, 0, len(joints))
	parent := World
	for {
		child, ok := children[parent]
		if !ok {
			break
		}
		ordered = append(ordered, child)
		parent = child.ID
	}
	if len(ordered) != len(joints) {
		return nil, errors.Errorf("%d joints are not connected to %q", len(joints)-len(ordered), World)
	}
	return ordered, nil
}
