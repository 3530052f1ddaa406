// Package referenceframe defines the kinematic robot model consumed by planning: ordered joint
// names, joint limits, forward kinematics and Jacobians.
package referenceframe

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Input wraps the input to a joint. Revolute inputs are in radians.
type Input struct {
	Value float64
}

// FloatsToInputs wraps a slice of floats in Inputs.
func FloatsToInputs(values []float64) []Input {
	inputs := make([]Input, len(values))
	for i, f := range values {
		inputs[i] = Input{f}
	}
	return inputs
}

// InputsToFloats unwraps Inputs to raw floats.
func InputsToFloats(inputs []Input) []float64 {
	values := make([]float64, len(inputs))
	for i, f := range inputs {
		values[i] = f.Value
	}
	return values
}

// InputsL2Distance returns the L2 distance between two equal-length input slices.
func InputsL2Distance(from, to []Input) float64 {
	return floats.Distance(InputsToFloats(from), InputsToFloats(to), 2)
}

// InterpolateInputs returns the inputs a fraction `by` of the way from `from` to `to`.
func InterpolateInputs(from, to []Input, by float64) []Input {
	ret := make([]Input, len(from))
	for i, j1 := range from {
		ret[i] = Input{j1.Value + (to[i].Value-j1.Value)*by}
	}
	return ret
}

// JointState is the observed state of one named joint.
type JointState struct {
	Name     string  `json:"name"`
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Effort   float64 `json:"effort"`
}

// InputsFromJointStates orders the named joint positions to match the model's joint order.
// Joints in states that the model does not know are ignored.
func InputsFromJointStates(model RobotModel, states []JointState) ([]Input, error) {
	byName := make(map[string]float64, len(states))
	for _, s := range states {
		byName[s.Name] = s.Position
	}
	names := model.JointNames()
	inputs := make([]Input, len(names))
	for i, name := range names {
		pos, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("joint %q of model %q missing from joint states", name, model.Name())
		}
		inputs[i] = Input{pos}
	}
	return inputs, nil
}

// JointStatesFromInputs names the inputs with the model's joint names. Velocities and efforts are zero.
func JointStatesFromInputs(model RobotModel, inputs []Input) ([]JointState, error) {
	names := model.JointNames()
	if len(names) != len(inputs) {
		return nil, NewIncorrectDoFError(len(inputs), len(names))
	}
	states := make([]JointState, len(names))
	for i, name := range names {
		states[i] = JointState{Name: name, Position: inputs[i].Value}
	}
	return states, nil
}
