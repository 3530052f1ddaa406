package referenceframe

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPandaForwardKinematics(t *testing.T) {
	m, err := ModelFromName("panda")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.VariableCount(), test.ShouldEqual, 7)
	test.That(t, m.JointNames()[0], test.ShouldEqual, "panda_joint1")
	test.That(t, m.EndEffector(), test.ShouldEqual, "panda_link8")

	zero := make([]Input, 7)
	pose, err := m.Transform(zero)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 0)
	test.That(t, pose.Point().Z, test.ShouldAlmostEqual, 1.14)

	// Shoulder pitched forward by 90 degrees lays the arm out along +X.
	bent := make([]Input, 7)
	bent[1] = Input{math.Pi / 2}
	pose, err = m.Transform(bent)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 0.807)
	test.That(t, pose.Point().Z, test.ShouldAlmostEqual, 0.333)

	_, err = m.Transform(zero[:3])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestJacobianMatchesFiniteDifference(t *testing.T) {
	m, err := ModelFromName("panda")
	test.That(t, err, test.ShouldBeNil)

	//nolint:gosec
	inputs := RandomInputs(m, rand.New(rand.NewSource(3)))
	jac, err := m.JacobianAt(inputs)
	test.That(t, err, test.ShouldBeNil)
	rows, cols := jac.Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 7)

	const h = 1e-6
	base, err := m.Transform(inputs)
	test.That(t, err, test.ShouldBeNil)
	for i := range inputs {
		moved := append([]Input{}, inputs...)
		moved[i].Value += h
		p, err := m.Transform(moved)
		test.That(t, err, test.ShouldBeNil)
		diff := p.Point().Sub(base.Point()).Mul(1 / h)
		test.That(t, jac.At(0, i), test.ShouldAlmostEqual, diff.X, 1e-4)
		test.That(t, jac.At(1, i), test.ShouldAlmostEqual, diff.Y, 1e-4)
		test.That(t, jac.At(2, i), test.ShouldAlmostEqual, diff.Z, 1e-4)
	}

	full, err := m.GeometricJacobian(inputs)
	test.That(t, err, test.ShouldBeNil)
	rows, _ = full.Dims()
	test.That(t, rows, test.ShouldEqual, 6)
	// first joint always rotates about world Z
	test.That(t, full.At(5, 0), test.ShouldAlmostEqual, 1)
}

func TestJointStates(t *testing.T) {
	m, err := ModelFromName("panda")
	test.That(t, err, test.ShouldBeNil)
	inputs := FloatsToInputs([]float64{0.1, 0.2, 0.3, -0.4, 0.5, 0.6, 0.7})
	states, err := JointStatesFromInputs(m, inputs)
	test.That(t, err, test.ShouldBeNil)

	// reversed order with an extra finger joint still maps back by name
	reversed := []JointState{{Name: "panda_finger_joint1", Position: 0.04}}
	for i := len(states) - 1; i >= 0; i-- {
		reversed = append(reversed, states[i])
	}
	back, err := InputsFromJointStates(m, reversed)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, inputs)

	_, err = InputsFromJointStates(m, reversed[:3])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseConfig(t *testing.T) {
	joint := func(id, parent string) JointConfig {
		return JointConfig{
			ID: id, Parent: parent, Axis: r3.Vector{Z: 1}, Translation: r3.Vector{Z: 0.1},
			Min: -90, Max: 90, MaxVelocity: 90, MaxAcceleration: 180,
		}
	}

	t.Run("out of order joints are sorted", func(t *testing.T) {
		cfg := &ModelConfigJSON{Name: "two", Joints: []JointConfig{joint("b", "a"), joint("a", "")}}
		m, err := cfg.ParseConfig("")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m.JointNames(), test.ShouldResemble, []string{"a", "b"})
		test.That(t, m.DoF()[0].Max, test.ShouldAlmostEqual, math.Pi/2)
		test.That(t, m.EndEffector(), test.ShouldEqual, "b_tip")
	})

	t.Run("branching chain", func(t *testing.T) {
		cfg := &ModelConfigJSON{Joints: []JointConfig{joint("a", World), joint("b", "a"), joint("c", "a")}}
		_, err := cfg.ParseConfig("branch")
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("disconnected joint", func(t *testing.T) {
		cfg := &ModelConfigJSON{Joints: []JointConfig{joint("a", World), joint("b", "nowhere")}}
		_, err := cfg.ParseConfig("gap")
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("reserved word", func(t *testing.T) {
		cfg := &ModelConfigJSON{Joints: []JointConfig{joint(World, "")}}
		_, err := cfg.ParseConfig("bad")
		test.That(t, err, test.ShouldNotBeNil)
	})

	_, err := UnmarshalModelJSON(nil, "")
	test.That(t, err, test.ShouldEqual, ErrNoModelInformation)
	_, err = ModelFromName("ur5")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClampInputs(t *testing.T) {
	m, err := ModelFromName("panda")
	test.That(t, err, test.ShouldBeNil)
	clamped := ClampInputs(m, FloatsToInputs([]float64{10, -10, 0, 0, 0, 0, 0}))
	test.That(t, clamped[0].Value, test.ShouldAlmostEqual, m.DoF()[0].Max)
	test.That(t, clamped[1].Value, test.ShouldAlmostEqual, m.DoF()[1].Min)

	var km KinematicModel = m
	test.That(t, km.AreInputsValid(clamped), test.ShouldBeTrue)
	test.That(t, km.AreInputsValid(FloatsToInputs([]float64{10, 0, 0, 0, 0, 0, 0})), test.ShouldBeFalse)
}
