package manipulability

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/pickplace/referenceframe"
)

func TestEvaluateReconstructs(t *testing.T) {
	jac := mat.NewDense(3, 4, []float64{
		0.3, -0.1, 0.0, 0.2,
		0.1, 0.4, 0.2, -0.1,
		0.0, 0.2, 0.5, 0.1,
	})
	measures, err := NewAnalyzer(Config{}).Evaluate(jac)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(measures.EigenValues), test.ShouldEqual, 3)

	var m mat.Dense
	m.Mul(jac, jac.T())

	// V·diag(λ)·Vᵀ
	var recon mat.Dense
	recon.Mul(measures.EigenVectors, mat.NewDiagDense(3, measures.EigenValues))
	recon.Mul(&recon, measures.EigenVectors.T())
	test.That(t, mat.EqualApprox(&recon, &m, 1e-9), test.ShouldBeTrue)

	for i := 0; i < 3; i++ {
		test.That(t, measures.Vector(i).Norm(), test.ShouldAlmostEqual, 1, 1e-9)
		if i > 0 {
			test.That(t, measures.EigenValues[i], test.ShouldBeGreaterThanOrEqualTo, measures.EigenValues[i-1])
		}
		// M·v = λ·v
		var mv mat.VecDense
		mv.MulVec(&m, measures.EigenVectors.ColView(i))
		var lv mat.VecDense
		lv.ScaleVec(measures.EigenValues[i], measures.EigenVectors.ColView(i))
		test.That(t, mat.EqualApprox(&mv, &lv, 1e-9), test.ShouldBeTrue)
	}
	test.That(t, measures.Pass, test.ShouldBeTrue)
	test.That(t, measures.Isotropy(), test.ShouldBeGreaterThan, 0)
	test.That(t, measures.Volume(), test.ShouldAlmostEqual, math.Sqrt(mat.Det(&m)), 1e-9)
}

func TestEvaluateRankDeficient(t *testing.T) {
	// every column is a multiple of the same direction
	jac := mat.NewDense(3, 3, []float64{
		1, 2, -1,
		0, 0, 0,
		0, 0, 0,
	})
	measures, err := NewAnalyzer(Config{}).Evaluate(jac)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, measures.EigenValues[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, measures.EigenValues[1], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, measures.EigenValues[2], test.ShouldAlmostEqual, 6, 1e-9)
	test.That(t, measures.Pass, test.ShouldBeFalse)
	test.That(t, math.Abs(measures.Vector(2).X), test.ShouldAlmostEqual, 1, 1e-9)

	measures, err = NewAnalyzer(Config{Mode: Isotropy, Threshold: lo.ToPtr(0.1)}).Evaluate(mat.NewDense(3, 2, nil))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, measures.Isotropy(), test.ShouldEqual, 0)
	test.That(t, measures.Pass, test.ShouldBeFalse)
}

func TestEvaluateModes(t *testing.T) {
	jac := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 0.5, 0,
		0, 0, 0.1,
	})
	t.Run("min eigenvalue", func(t *testing.T) {
		measures, err := NewAnalyzer(Config{Threshold: lo.ToPtr(0.005)}).Evaluate(jac)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, measures.EigenValues[0], test.ShouldAlmostEqual, 0.01, 1e-12)
		test.That(t, measures.EigenValues[1], test.ShouldAlmostEqual, 0.25, 1e-12)
		test.That(t, measures.EigenValues[2], test.ShouldAlmostEqual, 1, 1e-12)
		test.That(t, measures.Pass, test.ShouldBeTrue)

		measures, err = NewAnalyzer(Config{Threshold: lo.ToPtr(0.02)}).Evaluate(jac)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, measures.Pass, test.ShouldBeFalse)
	})
	t.Run("isotropy", func(t *testing.T) {
		measures, err := NewAnalyzer(Config{Mode: Isotropy, Threshold: lo.ToPtr(0.005)}).Evaluate(jac)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, measures.Isotropy(), test.ShouldAlmostEqual, 0.01, 1e-12)
		test.That(t, measures.Pass, test.ShouldBeTrue)

		measures, err = NewAnalyzer(Config{Mode: Isotropy, Threshold: lo.ToPtr(0.5)}).Evaluate(jac)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, measures.Pass, test.ShouldBeFalse)
	})
	t.Run("semi axes", func(t *testing.T) {
		measures, err := NewAnalyzer(Config{}).Evaluate(jac)
		test.That(t, err, test.ShouldBeNil)
		axes := measures.SemiAxes()
		test.That(t, axes[0], test.ShouldAlmostEqual, 0.1, 1e-9)
		test.That(t, axes[1], test.ShouldAlmostEqual, 0.5, 1e-9)
		test.That(t, axes[2], test.ShouldAlmostEqual, 1, 1e-9)
	})
}

func TestEvaluateInvalid(t *testing.T) {
	a := NewAnalyzer(Config{})
	for _, tc := range []struct {
		name string
		jac  mat.Matrix
	}{
		{"nil", nil},
		{"too few rows", mat.NewDense(2, 3, nil)},
		{"four rows", mat.NewDense(4, 3, nil)},
		{"nan", mat.NewDense(3, 1, []float64{0, math.NaN(), 1})},
		{"inf", mat.NewDense(3, 1, []float64{math.Inf(1), 0, 1})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Evaluate(tc.jac)
			test.That(t, errors.Is(err, ErrInvalidJacobian), test.ShouldBeTrue)
		})
	}

	var decompErr *DecompositionError
	test.That(t, errors.As(NewDecompositionError("x"), &decompErr), test.ShouldBeTrue)
	test.That(t, decompErr.Reason, test.ShouldEqual, "x")
}

func TestEvaluateGeometricJacobian(t *testing.T) {
	model, err := referenceframe.ModelFromName("panda")
	test.That(t, err, test.ShouldBeNil)
	inputs := referenceframe.FloatsToInputs([]float64{0, -0.3, 0, -2.2, 0, 2.0, 0.8})

	full, err := model.GeometricJacobian(inputs)
	test.That(t, err, test.ShouldBeNil)
	translational, err := model.JacobianAt(inputs)
	test.That(t, err, test.ShouldBeNil)

	a := NewAnalyzer(Config{})
	fromFull, err := a.Evaluate(full)
	test.That(t, err, test.ShouldBeNil)
	fromTranslational, err := a.Evaluate(translational)
	test.That(t, err, test.ShouldBeNil)
	for i := range fromFull.EigenValues {
		test.That(t, fromFull.EigenValues[i], test.ShouldAlmostEqual, fromTranslational.EigenValues[i], 1e-12)
	}
	test.That(t, fromFull.Pass, test.ShouldBeTrue)
}

func TestConcurrentEvaluate(t *testing.T) {
	a := NewAnalyzer(Config{})
	jac := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			measures, err := a.Evaluate(jac)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, measures.EigenValues[2], test.ShouldAlmostEqual, 9, 1e-9)
		}()
	}
	wg.Wait()
}

func TestConfigAndJSON(t *testing.T) {
	test.That(t, (&Config{Threshold: lo.ToPtr(-1.0)}).Validate(), test.ShouldNotBeNil)
	test.That(t, (&Config{Mode: "volume"}).Validate(), test.ShouldNotBeNil)
	test.That(t, (&Config{Mode: Isotropy, Threshold: lo.ToPtr(0.1)}).Validate(), test.ShouldBeNil)

	a := NewAnalyzer(Config{})
	test.That(t, a.Mode(), test.ShouldEqual, MinEigenvalue)
	test.That(t, a.Threshold(), test.ShouldEqual, DefaultThreshold)

	// an explicit zero is kept and lets a singular configuration through
	zero := NewAnalyzer(Config{Threshold: lo.ToPtr(0.0)})
	test.That(t, zero.Threshold(), test.ShouldEqual, 0)
	singular, err := zero.Evaluate(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0, 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, singular.Pass, test.ShouldBeTrue)
	singular, err = a.Evaluate(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0, 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, singular.Pass, test.ShouldBeFalse)

	var decodedCfg Config
	test.That(t, json.Unmarshal([]byte(`{"threshold": 0}`), &decodedCfg), test.ShouldBeNil)
	test.That(t, decodedCfg.Threshold, test.ShouldNotBeNil)
	test.That(t, NewAnalyzer(decodedCfg).Threshold(), test.ShouldEqual, 0)

	measures, err := a.Evaluate(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}))
	test.That(t, err, test.ShouldBeNil)
	data, err := json.Marshal(measures)
	test.That(t, err, test.ShouldBeNil)
	var decoded map[string]interface{}
	test.That(t, json.Unmarshal(data, &decoded), test.ShouldBeNil)
	test.That(t, decoded["pass"], test.ShouldBeTrue)
	test.That(t, decoded["isotropy"], test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, len(decoded["eigenvectors"].([]interface{})), test.ShouldEqual, 3)
	test.That(t, measures.String(), test.ShouldContainSubstring, "pass=true")
}
