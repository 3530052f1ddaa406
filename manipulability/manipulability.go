// Package manipulability measures how well a robot configuration can move its end effector,
// from the eigen-structure of the translational velocity ellipsoid Jv·Jvᵀ.
package manipulability

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/pickplace/utils"
)

// Mode selects what Pass compares against the threshold.
type Mode string

const (
	// MinEigenvalue passes when the smallest eigenvalue is at least the threshold.
	MinEigenvalue Mode = "min_eigenvalue"
	// Isotropy passes when λmin/λmax is at least the threshold.
	Isotropy Mode = "isotropy"
)

// DefaultThreshold is the minimum eigenvalue accepted when no threshold is configured.
const DefaultThreshold = 1e-6

// Config configures an Analyzer. An unset Threshold uses DefaultThreshold; an explicit 0 accepts
// every configuration.
type Config struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Mode      Mode     `json:"mode"`
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if t := cfg.Threshold; t != nil && (*t < 0 || !utils.IsFinite(*t)) {
		return errors.Errorf("manipulability threshold must be finite and non-negative, got %v", *t)
	}
	switch cfg.Mode {
	case "", MinEigenvalue, Isotropy:
		return nil
	default:
		return errors.Errorf("unknown manipulability mode %q", cfg.Mode)
	}
}

// Analyzer evaluates Jacobians. It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	threshold float64
	mode      Mode
}

// NewAnalyzer returns an Analyzer, filling unset config values with defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	a := &Analyzer{threshold: DefaultThreshold, mode: cfg.Mode}
	if cfg.Threshold != nil {
		a.threshold = *cfg.Threshold
	}
	if a.mode == "" {
		a.mode = MinEigenvalue
	}
	return a
}

// Threshold returns the configured pass threshold.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Mode returns the configured comparison mode.
func (a *Analyzer) Mode() Mode {
	return a.mode
}

// Evaluate decomposes Jv·Jvᵀ for a 3×N translational Jacobian or a 6×N geometric Jacobian,
// whose first three rows are used.
func (a *Analyzer) Evaluate(jacobian mat.Matrix) (*Measures, error) {
	if jacobian == nil {
		return nil, ErrInvalidJacobian
	}
	rows, cols := jacobian.Dims()
	if (rows != 3 && rows != 6) || cols == 0 {
		return nil, ErrInvalidJacobian
	}
	jv := mat.NewDense(3, cols, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < cols; j++ {
			v := jacobian.At(i, j)
			if !utils.IsFinite(v) {
				return nil, ErrInvalidJacobian
			}
			jv.Set(i, j, v)
		}
	}

	m := mat.NewSymDense(3, nil)
	m.SymOuterK(1, jv)

	var eig mat.EigenSym
	if ok := eig.Factorize(m, true); !ok {
		return nil, NewDecompositionError("EigenSym did not converge")
	}
	values := eig.Values(nil)
	vectors := mat.NewDense(3, 3, nil)
	eig.VectorsTo(vectors)

	for i, v := range values {
		if !utils.IsFinite(v) {
			return nil, NewDecompositionError("non-finite eigenvalue")
		}
		// JJᵀ is positive semi-definite; negative values are round-off.
		if v < 0 {
			values[i] = 0
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !utils.IsFinite(vectors.At(i, j)) {
				return nil, NewDecompositionError("non-finite eigenvector")
			}
		}
	}

	measures := &Measures{EigenValues: values, EigenVectors: vectors}
	measures.Pass = a.passes(measures)
	return measures, nil
}

func (a *Analyzer) passes(m *Measures) bool {
	switch a.mode {
	case Isotropy:
		return m.Isotropy() >= a.threshold
	case MinEigenvalue:
		fallthrough
	default:
		return m.EigenValues[0] >= a.threshold
	}
}

// Measures is the eigen-structure of Jv·Jvᵀ. EigenValues are ascending, so index 0 is the most
// constrained direction, and column i of EigenVectors is the unit vector paired with value i.
type Measures struct {
	EigenValues  []float64
	EigenVectors *mat.Dense
	Pass         bool
}

// Vector returns the i'th eigenvector.
func (m *Measures) Vector(i int) r3.Vector {
	return r3.Vector{X: m.EigenVectors.At(0, i), Y: m.EigenVectors.At(1, i), Z: m.EigenVectors.At(2, i)}
}

// SemiAxes returns the velocity ellipsoid semi-axis lengths, √λ, in eigenvalue order.
func (m *Measures) SemiAxes() []float64 {
	axes := make([]float64, len(m.EigenValues))
	for i, v := range m.EigenValues {
		axes[i] = math.Sqrt(v)
	}
	return axes
}

// Isotropy returns λmin/λmax, 0 when every eigenvalue is 0.
func (m *Measures) Isotropy() float64 {
	maxVal := m.EigenValues[len(m.EigenValues)-1]
	if maxVal == 0 {
		return 0
	}
	return m.EigenValues[0] / maxVal
}

// Volume returns Yoshikawa's manipulability index √det(Jv·Jvᵀ).
func (m *Measures) Volume() float64 {
	det := 1.
	for _, v := range m.EigenValues {
		det *= v
	}
	return math.Sqrt(det)
}

// String formats the measures for logs.
func (m *Measures) String() string {
	parts := make([]string, 0, len(m.EigenValues)+1)
	for i, val := range m.EigenValues {
		v := m.Vector(i)
		parts = append(parts, fmt.Sprintf("λ%d=%.6g v=(%.3f, %.3f, %.3f)", i, val, v.X, v.Y, v.Z))
	}
	parts = append(parts, fmt.Sprintf("pass=%t", m.Pass))
	return strings.Join(parts, "; ")
}

type measuresJSON struct {
	EigenValues  []float64    `json:"eigenvalues"`
	EigenVectors [][3]float64 `json:"eigenvectors"`
	SemiAxes     []float64    `json:"semi_axes"`
	Isotropy     float64      `json:"isotropy"`
	Volume       float64      `json:"volume"`
	Pass         bool         `json:"pass"`
}

// MarshalJSON emits eigenvectors as rows, one per eigenvalue.
func (m *Measures) MarshalJSON() ([]byte, error) {
	out := measuresJSON{
		EigenValues: m.EigenValues,
		SemiAxes:    m.SemiAxes(),
		Isotropy:    m.Isotropy(),
		Volume:      m.Volume(),
		Pass:        m.Pass,
	}
	for i := range m.EigenValues {
		v := m.Vector(i)
		out.EigenVectors = append(out.EigenVectors, [3]float64{v.X, v.Y, v.Z})
	}
	return json.Marshal(out)
}
