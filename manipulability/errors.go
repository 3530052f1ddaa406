package manipulability

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidJacobian is returned for an empty or wrongly shaped Jacobian, or one holding non-finite entries.
var ErrInvalidJacobian = errors.New("jacobian must be a finite 3xN or 6xN matrix")

// DecompositionError is returned when the symmetric eigen-decomposition does not converge.
type DecompositionError struct {
	Reason string
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("eigen-decomposition failed: %s", e.Reason)
}

// NewDecompositionError returns a DecompositionError with the given reason.
func NewDecompositionError(reason string) error {
	return &DecompositionError{Reason: reason}
}
