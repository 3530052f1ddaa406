package referenceframe

import "github.com/pkg/errors"

// ErrNoModelInformation is used when there is no model information.
var ErrNoModelInformation = errors.New("no model information")

// NewIncorrectDoFError returns an error indicating that the number of inputs does not match the
// number of degrees of freedom of a model.
func NewIncorrectDoFError(actual, expected int) error {
	return errors.Errorf("number of inputs does not match degrees of freedom. Expected %d, got %d", expected, actual)
}

// NewReservedWordError is used when a model config uses a reserved name.
func NewReservedWordError(configType, reservedWord string) error {
	return errors.Errorf("reserved word: cannot name a %s '%s'", configType, reservedWord)
}

// NewUnknownModelError is used when a built-in model is requested by a name that does not exist.
func NewUnknownModelError(name string) error {
	return errors.Errorf("no built-in kinematic model named %q", name)
}
