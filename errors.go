package novograd

import (
	"errors"
	"fmt"
)

// Sentinel errors for the novograd package.
// Use errors.Is to check: errors.Is(err, novograd.ErrInvalidConfig)
var (
	// ErrInvalidConfig reports invalid hyperparameters at construction, or a
	// gradient/parameter list that does not match the layout established on
	// the first Step call. Fatal, never retried.
	ErrInvalidConfig = errors.New("novograd: invalid configuration")

	// ErrNumericalInstability reports a non-finite gradient statistic.
	// Only returned when Options.StrictFinite is set; by default non-finite
	// values propagate into the moving average unchanged.
	ErrNumericalInstability = errors.New("novograd: numerical instability")
)

func newConfigError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

