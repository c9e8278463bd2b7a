package pipeline

import (
	"errors"
	"fmt"
)

// ErrNonRetryable marks stage failures that redelivery cannot fix
// (configuration faults, contract violations). The dead-letter guard parks
// these immediately instead of burning the redelivery budget.
var ErrNonRetryable = errors.New("non-retryable stage failure")

func NonRetryable(err error) error {
	return fmt.Errorf("%w: %w", ErrNonRetryable, err)
}
