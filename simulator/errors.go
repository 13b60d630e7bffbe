package simulator

import (
	"errors"
	"fmt"
)

// SimError is a custom error type for simulation errors
type SimError struct {
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error: %s", e.Message)
}

// ConfigurationError reports a caller error in SimConfig. It is returned before
// the first tick runs.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e ConfigurationError) Error() string {
	if e.Field == "" {
		return SimError{Message: fmt.Sprintf("invalid config: %s", e.Message)}.Error()
	}
	return SimError{Message: fmt.Sprintf("invalid config: %s %s", e.Field, e.Message)}.Error()
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return ConfigurationError{Message: msg}
}

// errInvalidField creates a ConfigurationError for a single field
func errInvalidField(field, msg string) error {
	return ConfigurationError{Field: field, Message: msg}
}

// InvariantViolation is a programming defect detected at a tick boundary.
// Dump holds the full simulator state as JSON at the moment of detection.
type InvariantViolation struct {
	Tick   int
	Clock  int
	Reason string
	Dump   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at tick %d (t=%d): %s", e.Tick, e.Clock, e.Reason)
}

// ErrTickLimitExceeded is returned when a run hits SimConfig.MaxTicks before both queues drain.
var ErrTickLimitExceeded = errors.New("simulation error: tick limit exceeded")
