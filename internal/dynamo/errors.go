package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for controller operations.
var (
	// ErrConfiguration indicates a missing or invalid startup parameter.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrInvalidState indicates a state vector with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrHorizonMismatch indicates a reference or warm start whose length
	// differs from the solver horizon.
	ErrHorizonMismatch = errors.New("dynamo: horizon length mismatch")

	// ErrEmptyPath indicates a waypoint source with too few points to track.
	ErrEmptyPath = errors.New("dynamo: waypoint path has fewer than two points")

	// ErrNoRun indicates a run ID that is not present in storage.
	ErrNoRun = errors.New("dynamo: run not found")
)

// ConfigurationError names the startup parameter that prevented the loop
// from starting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// HorizonError wraps a length mismatch with the offending lengths.
type HorizonError struct {
	What string
	Got  int
	Want int
}

func (e *HorizonError) Error() string {
	return fmt.Sprintf("%s: %s has %d points, want %d", ErrHorizonMismatch.Error(), e.What, e.Got, e.Want)
}

func (e *HorizonError) Unwrap() error {
	return ErrHorizonMismatch
}
