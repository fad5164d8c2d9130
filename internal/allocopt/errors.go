package allocopt

import (
	"errors"
	"fmt"
)

// Error kinds returned by Optimizer.Allocate. Match them with errors.Is.
var (
	// ErrEnvironmentUnavailable indicates the optimizer runtime or its
	// packages could not be located or provisioned.
	ErrEnvironmentUnavailable = errors.New("allocopt: optimizer environment unavailable")

	// ErrInvalidParameters indicates the request failed validation. The
	// optimizer is never invoked in that case.
	ErrInvalidParameters = errors.New("allocopt: invalid parameters")

	// ErrOptimizationFailed indicates the optimizer itself reported a failure.
	ErrOptimizationFailed = errors.New("allocopt: optimization failed")

	// ErrMarshaling indicates the optimizer returned a result of an
	// unexpected shape, usually a version mismatch with the optimizer package.
	ErrMarshaling = errors.New("allocopt: unexpected optimizer result")
)

// ParameterError describes a rejected request field.
type ParameterError struct {
	Field string
	Err   error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("allocopt: invalid parameter %s: %v", e.Field, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// Is reports ParameterError as ErrInvalidParameters.
func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameters
}

// OptimizationError carries the optimizer's own diagnostic message verbatim.
type OptimizationError struct {
	Message string
}

func (e *OptimizationError) Error() string {
	return "allocopt: optimization failed: " + e.Message
}

// Is reports OptimizationError as ErrOptimizationFailed.
func (e *OptimizationError) Is(target error) bool {
	return target == ErrOptimizationFailed
}

// MarshalingError pinpoints where an optimizer result diverged from the
// expected shape.
type MarshalingError struct {
	Path string
	Err  error
}

func (e *MarshalingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("allocopt: unexpected optimizer result: %v", e.Err)
	}
	return fmt.Sprintf("allocopt: unexpected optimizer result at %s: %v", e.Path, e.Err)
}

func (e *MarshalingError) Unwrap() error {
	return e.Err
}

// Is reports MarshalingError as ErrMarshaling.
func (e *MarshalingError) Is(target error) bool {
	return target == ErrMarshaling
}

// EnvironmentError wraps a runtime bootstrap failure.
type EnvironmentError struct {
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("allocopt: optimizer environment unavailable: %v", e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// Is reports EnvironmentError as ErrEnvironmentUnavailable.
func (e *EnvironmentError) Is(target error) bool {
	return target == ErrEnvironmentUnavailable
}
