package voxel

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrLockTimeout is returned when a region lock could not be acquired in time.
	// Callers may retry.
	ErrLockTimeout = errors.New("voxel: region lock timeout")
	// ErrInvalidBounds is returned for empty or inverted boxes and positions outside the world.
	ErrInvalidBounds = errors.New("voxel: invalid bounds")
	// ErrConcurrencyViolation marks an access without a covering lock. It is raised as a panic.
	ErrConcurrencyViolation = errors.New("voxel: concurrency violation")
	// ErrGeneratorFailure wraps errors raised by a Generator.
	ErrGeneratorFailure = errors.New("voxel: generator failure")
)

// GeneratorError carries the area a generator failed on.
type GeneratorError struct {
	Bounds Bounds
	Err    error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("voxel: generator failed in %v: %v", e.Bounds, e.Err)
}

func (e *GeneratorError) Unwrap() []error {
	return []error{ErrGeneratorFailure, e.Err}
}

func generatorFailure(bounds Bounds, err error) error {
	return &GeneratorError{Bounds: bounds, Err: err}
}

func invalidBounds(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidBounds, format, args...)
}

func violation(format string, args ...any) {
	panic(errors.Wrapf(ErrConcurrencyViolation, format, args...))
}
