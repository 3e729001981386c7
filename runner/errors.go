package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is returned when the device cannot provide a buffer.
	ErrAllocation = errors.New("runner: device allocation failed")

	// ErrLaunch is returned when a kernel invocation is rejected or fails.
	ErrLaunch = errors.New("runner: kernel launch failed")

	// ErrDependencyFailed is returned for a launch whose prerequisite launch
	// failed; the dependent kernel is not run.
	ErrDependencyFailed = errors.New("runner: dependency failed")

	// ErrQueueClosed is returned for launches submitted after Free.
	ErrQueueClosed = errors.New("runner: submission queue closed")

	// ErrBufferReleased is returned when a released buffer is used.
	ErrBufferReleased = errors.New("runner: buffer already released")

	// ErrLayout is returned when bytes cannot be decoded into the requested
	// element type.
	ErrLayout = errors.New("runner: invalid byte layout")
)

// DependencyError is returned for a launch skipped because a prerequisite
// launch failed. It matches ErrDependencyFailed and the prerequisite's error.
type DependencyError struct {
	Kernel string
	Err    error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%v: kernel %s not run: %v", ErrDependencyFailed, e.Kernel, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyFailed, e.Err}
}

// RootCause follows a chain of skipped launches back to the error of the
// first launch that failed. Other errors are returned unchanged.
func RootCause(err error) error {
	var dep *DependencyError
	for errors.As(err, &dep) {
		err = dep.Err
	}
	return err
}
