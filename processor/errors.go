package processor

import (
	"errors"
	"fmt"

	"github.com/notargets/ArrayBench/runner"
)

// Error kinds carried by OpError. Test with errors.Is.
var (
	// ErrBackendUnavailable is returned when a backend cannot be constructed:
	// no device, no driver, or a kernel failed to compile.
	ErrBackendUnavailable = errors.New("processor: backend unavailable")

	// ErrResourceExhausted is returned when a buffer could not be allocated.
	ErrResourceExhausted = errors.New("processor: device resources exhausted")

	// ErrSubmission is returned when a kernel could not be submitted or run,
	// or its output could not be read back.
	ErrSubmission = errors.New("processor: kernel submission failed")

	// ErrClosed is returned for operations on a closed processor.
	ErrClosed = errors.New("processor: closed")
)

// Operation names used in OpError
const (
	OpAddArrays     = "addArrays"
	OpCompareArrays = "compareArrays"
)

// OpError reports a failed operation on one backend
type OpError struct {
	Backend string
	Op      string
	Kind    error
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap exposes both the kind and the underlying cause
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// opError classifies a runner or device error into an OpError
func opError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OpError
	if errors.As(err, &existing) {
		return err
	}

	kind := ErrSubmission
	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, runner.ErrQueueClosed):
		kind = ErrClosed
	case errors.Is(err, ErrResourceExhausted), errors.Is(err, runner.ErrAllocation):
		kind = ErrResourceExhausted
	}
	return &OpError{Backend: backend, Op: op, Kind: kind, Err: err}
}
