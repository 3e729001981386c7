// Package processor defines the backend-polymorphic Processor contract and
// its implementations: a sequential CPU reference and accelerant backends
// that run compiled kernels on a parallel device.
//
// Every operation returns a runner.Future that is fulfilled exactly once.
// Callers either Wait on it or register a continuation with OnComplete; the
// callback helpers AddArraysFunc and CompareArraysFunc wrap the latter.
package processor

import (
	"fmt"

	"github.com/notargets/ArrayBench/runner"
)

// Processor adds and compares float32 arrays on one execution backend
type Processor interface {
	// Type names the backend, for logging
	Type() string
	// AddArrays computes a[i] + b[i] for every i
	AddArrays(a, b []float32) *runner.Future[[]float32]
	// CompareArrays reports whether a[i] == b[i] for every i, using exact
	// IEEE-754 equality
	CompareArrays(a, b []float32) *runner.Future[bool]
	// Close releases backend resources; operations afterwards fail
	Close() error
}

// AddArraysFunc runs AddArrays and hands the outcome to onComplete exactly once
func AddArraysFunc(p Processor, a, b []float32, onComplete func([]float32, error)) {
	p.AddArrays(a, b).OnComplete(onComplete)
}

// CompareArraysFunc runs CompareArrays and hands the outcome to onComplete
// exactly once
func CompareArraysFunc(p Processor, a, b []float32, onComplete func(bool, error)) {
	p.CompareArrays(a, b).OnComplete(onComplete)
}

// Available returns the CPU processor followed by every accelerant that
// could be constructed with opts. Accelerants that cannot be constructed are
// left out; the result always holds at least the CPU.
func Available(opts ...Option) []Processor {
	o := newOptions(opts)
	processors := []Processor{NewCPU()}

	if acc, err := NewAccelerant(opts...); err == nil {
		processors = append(processors, acc)
	} else {
		o.logger.Info("accelerant backend unavailable", "err", err)
	}

	if o.webgpu {
		if wg, err := NewWebGPU(opts...); err == nil {
			processors = append(processors, wg)
		} else {
			o.logger.Info("webgpu backend unavailable", "err", err)
		}
	}
	return processors
}

// CloseAll closes every processor and returns the first error
func CloseAll(processors []Processor) error {
	var first error
	for _, p := range processors {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// checkLengths enforces the equal-length precondition. A mismatch is a
// programming error, not a runtime condition.
func checkLengths(backend, op string, a, b []float32) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("processor: %s %s: operand lengths differ (%d != %d)",
			backend, op, len(a), len(b)))
	}
}
