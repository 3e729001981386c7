//go:build !webgpu

package processor

import (
	"fmt"

	"github.com/notargets/ArrayBench/runner"
)

// WebGPU is unavailable in builds without the webgpu tag
type WebGPU struct{}

// NewWebGPU always fails; rebuild with -tags webgpu to enable the backend
func NewWebGPU(opts ...Option) (*WebGPU, error) {
	return nil, fmt.Errorf("%w: built without webgpu tag", ErrBackendUnavailable)
}

func (*WebGPU) Type() string { return "WebGPU" }

func (g *WebGPU) AddArrays(a, b []float32) *runner.Future[[]float32] {
	checkLengths(g.Type(), OpAddArrays, a, b)
	return runner.Resolved[[]float32](nil, opError(g.Type(), OpAddArrays, ErrBackendUnavailable))
}

func (g *WebGPU) CompareArrays(a, b []float32) *runner.Future[bool] {
	checkLengths(g.Type(), OpCompareArrays, a, b)
	return runner.Resolved(false, opError(g.Type(), OpCompareArrays, ErrBackendUnavailable))
}

func (*WebGPU) Close() error { return nil }
