package processor

import (
	"runtime"

	"github.com/notargets/ArrayBench/runner"
	"golang.org/x/sys/cpu"
)

// CPU is the sequential reference backend. Both operations run on the
// calling goroutine and return an already fulfilled future, so continuations
// registered on it run before the call that registered them returns.
type CPU struct{}

// NewCPU returns the CPU backend
func NewCPU() CPU { return CPU{} }

// Type returns "CPU"
func (CPU) Type() string { return "CPU" }

// AddArrays computes a[i] + b[i] sequentially
func (c CPU) AddArrays(a, b []float32) *runner.Future[[]float32] {
	checkLengths(c.Type(), OpAddArrays, a, b)
	result := make([]float32, len(a))
	for i := range a {
		result[i] = a[i] + b[i]
	}
	return runner.Resolved(result, nil)
}

// CompareArrays reports whether every a[i] == b[i]
func (c CPU) CompareArrays(a, b []float32) *runner.Future[bool] {
	checkLengths(c.Type(), OpCompareArrays, a, b)
	matched := true
	for i := range a {
		if a[i] != b[i] {
			matched = false
			break
		}
	}
	return runner.Resolved(matched, nil)
}

// Close is a no-op; the CPU backend holds no resources
func (CPU) Close() error { return nil }

// Features lists the SIMD features of the host, for logging
func (CPU) Features() []string {
	features := []string{runtime.GOARCH}
	switch runtime.GOARCH {
	case "amd64", "386":
		flags := []struct {
			name string
			ok   bool
		}{
			{"sse2", cpu.X86.HasSSE2},
			{"sse4.1", cpu.X86.HasSSE41},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"avx512f", cpu.X86.HasAVX512F},
		}
		for _, f := range flags {
			if f.ok {
				features = append(features, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	return features
}
