package runner

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/notargets/ArrayBench/runner/builder"
	"github.com/notargets/gocca"
)

// Config holds configuration for creating a Runner
type Config struct {
	builder.Config
	// MaxThreadsPerGroup caps the threadgroup width; 0 selects the default
	// for the device mode.
	MaxThreadsPerGroup int
	Logger             *slog.Logger
}

// maxThreadsByMode is the threadgroup width limit used when the
// configuration does not override it.
var maxThreadsByMode = map[string]int{
	"CUDA":   1024,
	"HIP":    1024,
	"Metal":  1024,
	"OpenCL": 256,
	"dpcpp":  256,
	"OpenMP": 1024,
	"Serial": 1024,
}

// DefaultMaxThreads returns the threadgroup width limit for a device mode
func DefaultMaxThreads(mode string) int {
	if m, ok := maxThreadsByMode[mode]; ok {
		return m
	}
	return 256
}

// Runner owns compiled kernels and the submission queue for one device.
// All gocca calls go through mu; the device itself is owned by the caller.
type Runner struct {
	*builder.Builder
	Device             *gocca.OCCADevice
	Kernels            map[string]*gocca.OCCAKernel
	MaxThreadsPerGroup int
	Logger             *slog.Logger

	mu    sync.Mutex
	queue *Queue
	live  map[*DeviceBuffer]struct{}
	freed bool
}

// NewRunner creates a new Runner instance
func NewRunner(device *gocca.OCCADevice, cfg Config) (kr *Runner) {
	if device == nil {
		panic("NewRunner requires a device")
	}
	maxThreads := cfg.MaxThreadsPerGroup
	if maxThreads == 0 {
		maxThreads = DefaultMaxThreads(device.Mode())
	}
	if maxThreads < 1 {
		panic(fmt.Sprintf("MaxThreadsPerGroup must be positive, got %d", maxThreads))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	kr = &Runner{
		Builder:            builder.NewBuilder(cfg.Config),
		Device:             device,
		Kernels:            make(map[string]*gocca.OCCAKernel),
		MaxThreadsPerGroup: maxThreads,
		Logger:             logger.With("device", device.Mode()),
		queue:              NewQueue(),
		live:               make(map[*DeviceBuffer]struct{}),
	}
	return
}

// Mode returns the OCCA mode of the underlying device
func (kr *Runner) Mode() string {
	return kr.Device.Mode()
}

// BuildKernel compiles and registers one of the builder's kernels
func (kr *Runner) BuildKernel(kernelName string) (*gocca.OCCAKernel, error) {
	source, err := kr.KernelSource(kernelName)
	if err != nil {
		return nil, err
	}

	kr.mu.Lock()
	defer kr.mu.Unlock()

	var kernel *gocca.OCCAKernel
	if kr.Device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(source, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(source, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}

	kr.Kernels[kernelName] = kernel
	kr.Logger.Debug("kernel built", "kernel", kernelName)
	return kernel, nil
}

// BuildKernels compiles every kernel the builder knows about
func (kr *Runner) BuildKernels() error {
	for _, name := range kr.KernelNames() {
		if _, err := kr.BuildKernel(name); err != nil {
			return err
		}
	}
	return nil
}

// Free drains the submission queue, then releases kernels and any buffers
// still outstanding. The device is left to its owner. Free is idempotent.
func (kr *Runner) Free() {
	kr.queue.Close()

	kr.mu.Lock()
	defer kr.mu.Unlock()
	if kr.freed {
		return
	}
	kr.freed = true

	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	for buf := range kr.live {
		buf.mem.Free()
		buf.released = true
	}
	kr.live = nil
}
