package processor

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/notargets/ArrayBench/runner"
	"github.com/notargets/ArrayBench/runner/builder"
	"github.com/notargets/ArrayBench/utils"
	"github.com/notargets/gocca"
)

// Accelerant runs both operations as OCCA kernels on a parallel device.
// It owns the compiled kernels and one submission queue; if it opened the
// device itself it owns that too. Close releases them once.
type Accelerant struct {
	runner     *runner.Runner
	device     *gocca.OCCADevice
	ownsDevice bool
	mode       string
	reduction  Reduction
	logger     *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewAccelerant opens the first device from the configured property list and
// compiles the kernels. Any failure releases what was acquired and returns an
// error wrapping ErrBackendUnavailable.
func NewAccelerant(opts ...Option) (*Accelerant, error) {
	o := newOptions(opts)
	device, err := utils.OpenDevice(o.logger, o.devices...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	acc, err := newAccelerant(device, true, o)
	if err != nil {
		device.Free()
		return nil, err
	}
	return acc, nil
}

// NewAccelerantOnDevice builds an accelerant on a device the caller keeps
// ownership of
func NewAccelerantOnDevice(device *gocca.OCCADevice, opts ...Option) (*Accelerant, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrBackendUnavailable)
	}
	return newAccelerant(device, false, newOptions(opts))
}

func newAccelerant(device *gocca.OCCADevice, owns bool, o *options) (*Accelerant, error) {
	if o.maxThreads < 0 {
		return nil, fmt.Errorf("%w: max threads per group must be positive, got %d",
			ErrBackendUnavailable, o.maxThreads)
	}
	if o.reduceChunk < 0 {
		return nil, fmt.Errorf("%w: reduce chunk must be positive, got %d",
			ErrBackendUnavailable, o.reduceChunk)
	}
	kr := runner.NewRunner(device, runner.Config{
		Config:             builder.Config{ReduceChunk: o.reduceChunk},
		MaxThreadsPerGroup: o.maxThreads,
		Logger:             o.logger,
	})
	if err := kr.BuildKernels(); err != nil {
		kr.Free()
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	o.logger.Debug("accelerant ready", "mode", kr.Mode(),
		"max_threads_per_group", kr.MaxThreadsPerGroup, "reduction", o.reduction.String())
	return &Accelerant{
		runner:     kr,
		device:     device,
		ownsDevice: owns,
		mode:       kr.Mode(),
		reduction:  o.reduction,
		logger:     o.logger,
	}, nil
}

// Type returns the OCCA device mode, e.g. "CUDA" or "OpenMP"
func (ac *Accelerant) Type() string { return ac.mode }

// MaxThreadsPerGroup returns the threadgroup width limit in use
func (ac *Accelerant) MaxThreadsPerGroup() int { return ac.runner.MaxThreadsPerGroup }

// Features describes the device configuration, for logging
func (ac *Accelerant) Features() []string {
	return []string{
		"occa:" + ac.mode,
		fmt.Sprintf("threadgroup<=%d", ac.runner.MaxThreadsPerGroup),
		"reduction:" + ac.reduction.String(),
	}
}

// AddArrays stages a and b, launches addArrayItem over N threads and reads
// the sum back when the launch completes
func (ac *Accelerant) AddArrays(a, b []float32) *runner.Future[[]float32] {
	checkLengths(ac.Type(), OpAddArrays, a, b)
	n := len(a)
	if n == 0 {
		return runner.Resolved([]float32{}, nil)
	}
	if ac.closed.Load() {
		return runner.Resolved[[]float32](nil, ac.fail(OpAddArrays, ErrClosed))
	}

	kr := ac.runner
	bufs, err := ac.stageOperands(a, b)
	if err != nil {
		return runner.Resolved[[]float32](nil, ac.fail(OpAddArrays, err))
	}
	out, err := kr.AllocateZeroed(builder.Float32, n)
	if err != nil {
		kr.Release(bufs...)
		return runner.Resolved[[]float32](nil, ac.fail(OpAddArrays, err))
	}

	launch := kr.Launch(kr.ConfigureLaunch(builder.AddArrayItem, n, n, bufs[0], bufs[1], out))
	return runner.Then(launch, func(_ struct{}, err error) ([]float32, error) {
		defer kr.Release(bufs[0], bufs[1], out)
		if err != nil {
			return nil, ac.fail(OpAddArrays, err)
		}
		result, err := kr.ReadFloat32s(out)
		if err != nil {
			return nil, ac.fail(OpAddArrays, err)
		}
		return result, nil
	})
}

// CompareArrays launches compareArrayItem to produce one flag per element,
// then reduces the flags on the device. The reduction is queued behind the
// compare on the same queue and reads its output buffer directly.
func (ac *Accelerant) CompareArrays(a, b []float32) *runner.Future[bool] {
	checkLengths(ac.Type(), OpCompareArrays, a, b)
	n := len(a)
	if n == 0 {
		return runner.Resolved(true, nil)
	}
	if ac.closed.Load() {
		return runner.Resolved(false, ac.fail(OpCompareArrays, ErrClosed))
	}

	kr := ac.runner
	bufs, err := ac.stageOperands(a, b)
	if err != nil {
		return runner.Resolved(false, ac.fail(OpCompareArrays, err))
	}
	flags, err := kr.AllocateZeroed(builder.Bool, n)
	if err != nil {
		kr.Release(bufs...)
		return runner.Resolved(false, ac.fail(OpCompareArrays, err))
	}

	compare := kr.Launch(kr.ConfigureLaunch(builder.CompareArrayItem, n, n, bufs[0], bufs[1], flags))
	compare.OnComplete(func(struct{}, error) { kr.Release(bufs...) })

	switch ac.reduction {
	case ReduceBlocked:
		return ac.reduceBlocked(flags, n, compare)
	default:
		return ac.reduceSerial(flags, n, compare)
	}
}

// AllTrue reduces host flags on the device. It exercises the reduction
// stage on its own: an empty input is vacuously true.
func (ac *Accelerant) AllTrue(values []bool) *runner.Future[bool] {
	n := len(values)
	if n == 0 {
		return runner.Resolved(true, nil)
	}
	if ac.closed.Load() {
		return runner.Resolved(false, ac.fail(OpCompareArrays, ErrClosed))
	}
	flags, err := ac.runner.AllocateBools(values)
	if err != nil {
		return runner.Resolved(false, ac.fail(OpCompareArrays, err))
	}
	ready := runner.Resolved(struct{}{}, nil)
	if ac.reduction == ReduceBlocked {
		return ac.reduceBlocked(flags, n, ready)
	}
	return ac.reduceSerial(flags, n, ready)
}

// reduceSerial folds n flags with a single work item. flags is released
// when the reduction completes.
func (ac *Accelerant) reduceSerial(flags *runner.DeviceBuffer, n int,
	after *runner.Future[struct{}]) *runner.Future[bool] {
	kr := ac.runner
	result, err := kr.AllocateZeroed(builder.Bool, 1)
	if err != nil {
		// the flags buffer may still be in use by a queued launch
		after.OnComplete(func(struct{}, error) { kr.Release(flags) })
		return runner.Resolved(false, ac.fail(OpCompareArrays, err))
	}

	reduce := kr.Launch(kr.ConfigureLaunch(builder.AllTrueArray, n, 1, flags, result).After(after))
	return runner.Then(reduce, func(_ struct{}, err error) (bool, error) {
		defer kr.Release(flags, result)
		return ac.readFlag(result, err)
	})
}

// reduceBlocked folds REDUCE_CHUNK flags per work item into partials, then
// folds the partials with a single work item
func (ac *Accelerant) reduceBlocked(flags *runner.DeviceBuffer, n int,
	after *runner.Future[struct{}]) *runner.Future[bool] {
	kr := ac.runner
	blocks := (n + kr.ReduceChunk - 1) / kr.ReduceChunk
	partial, err := kr.AllocateZeroed(builder.Bool, blocks)
	if err != nil {
		after.OnComplete(func(struct{}, error) { kr.Release(flags) })
		return runner.Resolved(false, ac.fail(OpCompareArrays, err))
	}

	fold := kr.Launch(kr.ConfigureLaunch(builder.AllTrueBlocks, n, blocks, flags, partial).After(after))
	fold.OnComplete(func(struct{}, error) { kr.Release(flags) })

	return ac.reduceSerial(partial, blocks, fold)
}

// readFlag reads the single reduction flag. When the reduction did not run
// because an earlier stage failed, the first failed stage's error is reported.
func (ac *Accelerant) readFlag(result *runner.DeviceBuffer, err error) (bool, error) {
	if err != nil {
		return false, ac.fail(OpCompareArrays, runner.RootCause(err))
	}
	values, err := ac.runner.ReadBools(result)
	if err != nil {
		return false, ac.fail(OpCompareArrays, err)
	}
	return values[0], nil
}

// stageOperands copies both host arrays to the device
func (ac *Accelerant) stageOperands(a, b []float32) ([]*runner.DeviceBuffer, error) {
	bufA, err := ac.runner.AllocateFloat32s(a)
	if err != nil {
		return nil, err
	}
	bufB, err := ac.runner.AllocateFloat32s(b)
	if err != nil {
		ac.runner.Release(bufA)
		return nil, err
	}
	return []*runner.DeviceBuffer{bufA, bufB}, nil
}

func (ac *Accelerant) fail(op string, err error) error {
	err = opError(ac.Type(), op, err)
	ac.logger.Debug("accelerant operation failed", "op", op, "err", err)
	return err
}

// Close drains queued work, then frees kernels and, if owned, the device
func (ac *Accelerant) Close() error {
	ac.closeOnce.Do(func() {
		ac.closed.Store(true)
		ac.runner.Free()
		if ac.ownsDevice {
			ac.device.Free()
		}
	})
	return nil
}
