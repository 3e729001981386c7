// File: runner/kernel_execution.go

package runner

import (
	"context"
	"fmt"
	"sort"
)

// Launch submits a kernel invocation to the runner's FIFO queue and returns
// immediately. The future is fulfilled exactly once, after the device has
// finished the kernel. Launches on one runner run in submission order, so a
// launch that reads another's output only has to be submitted after it.
func (kr *Runner) Launch(spec *LaunchSpec) *Future[struct{}] {
	if err := spec.Validate(kr.MaxThreadsPerGroup); err != nil {
		return Resolved(struct{}{}, fmt.Errorf("%w: %v", ErrLaunch, err))
	}
	if err := spec.CheckScalars(kr.MaxIntScalar()); err != nil {
		return Resolved(struct{}{}, fmt.Errorf("%w: %v", ErrLaunch, err))
	}

	kernel, exists := kr.Kernels[spec.Kernel]
	if !exists {
		return Resolved(struct{}{}, fmt.Errorf("%w: kernel %s not compiled - use BuildKernel first",
			ErrLaunch, spec.Kernel))
	}

	kr.mu.Lock()
	for _, b := range spec.Bindings {
		if b.Buffer.released {
			kr.mu.Unlock()
			return Resolved(struct{}{}, fmt.Errorf("%w: kernel %s index %d: %w",
				ErrLaunch, spec.Kernel, b.Index, ErrBufferReleased))
		}
	}
	kr.mu.Unlock()

	// Arguments are captured now; the buffers must stay alive until the
	// returned future completes.
	args := kr.buildKernelArguments(spec)
	deps := append([]*Future[struct{}](nil), spec.DependsOn...)
	name := spec.Kernel
	grid, group := spec.Grid.X, spec.Threadgroup.X

	return kr.queue.Submit(func() error {
		for _, dep := range deps {
			if _, err := dep.Wait(context.Background()); err != nil {
				return &DependencyError{Kernel: name, Err: err}
			}
		}

		kr.mu.Lock()
		defer kr.mu.Unlock()
		if kr.freed {
			return ErrQueueClosed
		}
		kr.Logger.Debug("kernel launch", "kernel", name, "grid", grid, "threadgroup", group)
		if err := kernel.RunWithArgs(args...); err != nil {
			return fmt.Errorf("%w: kernel %s: %v", ErrLaunch, name, err)
		}
		kr.Device.Finish()
		return nil
	})
}

// buildKernelArguments orders buffers by binding index, then appends the
// launch scalars (entries, groupCount, groupSize)
func (kr *Runner) buildKernelArguments(spec *LaunchSpec) []interface{} {
	bindings := append([]Binding(nil), spec.Bindings...)
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Index < bindings[j].Index
	})

	args := make([]interface{}, 0, len(bindings)+3)
	for _, b := range bindings {
		args = append(args, b.Buffer.Memory())
	}
	args = append(args,
		kr.IntScalar(spec.Entries),
		kr.IntScalar(spec.GroupCount()),
		kr.IntScalar(spec.Threadgroup.X),
	)
	return args
}
