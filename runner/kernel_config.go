// File: runner/kernel_config.go

package runner

import (
	"fmt"
)

// Binding places a buffer at a kernel argument index
type Binding struct {
	Buffer *DeviceBuffer
	Index  int
}

// LaunchSpec describes one kernel invocation: which kernel, which buffers at
// which argument index, and the launch shape. Entries is the element count
// handed to the kernel, which may differ from the grid width for reductions.
type LaunchSpec struct {
	Kernel      string
	Bindings    []Binding
	Entries     int
	Grid        Size
	Threadgroup Size
	DependsOn   []*Future[struct{}]
}

// ThreadgroupFor returns the threadgroup width for a grid of n threads on a
// device allowing at most maxThreads per group: min(n, maxThreads), never
// below 1.
func ThreadgroupFor(n, maxThreads int) int {
	width := n
	if maxThreads < width {
		width = maxThreads
	}
	if width < 1 {
		width = 1
	}
	return width
}

// ConfigureLaunch builds a one dimensional launch of gridWidth threads over
// entries elements. Buffers are bound at indices 0..len(buffers)-1 in order.
func (kr *Runner) ConfigureLaunch(kernel string, entries, gridWidth int,
	buffers ...*DeviceBuffer) *LaunchSpec {
	bindings := make([]Binding, len(buffers))
	for i, buf := range buffers {
		bindings[i] = Binding{Buffer: buf, Index: i}
	}
	return &LaunchSpec{
		Kernel:      kernel,
		Bindings:    bindings,
		Entries:     entries,
		Grid:        Size1D(gridWidth),
		Threadgroup: Size1D(ThreadgroupFor(gridWidth, kr.MaxThreadsPerGroup)),
	}
}

// After adds launches that must succeed before this one runs
func (ls *LaunchSpec) After(deps ...*Future[struct{}]) *LaunchSpec {
	ls.DependsOn = append(ls.DependsOn, deps...)
	return ls
}

// GroupCount returns the number of threadgroups needed to cover the grid
func (ls *LaunchSpec) GroupCount() int {
	return (ls.Grid.X + ls.Threadgroup.X - 1) / ls.Threadgroup.X
}

// Validate checks the launch shape and bindings against a threadgroup limit
func (ls *LaunchSpec) Validate(maxThreads int) error {
	if ls.Grid.Y != 1 || ls.Grid.Z != 1 || ls.Threadgroup.Y != 1 || ls.Threadgroup.Z != 1 {
		return fmt.Errorf("kernel %s: only one dimensional launches are supported, got grid %v threadgroup %v",
			ls.Kernel, ls.Grid, ls.Threadgroup)
	}
	if ls.Grid.X < 1 {
		return fmt.Errorf("kernel %s: grid width must be positive, got %d", ls.Kernel, ls.Grid.X)
	}
	if ls.Threadgroup.X < 1 {
		return fmt.Errorf("kernel %s: threadgroup width must be positive, got %d",
			ls.Kernel, ls.Threadgroup.X)
	}
	if ls.Threadgroup.X > ls.Grid.X {
		return fmt.Errorf("kernel %s: threadgroup width %d exceeds grid width %d",
			ls.Kernel, ls.Threadgroup.X, ls.Grid.X)
	}
	if ls.Threadgroup.X > maxThreads {
		return fmt.Errorf("kernel %s: threadgroup width %d exceeds device limit %d",
			ls.Kernel, ls.Threadgroup.X, maxThreads)
	}
	if ls.Entries < 0 {
		return fmt.Errorf("kernel %s: negative entry count %d", ls.Kernel, ls.Entries)
	}

	seen := make([]bool, len(ls.Bindings))
	for _, b := range ls.Bindings {
		if b.Index < 0 || b.Index >= len(ls.Bindings) {
			return fmt.Errorf("kernel %s: binding index %d out of range", ls.Kernel, b.Index)
		}
		if seen[b.Index] {
			return fmt.Errorf("kernel %s: binding index %d bound twice", ls.Kernel, b.Index)
		}
		seen[b.Index] = true
		if b.Buffer == nil {
			return fmt.Errorf("kernel %s: nil buffer at index %d", ls.Kernel, b.Index)
		}
	}
	return nil
}

// CheckScalars rejects launches whose entry count or covered thread range
// does not fit the kernel's int_t, whose largest value is maxInt
func (ls *LaunchSpec) CheckScalars(maxInt int) error {
	if ls.Entries > maxInt {
		return fmt.Errorf("kernel %s: entry count %d exceeds int_t limit %d", ls.Kernel, ls.Entries, maxInt)
	}
	if ls.Threadgroup.X > 0 && ls.GroupCount() > maxInt/ls.Threadgroup.X {
		return fmt.Errorf("kernel %s: %d groups of %d threads exceed int_t limit %d",
			ls.Kernel, ls.GroupCount(), ls.Threadgroup.X, maxInt)
	}
	return nil
}
