//go:build webgpu

package processor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notargets/ArrayBench/runner"
	"github.com/openfluke/webgpu/wgpu"
)

// WGSL sources. Workgroup width is substituted per pipeline; the flat index
// is folded from a 2D dispatch so grids past the per-dimension workgroup
// limit still cover every element.
const (
	wgslParams = `struct Params {
  entries : u32,
  pad0 : u32,
  pad1 : u32,
  pad2 : u32,
};
`
	wgslAddSource = wgslParams + `
@group(0) @binding(0) var<storage, read> a : array<f32>;
@group(0) @binding(1) var<storage, read> b : array<f32>;
@group(0) @binding(2) var<storage, read_write> result : array<f32>;
@group(0) @binding(3) var<uniform> params : Params;

@compute @workgroup_size(WIDTH)
fn main(@builtin(workgroup_id) wid : vec3<u32>,
        @builtin(num_workgroups) nwg : vec3<u32>,
        @builtin(local_invocation_id) lid : vec3<u32>) {
  let i = (wid.y * nwg.x + wid.x) * WIDTHu + lid.x;
  if (i >= params.entries) {
    return;
  }
  result[i] = a[i] + b[i];
}
`
	wgslCompareSource = wgslParams + `
@group(0) @binding(0) var<storage, read> a : array<f32>;
@group(0) @binding(1) var<storage, read> b : array<f32>;
@group(0) @binding(2) var<storage, read_write> flags : array<u32>;
@group(0) @binding(3) var<uniform> params : Params;

@compute @workgroup_size(WIDTH)
fn main(@builtin(workgroup_id) wid : vec3<u32>,
        @builtin(num_workgroups) nwg : vec3<u32>,
        @builtin(local_invocation_id) lid : vec3<u32>) {
  let i = (wid.y * nwg.x + wid.x) * WIDTHu + lid.x;
  if (i >= params.entries) {
    return;
  }
  flags[i] = select(0u, 1u, a[i] == b[i]);
}
`
	wgslAllTrueSource = wgslParams + `
@group(0) @binding(0) var<storage, read> flags : array<u32>;
@group(0) @binding(1) var<storage, read_write> result : array<u32>;
@group(0) @binding(2) var<uniform> params : Params;

@compute @workgroup_size(1)
fn main() {
  var all = 1u;
  for (var i = 0u; i < params.entries; i = i + 1u) {
    if (flags[i] == 0u) {
      all = 0u;
      break;
    }
  }
  result[0] = all;
}
`
)

const (
	wgslAdd     = "add"
	wgslCompare = "compare"
	wgslAllTrue = "allTrue"

	mapTimeout = 30 * time.Second
)

type pipelineKey struct {
	kernel string
	width  int
}

// WebGPU runs both operations as WGSL compute shaders through wgpu. It owns
// its adapter and device and serializes all submissions on one queue.
type WebGPU struct {
	instance  *wgpu.Instance
	adapter   *wgpu.Adapter
	device    *wgpu.Device
	gpuQueue  *wgpu.Queue
	name      string
	backend   string
	maxWidth  int
	maxGroups int
	logger    *slog.Logger

	mu        sync.Mutex
	pipelines map[pipelineKey]*wgpu.ComputePipeline
	queue     *runner.Queue

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewWebGPU acquires a high performance adapter, falling back to low power,
// and opens a device on it. Failure returns an error wrapping
// ErrBackendUnavailable.
func NewWebGPU(opts ...Option) (*WebGPU, error) {
	o := newOptions(opts)

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("%w: wgpu.CreateInstance returned nil", ErrBackendUnavailable)
	}

	var adapter *wgpu.Adapter
	var err error
	for _, pp := range []wgpu.PowerPreference{
		wgpu.PowerPreferenceHighPerformance,
		wgpu.PowerPreferenceLowPower,
	} {
		adapter, err = instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pp})
		if err == nil && adapter != nil {
			break
		}
	}
	if adapter == nil {
		instance.Release()
		if err == nil {
			err = fmt.Errorf("no adapter")
		}
		return nil, fmt.Errorf("%w: request adapter: %w", ErrBackendUnavailable, err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{})
	if err != nil || device == nil {
		adapter.Release()
		instance.Release()
		if err == nil {
			err = fmt.Errorf("no device")
		}
		return nil, fmt.Errorf("%w: request device: %w", ErrBackendUnavailable, err)
	}

	info := adapter.GetInfo()
	limits := adapter.GetLimits().Limits
	maxWidth := int(min(limits.MaxComputeInvocationsPerWorkgroup, limits.MaxComputeWorkgroupSizeX))
	if o.maxThreads > 0 && o.maxThreads < maxWidth {
		maxWidth = o.maxThreads
	}
	if maxWidth < 1 {
		maxWidth = 1
	}
	maxGroups := int(limits.MaxComputeWorkgroupsPerDimension)
	if maxGroups < 1 {
		maxGroups = 65535
	}

	g := &WebGPU{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		gpuQueue:  device.GetQueue(),
		name:      strings.TrimSpace(info.Name),
		backend:   fmt.Sprint(info.BackendType),
		maxWidth:  maxWidth,
		maxGroups: maxGroups,
		pipelines: make(map[pipelineKey]*wgpu.ComputePipeline),
		queue:     runner.NewQueue(),
	}
	g.logger = o.logger.With("device", g.Type())
	if _, err := g.pipeline(wgslAllTrue, 1); err != nil {
		g.Close()
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	g.logger.Debug("webgpu ready", "adapter", g.name, "backend", g.backend,
		"max_threads_per_group", maxWidth)
	return g, nil
}

// Type returns "WebGPU/<adapter>", or "WebGPU" when the adapter has no name
func (g *WebGPU) Type() string {
	if g.name == "" {
		return "WebGPU"
	}
	return "WebGPU/" + g.name
}

// Features describes the adapter, for logging
func (g *WebGPU) Features() []string {
	return []string{
		"adapter:" + g.name,
		"backend:" + g.backend,
		fmt.Sprintf("threadgroup<=%d", g.maxWidth),
	}
}

// AddArrays dispatches the add shader over N invocations and maps the sum
// back when the queue has drained
func (g *WebGPU) AddArrays(a, b []float32) *runner.Future[[]float32] {
	checkLengths(g.Type(), OpAddArrays, a, b)
	n := len(a)
	if n == 0 {
		return runner.Resolved([]float32{}, nil)
	}
	if g.closed.Load() {
		return runner.Resolved[[]float32](nil, g.fail(OpAddArrays, ErrClosed))
	}

	var sum []float32
	done := g.queue.Submit(func() error {
		g.mu.Lock()
		defer g.mu.Unlock()

		bufA, bufB, err := g.stageOperands(a, b)
		if err != nil {
			return err
		}
		defer bufA.Destroy()
		defer bufB.Destroy()
		out, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "result",
			Size:  uint64(n) * 4,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		})
		if err != nil {
			return fmt.Errorf("%w: result buffer: %v", ErrResourceExhausted, err)
		}
		defer out.Destroy()

		if err := g.dispatch(wgslAdd, n, bufA, bufB, out); err != nil {
			return err
		}
		raw, err := g.readBack(out, uint64(n)*4)
		if err != nil {
			return err
		}
		sum, err = runner.DecodeFloat32s(raw, n)
		return err
	})
	return runner.Then(done, func(_ struct{}, err error) ([]float32, error) {
		if err != nil {
			return nil, g.fail(OpAddArrays, err)
		}
		return sum, nil
	})
}

// CompareArrays writes one u32 flag per element, then folds the flags in a
// second submission that reads the first's output buffer on the device
func (g *WebGPU) CompareArrays(a, b []float32) *runner.Future[bool] {
	checkLengths(g.Type(), OpCompareArrays, a, b)
	n := len(a)
	if n == 0 {
		return runner.Resolved(true, nil)
	}
	if g.closed.Load() {
		return runner.Resolved(false, g.fail(OpCompareArrays, ErrClosed))
	}

	var matched bool
	done := g.queue.Submit(func() error {
		g.mu.Lock()
		defer g.mu.Unlock()

		bufA, bufB, err := g.stageOperands(a, b)
		if err != nil {
			return err
		}
		defer bufA.Destroy()
		defer bufB.Destroy()
		flags, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "flags",
			Size:  uint64(n) * 4,
			Usage: wgpu.BufferUsageStorage,
		})
		if err != nil {
			return fmt.Errorf("%w: flags buffer: %v", ErrResourceExhausted, err)
		}
		defer flags.Destroy()
		result, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "allTrue",
			Size:  4,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		})
		if err != nil {
			return fmt.Errorf("%w: result buffer: %v", ErrResourceExhausted, err)
		}
		defer result.Destroy()

		if err := g.dispatch(wgslCompare, n, bufA, bufB, flags); err != nil {
			return err
		}
		if err := g.dispatch(wgslAllTrue, n, flags, result); err != nil {
			return err
		}
		raw, err := g.readBack(result, 4)
		if err != nil {
			return err
		}
		values, err := runner.DecodeUint32Bools(raw, 1)
		if err != nil {
			return err
		}
		matched = values[0]
		return nil
	})
	return runner.Then(done, func(_ struct{}, err error) (bool, error) {
		if err != nil {
			return false, g.fail(OpCompareArrays, err)
		}
		return matched, nil
	})
}

// stageOperands uploads a and b into storage buffers
func (g *WebGPU) stageOperands(a, b []float32) (*wgpu.Buffer, *wgpu.Buffer, error) {
	bufA, err := g.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "a",
		Contents: runner.EncodeFloat32s(a),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: operand a: %v", ErrResourceExhausted, err)
	}
	bufB, err := g.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "b",
		Contents: runner.EncodeFloat32s(b),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		bufA.Destroy()
		return nil, nil, fmt.Errorf("%w: operand b: %v", ErrResourceExhausted, err)
	}
	return bufA, bufB, nil
}

// dispatch binds buffers at 0..k-1 plus a params uniform at k, submits one
// compute pass and waits for the device to go idle. Callers hold g.mu.
func (g *WebGPU) dispatch(kernel string, entries int, buffers ...*wgpu.Buffer) error {
	for i, buf := range buffers {
		if buf == nil {
			return fmt.Errorf("%w: %s binding %d not allocated", ErrResourceExhausted, kernel, i)
		}
	}

	width, groups := 1, 1
	if kernel != wgslAllTrue {
		width = runner.ThreadgroupFor(entries, g.maxWidth)
		groups = (entries + width - 1) / width
	}
	pipeline, err := g.pipeline(kernel, width)
	if err != nil {
		return err
	}

	params := g.storageUniform(uint32(entries))
	if params == nil {
		return fmt.Errorf("%w: %s params buffer", ErrResourceExhausted, kernel)
	}
	defer params.Destroy()

	entriesDesc := make([]wgpu.BindGroupEntry, 0, len(buffers)+1)
	for i, buf := range buffers {
		entriesDesc = append(entriesDesc, wgpu.BindGroupEntry{
			Binding: uint32(i), Buffer: buf, Size: buf.GetSize(),
		})
	}
	entriesDesc = append(entriesDesc, wgpu.BindGroupEntry{
		Binding: uint32(len(buffers)), Buffer: params, Size: params.GetSize(),
	})
	bindGroup, err := g.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  pipeline.GetBindGroupLayout(0),
		Entries: entriesDesc,
	})
	if err != nil {
		return fmt.Errorf("%w: %s bind group: %v", ErrSubmission, kernel, err)
	}
	defer bindGroup.Release()

	gx, gy := groups, 1
	if gx > g.maxGroups {
		gy = (gx + g.maxGroups - 1) / g.maxGroups
		gx = g.maxGroups
	}

	enc, err := g.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: %s encoder: %v", ErrSubmission, kernel, err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32(gx), uint32(gy), 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("%w: %s finish: %v", ErrSubmission, kernel, err)
	}
	g.logger.Debug("kernel launch", "kernel", kernel, "grid", entries,
		"threadgroup", width, "dispatch", fmt.Sprintf("%dx%d", gx, gy))
	g.gpuQueue.Submit(cmd)
	g.device.Poll(true, nil)
	return nil
}

func (g *WebGPU) storageUniform(entries uint32) *wgpu.Buffer {
	buf, err := g.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "params",
		Contents: wgpu.ToBytes([]uint32{entries, 0, 0, 0}),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil
	}
	return buf
}

// pipeline returns the compute pipeline for kernel at a workgroup width,
// compiling it on first use. Callers hold g.mu or have exclusive access.
func (g *WebGPU) pipeline(kernel string, width int) (*wgpu.ComputePipeline, error) {
	key := pipelineKey{kernel: kernel, width: width}
	if p, ok := g.pipelines[key]; ok {
		return p, nil
	}

	var source string
	switch kernel {
	case wgslAdd:
		source = wgslAddSource
	case wgslCompare:
		source = wgslCompareSource
	case wgslAllTrue:
		source = wgslAllTrueSource
	default:
		return nil, fmt.Errorf("unknown kernel %s", kernel)
	}
	source = strings.ReplaceAll(source, "WIDTH", fmt.Sprint(width))

	module, err := g.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          kernel,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader %s: %w", kernel, err)
	}
	defer module.Release()

	p, err := g.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: kernel,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline %s: %w", kernel, err)
	}
	g.pipelines[key] = p
	return p, nil
}

// readBack copies src into a mappable staging buffer and returns its bytes
func (g *WebGPU) readBack(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: staging buffer: %v", ErrResourceExhausted, err)
	}
	defer staging.Destroy()

	enc, err := g.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: readback encoder: %v", ErrSubmission, err)
	}
	enc.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: readback finish: %v", ErrSubmission, err)
	}
	g.gpuQueue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("%w: map status %d", ErrSubmission, status)
		}
		close(done)
	})

	timeout := time.After(mapTimeout)
Loop:
	for {
		g.device.Poll(true, nil)
		select {
		case <-done:
			break Loop
		case <-timeout:
			return nil, fmt.Errorf("%w: map timeout", ErrSubmission)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := staging.GetMappedRange(0, uint(size))
	defer staging.Unmap()
	if data == nil {
		return nil, fmt.Errorf("%w: mapped range nil", ErrSubmission)
	}
	return append([]byte(nil), data...), nil
}

func (g *WebGPU) fail(op string, err error) error {
	err = opError(g.Type(), op, err)
	g.logger.Debug("webgpu operation failed", "op", op, "err", err)
	return err
}

// Close drains queued work, then releases pipelines, device and adapter
func (g *WebGPU) Close() error {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		g.queue.Close()

		g.mu.Lock()
		defer g.mu.Unlock()
		for _, p := range g.pipelines {
			p.Release()
		}
		g.pipelines = nil
		g.device.Release()
		g.adapter.Release()
		g.instance.Release()
	})
	return nil
}
