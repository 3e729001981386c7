package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/ArrayBench/runner/builder"
	"github.com/notargets/gocca"
)

// DeviceBuffer is a device memory region created by a Runner. It is owned by
// whoever allocated it until Release.
type DeviceBuffer struct {
	mem      *gocca.OCCAMemory
	dataType builder.DataType
	length   int
	bytes    int64
	released bool
}

// Len returns the number of elements
func (b *DeviceBuffer) Len() int { return b.length }

// Bytes returns the allocation size in bytes
func (b *DeviceBuffer) Bytes() int64 { return b.bytes }

// DataType returns the element type
func (b *DeviceBuffer) DataType() builder.DataType { return b.dataType }

// Memory exposes the gocca memory handle for kernel arguments
func (b *DeviceBuffer) Memory() *gocca.OCCAMemory { return b.mem }

// AllocateFrom allocates a buffer and fills it with raw host bytes laid out
// as elements of dt
func (kr *Runner) AllocateFrom(dt builder.DataType, raw []byte) (*DeviceBuffer, error) {
	elemSize := SizeOfType(dt)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: zero-length %v buffer", ErrAllocation, dt)
	}
	if int64(len(raw))%elemSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %v elements",
			ErrLayout, len(raw), dt)
	}

	kr.mu.Lock()
	defer kr.mu.Unlock()
	if kr.freed {
		return nil, fmt.Errorf("%w: runner freed", ErrAllocation)
	}

	mem := kr.Device.Malloc(int64(len(raw)), unsafe.Pointer(&raw[0]), nil)
	if mem == nil {
		return nil, fmt.Errorf("%w: %d bytes for %v", ErrAllocation, len(raw), dt)
	}
	buf := &DeviceBuffer{
		mem:      mem,
		dataType: dt,
		length:   int(int64(len(raw)) / elemSize),
		bytes:    int64(len(raw)),
	}
	kr.live[buf] = struct{}{}
	return buf, nil
}

// AllocateZeroed allocates a zero-initialized buffer of n elements
func (kr *Runner) AllocateZeroed(dt builder.DataType, n int) (*DeviceBuffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: zero-length %v buffer", ErrAllocation, dt)
	}
	// OCCA does not clear fresh allocations, so copy in explicit zeros
	return kr.AllocateFrom(dt, make([]byte, int64(n)*SizeOfType(dt)))
}

// AllocateFloat32s stages a host float32 array on the device
func (kr *Runner) AllocateFloat32s(values []float32) (*DeviceBuffer, error) {
	return kr.AllocateFrom(builder.Float32, EncodeFloat32s(values))
}

// AllocateBools stages a host flag array on the device
func (kr *Runner) AllocateBools(values []bool) (*DeviceBuffer, error) {
	return kr.AllocateFrom(builder.Bool, EncodeBools(values))
}

// ReadBytes copies the whole buffer back to the host
func (kr *Runner) ReadBytes(buf *DeviceBuffer) ([]byte, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	if buf.released {
		return nil, ErrBufferReleased
	}
	raw := make([]byte, buf.bytes)
	buf.mem.CopyTo(unsafe.Pointer(&raw[0]), buf.bytes)
	return raw, nil
}

// ReadFloat32s copies a float32 buffer back to the host
func (kr *Runner) ReadFloat32s(buf *DeviceBuffer) ([]float32, error) {
	if buf.dataType != builder.Float32 {
		return nil, fmt.Errorf("%w: buffer holds %v, not float32", ErrLayout, buf.dataType)
	}
	raw, err := kr.ReadBytes(buf)
	if err != nil {
		return nil, err
	}
	return DecodeFloat32s(raw, buf.length)
}

// ReadBools copies a flag buffer back to the host
func (kr *Runner) ReadBools(buf *DeviceBuffer) ([]bool, error) {
	if buf.dataType != builder.Bool {
		return nil, fmt.Errorf("%w: buffer holds %v, not bool", ErrLayout, buf.dataType)
	}
	raw, err := kr.ReadBytes(buf)
	if err != nil {
		return nil, err
	}
	return DecodeBools(raw, buf.length)
}

// Release frees device memory. Nil and already released buffers are skipped.
func (kr *Runner) Release(bufs ...*DeviceBuffer) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	for _, buf := range bufs {
		if buf == nil || buf.released {
			continue
		}
		buf.mem.Free()
		buf.released = true
		delete(kr.live, buf)
	}
}

// LiveBuffers returns the number of buffers allocated and not yet released
func (kr *Runner) LiveBuffers() int {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	return len(kr.live)
}
