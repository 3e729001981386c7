package runner

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Host <-> device byte layout.
//
// float32 elements are 4 bytes, IEEE-754 binary32 in native byte order, so
// the bit pattern (NaN payloads and signed zeros included) survives the round
// trip. Flags are 1 byte each: 0 is false, anything else is true. The device
// and the host are assumed to share byte order.

// EncodeFloat32s serializes values into the float32 device layout
func EncodeFloat32s(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32s reads n float32 elements from raw device bytes
func DecodeFloat32s(raw []byte, n int) ([]float32, error) {
	if n < 0 || len(raw) < n*4 {
		return nil, fmt.Errorf("%w: need %d bytes for %d float32 values, have %d",
			ErrLayout, n*4, n, len(raw))
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// EncodeBools serializes flags into the 1-byte device layout
func EncodeBools(values []bool) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		if v {
			out[i] = 1
		}
	}
	return out
}

// DecodeBools reads n 1-byte flags from raw device bytes
func DecodeBools(raw []byte, n int) ([]bool, error) {
	if n < 0 || len(raw) < n {
		return nil, fmt.Errorf("%w: need %d bytes for %d flags, have %d",
			ErrLayout, n, n, len(raw))
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = raw[i] != 0
	}
	return out, nil
}

// DecodeUint32Bools reads n flags stored as 4-byte words, the layout used
// where the device language has no byte-sized storage type.
func DecodeUint32Bools(raw []byte, n int) ([]bool, error) {
	if n < 0 || len(raw) < n*4 {
		return nil, fmt.Errorf("%w: need %d bytes for %d word flags, have %d",
			ErrLayout, n*4, n, len(raw))
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = binary.NativeEndian.Uint32(raw[i*4:]) != 0
	}
	return out, nil
}
