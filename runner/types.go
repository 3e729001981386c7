// runner/types.go
package runner

import (
	"github.com/notargets/ArrayBench/runner/builder"
)

// SizeOfType returns the size in bytes of a data type
func SizeOfType(dt builder.DataType) int64 {
	switch dt {
	case builder.Bool:
		return 1
	case builder.Float32, builder.INT32:
		return 4
	case builder.Float64, builder.INT64:
		return 8
	default:
		return 8
	}
}

// Size is a three dimensional launch extent
type Size struct {
	X, Y, Z int
}

// Size1D returns the extent {n, 1, 1}
func Size1D(n int) Size {
	return Size{X: n, Y: 1, Z: 1}
}
