package builder

import (
	"fmt"
	"math"
	"strings"
)

// DataType represents the element type of a device buffer
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
	Bool
)

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// Kernel names shared by the kernel sources and the launch code
const (
	AddArrayItem     = "addArrayItem"
	CompareArrayItem = "compareArrayItem"
	AllTrueArray     = "allTrueArray"
	AllTrueBlocks    = "allTrueBlocks"
)

// DefaultReduceChunk is the number of flags each work item folds in the
// blocked all-true reduction.
const DefaultReduceChunk = 1024

// Config holds configuration for creating a Builder
type Config struct {
	IntType     DataType // type of the entries/groupCount/groupSize scalars
	ReduceChunk int
}

// Builder generates the OKL preamble and kernel sources
type Builder struct {
	IntType     DataType
	ReduceChunk int

	// Generated code
	KernelPreamble string
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	intType := cfg.IntType
	if intType == 0 {
		intType = INT32
	}
	if intType != INT32 && intType != INT64 {
		panic(fmt.Sprintf("IntType must be INT32 or INT64, got %v", intType))
	}
	chunk := cfg.ReduceChunk
	if chunk == 0 {
		chunk = DefaultReduceChunk
	}
	if chunk < 0 {
		panic(fmt.Sprintf("ReduceChunk must be positive, got %d", chunk))
	}
	return &Builder{
		IntType:     intType,
		ReduceChunk: chunk,
	}
}

// GeneratePreamble generates the kernel preamble with type definitions and constants
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}

	// Element types are fixed: 4-byte IEEE-754 floats and 1-byte flags
	sb.WriteString("typedef float real_t;\n")
	sb.WriteString("typedef char flag_t;\n")
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("#define REDUCE_CHUNK %d\n", kb.ReduceChunk))
	sb.WriteString("\n")

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// KernelSource returns the full OKL source (preamble included) for a named kernel
func (kb *Builder) KernelSource(kernelName string) (string, error) {
	body, exists := kernelBodies[kernelName]
	if !exists {
		return "", fmt.Errorf("no kernel source for %s", kernelName)
	}
	if kb.KernelPreamble == "" {
		kb.GeneratePreamble()
	}
	return kb.KernelPreamble + body, nil
}

// KernelNames returns the names of all kernels the builder can generate
func (kb *Builder) KernelNames() []string {
	return []string{AddArrayItem, CompareArrayItem, AllTrueArray, AllTrueBlocks}
}

// GetIntSize returns the size of int_t in bytes
func (kb *Builder) GetIntSize() int {
	if kb.IntType == INT32 {
		return 4
	}
	return 8
}

// MaxIntScalar returns the largest count an int_t kernel argument can hold
func (kb *Builder) MaxIntScalar() int {
	if kb.GetIntSize() == 4 {
		return math.MaxInt32
	}
	return math.MaxInt
}

// IntScalar converts a host count into the value passed for an int_t kernel argument
func (kb *Builder) IntScalar(v int) interface{} {
	if kb.IntType == INT32 {
		return int32(v)
	}
	return int64(v)
}
