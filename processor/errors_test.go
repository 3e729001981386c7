package processor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/notargets/ArrayBench/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"Allocation", fmt.Errorf("%w: 64 MB", runner.ErrAllocation), ErrResourceExhausted},
		{"Exhausted", ErrResourceExhausted, ErrResourceExhausted},
		{"Launch", fmt.Errorf("%w: kernel addArrayItem", runner.ErrLaunch), ErrSubmission},
		{"Dependency", runner.ErrDependencyFailed, ErrSubmission},
		{"QueueClosed", runner.ErrQueueClosed, ErrClosed},
		{"Closed", ErrClosed, ErrClosed},
		{"Other", errors.New("driver"), ErrSubmission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := opError("OpenMP", OpAddArrays, tt.err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err, "cause stays reachable")

			var opErr *OpError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, "OpenMP", opErr.Backend)
			assert.Equal(t, OpAddArrays, opErr.Op)
			assert.Contains(t, err.Error(), "OpenMP addArrays")
		})
	}

	assert.NoError(t, opError("CPU", OpCompareArrays, nil))

	// already classified errors pass through unchanged
	first := opError("CUDA", OpCompareArrays, runner.ErrLaunch)
	assert.Same(t, first, opError("CUDA", OpAddArrays, first))
}

func TestParseReduction(t *testing.T) {
	for in, want := range map[string]Reduction{"": ReduceSerial, "serial": ReduceSerial, " Blocked ": ReduceBlocked} {
		got, err := ParseReduction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseReduction("tree")
	assert.Error(t, err)
	assert.Equal(t, "blocked", ReduceBlocked.String())
}

func TestWithDevicesExpandsModes(t *testing.T) {
	o := newOptions([]Option{WithDevices("CUDA", " ", `{"mode": "Serial"}`)})
	assert.Equal(t, []string{`{"mode": "CUDA", "device_id": 0}`, `{"mode": "Serial"}`}, o.devices)
}

func TestAvailableAlwaysIncludesCPU(t *testing.T) {
	processors := Available(WithDevices())
	defer CloseAll(processors)

	require.Len(t, processors, 1)
	assert.Equal(t, "CPU", processors[0].Type())
}
