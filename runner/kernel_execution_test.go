package runner

import (
	"context"
	"testing"

	"github.com/notargets/ArrayBench/runner/builder"
	"github.com/notargets/ArrayBench/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	device := utils.CreateTestDevice()
	t.Cleanup(device.Free)

	kr := NewRunner(device, cfg)
	t.Cleanup(kr.Free)
	require.NoError(t, kr.BuildKernels())
	return kr
}

func TestLaunchAddArrayItem(t *testing.T) {
	// a narrow threadgroup forces several groups and a partial trailing one
	kr := newTestRunner(t, Config{MaxThreadsPerGroup: 3})

	a := []float32{0, 1, 2, 3, 4, 5, 6}
	b := []float32{7, 6, 5, 4, 3, 2, 1}
	bufA, err := kr.AllocateFloat32s(a)
	require.NoError(t, err)
	bufB, err := kr.AllocateFloat32s(b)
	require.NoError(t, err)
	out, err := kr.AllocateZeroed(builder.Float32, len(a))
	require.NoError(t, err)
	defer kr.Release(bufA, bufB, out)

	spec := kr.ConfigureLaunch(builder.AddArrayItem, len(a), len(a), bufA, bufB, out)
	assert.Equal(t, 3, spec.Threadgroup.X)
	assert.Equal(t, 3, spec.GroupCount())

	_, err = kr.Launch(spec).Wait(context.Background())
	require.NoError(t, err)

	got, err := kr.ReadFloat32s(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 7, 7, 7, 7, 7, 7}, got)
}

func TestLaunchCompareThenReduce(t *testing.T) {
	kr := newTestRunner(t, Config{})

	tests := []struct {
		name     string
		a, b     []float32
		expected bool
	}{
		{"Equal", []float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}, true},
		{"LastDiffers", []float32{1, 2, 3, 4}, []float32{1, 2, 3, 5}, false},
		{"FirstDiffers", []float32{0, 2}, []float32{1, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bufA, err := kr.AllocateFloat32s(tt.a)
			require.NoError(t, err)
			bufB, err := kr.AllocateFloat32s(tt.b)
			require.NoError(t, err)
			flags, err := kr.AllocateZeroed(builder.Bool, len(tt.a))
			require.NoError(t, err)
			result, err := kr.AllocateZeroed(builder.Bool, 1)
			require.NoError(t, err)
			defer kr.Release(bufA, bufB, flags, result)

			n := len(tt.a)
			compare := kr.Launch(kr.ConfigureLaunch(builder.CompareArrayItem, n, n, bufA, bufB, flags))
			reduce := kr.Launch(kr.ConfigureLaunch(builder.AllTrueArray, n, 1, flags, result).After(compare))

			_, err = reduce.Wait(context.Background())
			require.NoError(t, err)
			_, ok, err := compare.Result()
			require.True(t, ok, "compare must complete before the reduction")
			require.NoError(t, err)

			got, err := kr.ReadBools(result)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got[0])
		})
	}
}

func TestLaunchBlockedReduction(t *testing.T) {
	kr := newTestRunner(t, Config{Config: builder.Config{ReduceChunk: 4}})

	values := make([]bool, 10)
	for i := range values {
		values[i] = i != 9
	}
	flags, err := kr.AllocateBools(values)
	require.NoError(t, err)
	partial, err := kr.AllocateZeroed(builder.Bool, 3)
	require.NoError(t, err)
	defer kr.Release(flags, partial)

	_, err = kr.Launch(kr.ConfigureLaunch(builder.AllTrueBlocks, len(values), 3, flags, partial)).
		Wait(context.Background())
	require.NoError(t, err)

	got, err := kr.ReadBools(partial)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, got)
}

func TestLaunchErrors(t *testing.T) {
	kr := newTestRunner(t, Config{})

	buf, err := kr.AllocateZeroed(builder.Bool, 4)
	require.NoError(t, err)
	result, err := kr.AllocateZeroed(builder.Bool, 1)
	require.NoError(t, err)

	t.Run("UnknownKernel", func(t *testing.T) {
		_, err := kr.Launch(kr.ConfigureLaunch("noSuchKernel", 4, 4, buf)).Wait(context.Background())
		assert.ErrorIs(t, err, ErrLaunch)
	})

	t.Run("InvalidShape", func(t *testing.T) {
		spec := kr.ConfigureLaunch(builder.AllTrueArray, 4, 1, buf, result)
		spec.Threadgroup = Size1D(2)
		_, err := kr.Launch(spec).Wait(context.Background())
		assert.ErrorIs(t, err, ErrLaunch)
	})

	t.Run("FailedDependency", func(t *testing.T) {
		failed := Resolved(struct{}{}, ErrAllocation)
		spec := kr.ConfigureLaunch(builder.AllTrueArray, 4, 1, buf, result).After(failed)
		_, err := kr.Launch(spec).Wait(context.Background())
		assert.ErrorIs(t, err, ErrDependencyFailed)
		assert.ErrorIs(t, err, ErrAllocation)
	})

	t.Run("FailedDependencyChain", func(t *testing.T) {
		failed := Resolved(struct{}{}, ErrAllocation)
		partial, err := kr.AllocateZeroed(builder.Bool, 1)
		require.NoError(t, err)
		defer kr.Release(partial)

		fold := kr.Launch(kr.ConfigureLaunch(builder.AllTrueBlocks, 4, 1, buf, partial).After(failed))
		reduce := kr.Launch(kr.ConfigureLaunch(builder.AllTrueArray, 1, 1, partial, result).After(fold))
		_, err = reduce.Wait(context.Background())
		assert.ErrorIs(t, err, ErrDependencyFailed)
		assert.ErrorIs(t, err, ErrAllocation)

		var dep *DependencyError
		require.ErrorAs(t, err, &dep)
		assert.Equal(t, builder.AllTrueArray, dep.Kernel)
		assert.Equal(t, ErrAllocation, RootCause(err))
	})

	t.Run("ReleasedBuffer", func(t *testing.T) {
		gone, err := kr.AllocateZeroed(builder.Bool, 4)
		require.NoError(t, err)
		kr.Release(gone)
		_, err = kr.Launch(kr.ConfigureLaunch(builder.AllTrueArray, 4, 1, gone, result)).
			Wait(context.Background())
		assert.ErrorIs(t, err, ErrLaunch)
		assert.ErrorIs(t, err, ErrBufferReleased)
	})

	t.Run("AfterFree", func(t *testing.T) {
		kr.Free()
		_, err := kr.Launch(kr.ConfigureLaunch(builder.AllTrueArray, 4, 1, buf, result)).
			Wait(context.Background())
		assert.Error(t, err)
	})
}
