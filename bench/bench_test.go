package bench

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/notargets/ArrayBench/processor"
	"github.com/notargets/ArrayBench/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor wraps the CPU backend with scripted failures and corruption
type fakeProcessor struct {
	name       string
	addErr     error
	compareErr error
	corrupt    bool
	hang       bool
	adds       int
}

func (f *fakeProcessor) Type() string { return f.name }

func (f *fakeProcessor) AddArrays(a, b []float32) *runner.Future[[]float32] {
	f.adds++
	if f.hang {
		return runner.NewFuture[[]float32]()
	}
	if f.addErr != nil {
		return runner.Resolved[[]float32](nil, f.addErr)
	}
	sum, _ := processor.NewCPU().AddArrays(a, b).Wait(context.Background())
	if f.corrupt && len(sum) > 0 {
		sum[len(sum)-1]++
	}
	return runner.Resolved(sum, nil)
}

func (f *fakeProcessor) CompareArrays(a, b []float32) *runner.Future[bool] {
	if f.compareErr != nil {
		return runner.Resolved(false, f.compareErr)
	}
	return processor.NewCPU().CompareArrays(a, b)
}

func (f *fakeProcessor) Close() error { return nil }

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestGenerateOperands(t *testing.T) {
	a, b := GenerateOperands(4)
	assert.Equal(t, []float32{0, 1, 2, 3}, a)
	assert.Equal(t, []float32{4, 3, 2, 1}, b)

	a, b = GenerateOperands(0)
	assert.Empty(t, a)
	assert.Empty(t, b)
}

func TestSuiteAllMatching(t *testing.T) {
	logger, out := testLogger()
	cpu := processor.NewCPU()
	accel := &fakeProcessor{name: "Fake"}
	suite := &Suite{
		Config:     Config{ArrayLength: 1024, Repetitions: 3},
		Logger:     logger,
		Processors: []processor.Processor{cpu, accel},
	}

	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1024, report.ArrayLength)
	require.Len(t, report.Legs, 2)
	for _, leg := range report.Legs {
		assert.NoError(t, leg.Err)
		assert.Len(t, leg.Timings, 3)
		assert.Equal(t, 3, leg.Stats().Samples)
	}
	assert.Equal(t, 3, accel.adds)

	// one comparison (CPU result vs Fake result) on each of the two processors
	require.Len(t, report.Validations, 2)
	assert.Equal(t, "CPU", report.Validations[0].Backend)
	assert.Equal(t, "Fake", report.Validations[1].Backend)
	for _, v := range report.Validations {
		assert.Equal(t, "CPU", v.Left)
		assert.Equal(t, "Fake", v.Right)
		assert.True(t, v.Matched)
	}
	assert.True(t, report.AllMatched())
	assert.Equal(t, OutcomeMatched, report.Outcome())

	logs := out.String()
	assert.Contains(t, logs, "Loading 2 arrays with 1024 items each...")
	assert.Contains(t, logs, "Loaded 8 KB of data")
	assert.Contains(t, logs, "They are matching")
}

func TestSuiteDetectsDisagreement(t *testing.T) {
	logger, out := testLogger()
	suite := &Suite{
		Config:     Config{ArrayLength: 16},
		Logger:     logger,
		Processors: []processor.Processor{processor.NewCPU(), &fakeProcessor{name: "Bad", corrupt: true}},
	}
	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Validations, 2)
	for _, v := range report.Validations {
		assert.NoError(t, v.Err)
		assert.False(t, v.Matched)
	}
	assert.False(t, report.AllMatched())
	assert.Equal(t, OutcomeMismatch, report.Outcome())
	assert.Contains(t, out.String(), "They are not matching")
}

func TestSuiteRecordsFailuresAndContinues(t *testing.T) {
	logger, _ := testLogger()
	boom := errors.New("device lost")
	suite := &Suite{
		Config: Config{ArrayLength: 8},
		Logger: logger,
		Processors: []processor.Processor{
			processor.NewCPU(),
			&fakeProcessor{name: "Broken", addErr: boom},
			&fakeProcessor{name: "Flaky", compareErr: boom},
		},
	}
	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Legs, 3)
	assert.ErrorIs(t, report.Legs[1].Err, boom)
	assert.Empty(t, report.Legs[1].Timings)

	// CPU vs Flaky on each of the three processors
	require.Len(t, report.Validations, 3)
	assert.True(t, report.Validations[0].Matched)
	assert.True(t, report.Validations[1].Matched)
	assert.ErrorIs(t, report.Validations[2].Err, boom)
	assert.False(t, report.AllMatched())

	legs, validations := report.Failed()
	assert.Len(t, legs, 1)
	assert.Len(t, validations, 1)
	assert.Equal(t, OutcomeFailed, report.Outcome())
}

func TestSuiteWaitTimeout(t *testing.T) {
	logger, _ := testLogger()
	suite := &Suite{
		Config:     Config{ArrayLength: 8, WaitTimeout: 20 * time.Millisecond},
		Logger:     logger,
		Processors: []processor.Processor{processor.NewCPU(), &fakeProcessor{name: "Stuck", hang: true}},
	}
	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Legs[1].Err, context.DeadlineExceeded)
	assert.Empty(t, report.Validations)
	assert.False(t, report.AllMatched())
	assert.Equal(t, OutcomeFailed, report.Outcome())
}

func TestSuiteCancelled(t *testing.T) {
	logger, _ := testLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	suite := &Suite{
		Config:     Config{ArrayLength: 8},
		Logger:     logger,
		Processors: []processor.Processor{&fakeProcessor{name: "Stuck", hang: true}},
	}
	report, err := suite.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Len(t, report.Legs, 1)
}

func TestSuiteSingleProcessorHasNothingToValidate(t *testing.T) {
	logger, out := testLogger()
	suite := &Suite{
		Config:     Config{ArrayLength: 8},
		Logger:     logger,
		Processors: []processor.Processor{processor.NewCPU()},
	}
	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Validations)
	assert.False(t, report.Validated())
	assert.Equal(t, OutcomeUnvalidated, report.Outcome())
	require.Len(t, report.Legs, 1)
	assert.NoError(t, report.Legs[0].Err)
	assert.True(t, strings.Contains(out.String(), "nothing to validate"))
}

func TestSuiteZeroLength(t *testing.T) {
	logger, _ := testLogger()
	suite := &Suite{
		Config:     Config{ArrayLength: 0},
		Logger:     logger,
		Processors: []processor.Processor{processor.NewCPU(), &fakeProcessor{name: "Fake"}},
	}
	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.ArrayLength)
	require.Len(t, report.Validations, 2)
	assert.Equal(t, OutcomeMatched, report.Outcome())
}

func TestSuiteRejectsInvalidConfig(t *testing.T) {
	suite := &Suite{Config: Config{Reduction: "tree"}, Processors: []processor.Processor{processor.NewCPU()}}
	_, err := suite.Run(context.Background())
	assert.Error(t, err)
}
