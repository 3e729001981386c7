// Package bench times element-wise addition on every available backend and
// cross-validates the results by comparing them on every backend.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notargets/ArrayBench/processor"
	"github.com/notargets/ArrayBench/utils"
)

// Suite runs one benchmark. When Processors is nil the suite constructs
// processor.Available from Config and closes them when done.
type Suite struct {
	Config     Config
	Logger     *slog.Logger
	Processors []processor.Processor
}

// GenerateOperands fills a with 0, 1, ... n-1 and b with n, n-1, ... 1
func GenerateOperands(n int) (a, b []float32) {
	a = make([]float32, n)
	b = make([]float32, n)
	for i := 0; i < n; i++ {
		a[i] = float32(i)
		b[i] = float32(n - i)
	}
	return
}

// Run adds the operands on every processor, then compares the first
// successful result against every other successful result on every
// processor. A failed leg or comparison is recorded and the run continues;
// only a config error or cancellation of ctx aborts it.
func (s *Suite) Run(ctx context.Context) (*Report, error) {
	cfg := s.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	processors := s.Processors
	if processors == nil {
		opts, err := cfg.Options(logger)
		if err != nil {
			return nil, err
		}
		processors = processor.Available(opts...)
		defer processor.CloseAll(processors)
	}

	n := cfg.ArrayLength
	logger.Info(fmt.Sprintf("Loading 2 arrays with %d items each...", n))
	start := time.Now()
	a, b := GenerateOperands(n)
	logger.Info(fmt.Sprintf("Loaded %s of data in %s",
		utils.HumanBytes(int64(n)*2*4), utils.Seconds(time.Since(start))))

	report := &Report{ArrayLength: n}
	type result struct {
		backend string
		sum     []float32
	}
	var results []result

	for _, p := range processors {
		leg, sum := s.runAdd(ctx, logger, cfg, p, a, b)
		report.Legs = append(report.Legs, leg)
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if leg.Err == nil {
			results = append(results, result{backend: p.Type(), sum: sum})
		}
	}

	if len(results) < 2 {
		logger.Warn("fewer than two add results, nothing to validate", "results", len(results))
		return report, nil
	}

	ref := results[0]
	for _, p := range processors {
		for _, other := range results[1:] {
			v := s.validate(ctx, logger, cfg, p, ref.backend, other.backend, ref.sum, other.sum)
			report.Validations = append(report.Validations, v)
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (s *Suite) runAdd(ctx context.Context, logger *slog.Logger, cfg Config,
	p processor.Processor, a, b []float32) (Leg, []float32) {
	leg := Leg{Backend: p.Type()}
	logger.Info(fmt.Sprintf("Using %s for data processing...", p.Type()))

	var sum []float32
	for rep := 0; rep < cfg.Repetitions; rep++ {
		wctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
		start := time.Now()
		out, err := p.AddArrays(a, b).Wait(wctx)
		elapsed := time.Since(start)
		cancel()
		if err != nil {
			leg.Err = err
			logger.Error("add failed", "backend", p.Type(), "repetition", rep, "err", err)
			return leg, nil
		}
		leg.Timings = append(leg.Timings, elapsed)
		sum = out
		logger.Info(fmt.Sprintf("Finished in %s", utils.Seconds(elapsed)),
			"backend", p.Type(), "repetition", rep)
	}

	if cfg.Repetitions > 1 {
		st := leg.Stats()
		logger.Info("add timing", "backend", p.Type(), "samples", st.Samples,
			"mean_s", st.Mean, "stddev_s", st.StdDev, "min_s", st.Min)
	}
	return leg, sum
}

func (s *Suite) validate(ctx context.Context, logger *slog.Logger, cfg Config,
	p processor.Processor, left, right string, x, y []float32) Validation {
	v := Validation{Backend: p.Type(), Left: left, Right: right}
	logger.Info(fmt.Sprintf("Validating results from %s and %s using %s...", left, right, p.Type()))

	wctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()
	start := time.Now()
	matched, err := p.CompareArrays(x, y).Wait(wctx)
	v.Elapsed = time.Since(start)
	if err != nil {
		v.Err = err
		logger.Error("compare failed", "backend", p.Type(), "err", err)
		return v
	}
	v.Matched = matched

	verdict := "not matching"
	if matched {
		verdict = "matching"
	}
	logger.Info(fmt.Sprintf("It took %s to compare %s and %s results using %s: They are %s",
		utils.Seconds(v.Elapsed), left, right, p.Type(), verdict))
	return v
}
