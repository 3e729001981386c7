package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/notargets/ArrayBench/bench"
	"github.com/notargets/ArrayBench/processor"
)

const timeFormat = "15:04:05.0000"

func main() {
	var (
		configFile = flag.String("config", "", "YAML config file")
		n          = flag.Int("n", bench.DefaultArrayLength, "array length")
		reps       = flag.Int("reps", 1, "add repetitions per backend")
		devices    = flag.String("devices", "", "comma-separated OCCA modes to try, in order (property strings go in -config)")
		webgpu     = flag.Bool("webgpu", false, "also try the WebGPU backend")
		reduction  = flag.String("reduction", "serial", "all-true reduction: serial or blocked")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg := bench.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = bench.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	// flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			cfg.ArrayLength = *n
		case "reps":
			cfg.Repetitions = *reps
		case "devices":
			cfg.Devices = splitList(*devices)
		case "webgpu":
			cfg.WebGPU = *webgpu
		case "reduction":
			cfg.Reduction = *reduction
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, _ := bench.ParseLevel(cfg.LogLevel)
	logger := newLogger(level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts, err := cfg.Options(logger)
	if err != nil {
		logger.Error("invalid options", "err", err)
		os.Exit(2)
	}
	processors := processor.Available(opts...)
	for _, p := range processors {
		if f, ok := p.(interface{ Features() []string }); ok {
			logger.Debug("processor", "type", p.Type(), "features", strings.Join(f.Features(), " "))
		}
	}

	suite := &bench.Suite{Config: cfg, Logger: logger, Processors: processors}
	report, err := suite.Run(ctx)
	if cerr := processor.CloseAll(processors); cerr != nil {
		logger.Warn("close failed", "err", cerr)
	}
	if err != nil {
		logger.Error("benchmark aborted", "err", err)
		os.Exit(1)
	}
	os.Exit(exitCode(logger, report))
}

// exitCode is 0 for a matching or single-backend run and 1 when results
// disagree or a leg failed
func exitCode(logger *slog.Logger, report *bench.Report) int {
	switch outcome := report.Outcome(); outcome {
	case bench.OutcomeMatched:
		return 0
	case bench.OutcomeUnvalidated:
		logger.Warn("only one backend produced a result, nothing was cross-validated")
		return 0
	case bench.OutcomeMismatch:
		logger.Error("results do not agree across backends")
		return 1
	default:
		legs, validations := report.Failed()
		logger.Error("benchmark incomplete", "outcome", outcome,
			"failed_legs", len(legs), "failed_validations", len(validations))
		return 1
	}
}

// newLogger writes text records to stdout with time-of-day timestamps
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
			}
			return a
		},
	}))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
