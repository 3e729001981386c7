package processor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/notargets/ArrayBench/utils"
)

// Reduction selects how the accelerant folds per-element comparison flags
// into one result
type Reduction int

const (
	// ReduceSerial folds all flags in a single work item (grid 1x1x1)
	ReduceSerial Reduction = iota
	// ReduceBlocked folds fixed-size chunks in parallel, then folds the
	// partial results in a single work item
	ReduceBlocked
)

func (r Reduction) String() string {
	switch r {
	case ReduceSerial:
		return "serial"
	case ReduceBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("Reduction(%d)", int(r))
	}
}

// ParseReduction maps "serial" or "blocked" to a Reduction; "" means serial
func ParseReduction(s string) (Reduction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "serial":
		return ReduceSerial, nil
	case "blocked":
		return ReduceBlocked, nil
	default:
		return 0, fmt.Errorf("unknown reduction %q (want serial or blocked)", s)
	}
}

type options struct {
	logger      *slog.Logger
	devices     []string
	maxThreads  int
	reduction   Reduction
	reduceChunk int
	webgpu      bool
}

// Option configures accelerant construction
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		logger:  slog.Default(),
		devices: utils.AccelerantDevices,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for device and launch diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDevices sets the OCCA device property strings to try, in order. Bare
// mode names such as "CUDA" are expanded with utils.DeviceProps.
func WithDevices(props ...string) Option {
	return func(o *options) {
		o.devices = make([]string, 0, len(props))
		for _, p := range props {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !strings.HasPrefix(p, "{") {
				p = utils.DeviceProps(p)
			}
			o.devices = append(o.devices, p)
		}
	}
}

// WithMaxThreadsPerGroup overrides the device's threadgroup width limit
func WithMaxThreadsPerGroup(n int) Option {
	return func(o *options) { o.maxThreads = n }
}

// WithReduction selects the all-true reduction strategy
func WithReduction(r Reduction) Option {
	return func(o *options) { o.reduction = r }
}

// WithReduceChunk sets the per-work-item chunk of the blocked reduction
func WithReduceChunk(n int) Option {
	return func(o *options) { o.reduceChunk = n }
}

// WithWebGPU makes Available also try the WebGPU backend
func WithWebGPU(enabled bool) Option {
	return func(o *options) { o.webgpu = enabled }
}
