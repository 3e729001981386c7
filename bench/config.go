package bench

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/notargets/ArrayBench/processor"
	"gopkg.in/yaml.v3"
)

const (
	DefaultArrayLength = 1 << 24
	DefaultWaitTimeout = 5 * time.Minute
)

// Config controls one benchmark run. Zero values select defaults, except
// ArrayLength where zero is a valid empty run; DefaultConfig and the
// config loaders start from DefaultArrayLength.
type Config struct {
	ArrayLength        int           `yaml:"array_length"`
	Repetitions        int           `yaml:"repetitions"`
	Devices            []string      `yaml:"devices"`
	WebGPU             bool          `yaml:"webgpu"`
	Reduction          string        `yaml:"reduction"`
	ReduceChunk        int           `yaml:"reduce_chunk"`
	MaxThreadsPerGroup int           `yaml:"max_threads_per_group"`
	WaitTimeout        time.Duration `yaml:"wait_timeout"`
	LogLevel           string        `yaml:"log_level"`
}

// LoadConfig reads a YAML config file. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config bytes, rejecting unknown fields
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{ArrayLength: DefaultArrayLength}.WithDefaults()
}

// WithDefaults returns a copy with zero fields set to their defaults.
// ArrayLength is left as is.
func (c Config) WithDefaults() Config {
	if c.Repetitions == 0 {
		c.Repetitions = 1
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.Reduction == "" {
		c.Reduction = processor.ReduceSerial.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	if c.ArrayLength < 0 {
		return fmt.Errorf("array_length must be non-negative, got %d", c.ArrayLength)
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", c.Repetitions)
	}
	if c.MaxThreadsPerGroup < 0 {
		return fmt.Errorf("max_threads_per_group must be non-negative, got %d", c.MaxThreadsPerGroup)
	}
	if c.ReduceChunk < 0 {
		return fmt.Errorf("reduce_chunk must be non-negative, got %d", c.ReduceChunk)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout must be non-negative, got %s", c.WaitTimeout)
	}
	if _, err := processor.ParseReduction(c.Reduction); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Options translates the config into processor construction options
func (c Config) Options(logger *slog.Logger) ([]processor.Option, error) {
	reduction, err := processor.ParseReduction(c.Reduction)
	if err != nil {
		return nil, err
	}
	opts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithReduction(reduction),
		processor.WithMaxThreadsPerGroup(c.MaxThreadsPerGroup),
		processor.WithReduceChunk(c.ReduceChunk),
		processor.WithWebGPU(c.WebGPU),
	}
	if len(c.Devices) > 0 {
		opts = append(opts, processor.WithDevices(c.Devices...))
	}
	return opts, nil
}

// ParseLevel maps debug, info, warn or error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
