package bench

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1<<24, cfg.ArrayLength)
	assert.Equal(t, 1, cfg.Repetitions)
	assert.Equal(t, 5*time.Minute, cfg.WaitTimeout)
	assert.Equal(t, "serial", cfg.Reduction)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
array_length: 4096
repetitions: 5
devices:
  - CUDA
  - '{"mode": "OpenMP"}'
webgpu: true
reduction: blocked
reduce_chunk: 512
max_threads_per_group: 128
wait_timeout: 30s
log_level: debug
`)
	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ArrayLength)
	assert.Equal(t, 5, cfg.Repetitions)
	assert.Equal(t, []string{"CUDA", `{"mode": "OpenMP"}`}, cfg.Devices)
	assert.True(t, cfg.WebGPU)
	assert.Equal(t, "blocked", cfg.Reduction)
	assert.Equal(t, 512, cfg.ReduceChunk)
	assert.Equal(t, 128, cfg.MaxThreadsPerGroup)
	assert.Equal(t, 30*time.Second, cfg.WaitTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Options(slog.Default())
	require.NoError(t, err)
	assert.Len(t, opts, 6)
}

func TestParseConfigEmptyAndUnknown(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = ParseConfig([]byte("array_lenght: 10\n"))
	assert.Error(t, err)
}

func TestConfigZeroLength(t *testing.T) {
	assert.Zero(t, Config{}.WithDefaults().ArrayLength)

	cfg, err := ParseConfig([]byte("array_length: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.ArrayLength)
	assert.NoError(t, cfg.Validate())

	cfg, err = ParseConfig([]byte("repetitions: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultArrayLength, cfg.ArrayLength)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repetitions: 2\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Repetitions)
	assert.Equal(t, DefaultArrayLength, cfg.ArrayLength)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"NegativeLength", Config{ArrayLength: -1}},
		{"NegativeRepetitions", Config{Repetitions: -2}},
		{"NegativeThreads", Config{MaxThreadsPerGroup: -1}},
		{"NegativeChunk", Config{ReduceChunk: -1}},
		{"NegativeTimeout", Config{WaitTimeout: -time.Second}},
		{"UnknownReduction", Config{Reduction: "tree"}},
		{"UnknownLevel", Config{LogLevel: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.WithDefaults().Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
