package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("diagen", pflag.ContinueOnError)
	fs.String(flagName(keyPreset), "default", "")
	fs.Int(flagName(keyParallelism), 4, "")
	fs.String(flagName(keyLogLevel), "warn", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	missing := filepath.Join(t.TempDir(), "missing.json")

	cfg, err := loadConfig(viper.New(), missing, testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, "default", cfg.Preset)
	assert.Equal(t, 128, cfg.ThemeCacheSize)
	assert.Equal(t, filepath.Join(diagenDir(), "bin"), cfg.ASCIIBinDir)
	assert.Empty(t, cfg.PresetFile)
	assert.Empty(t, cfg.EnvelopePath)
}

func TestLoadConfigLayers(t *testing.T) {
	path := writeSettings(t, `{"preset": "sunset", "parallelism": 8, "log_format": "json", "envelope_path": ".result"}`)

	cfg, err := loadConfig(viper.New(), path, testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "sunset", cfg.Preset)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ".result", cfg.EnvelopePath)

	t.Setenv("DIAGEN_PRESET", "ocean")
	t.Setenv("DIAGEN_PARALLELISM", "2")
	cfg, err = loadConfig(viper.New(), path, testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "ocean", cfg.Preset)
	assert.Equal(t, 2, cfg.Parallelism)

	cfg, err = loadConfig(viper.New(), path, testFlags(t, "--preset", "forest"))
	require.NoError(t, err)
	assert.Equal(t, "forest", cfg.Preset)
	assert.Equal(t, 2, cfg.Parallelism)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     string
	}{
		{"malformed file", `{"preset": `, "config: read"},
		{"zero parallelism", `{"parallelism": 0}`, "parallelism must be positive"},
		{"bad log format", `{"log_format": "xml"}`, "log_format must be text or json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(viper.New(), writeSettings(t, tt.settings), testFlags(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestFlagName(t *testing.T) {
	assert.Equal(t, "preset-file", flagName(keyPresetFile))
	assert.Equal(t, "ascii-bin-dir", flagName(keyASCIIBinDir))
}
