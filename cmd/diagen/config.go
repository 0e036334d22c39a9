package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rendis/diagen/internal/engine"
	"github.com/rendis/diagen/internal/theme"
)

// Config holds all diagen CLI configuration.
// Priority: flags > DIAGEN_* env vars > settings.json > defaults.
type Config struct {
	LogLevel       string
	LogFormat      string
	Parallelism    int
	Preset         string
	PresetFile     string
	EnvelopePath   string
	ThemeCacheSize int
	ASCIIBinDir    string
}

// Config keys, shared by settings.json, env vars (upper-cased, DIAGEN_
// prefix) and flags (dashes for underscores).
const (
	keyLogLevel       = "log_level"
	keyLogFormat      = "log_format"
	keyParallelism    = "parallelism"
	keyPreset         = "preset"
	keyPresetFile     = "preset_file"
	keyEnvelopePath   = "envelope_path"
	keyThemeCacheSize = "theme_cache_size"
	keyASCIIBinDir    = "ascii_bin_dir"
)

func configKeys() []string {
	return []string{
		keyLogLevel, keyLogFormat, keyParallelism, keyPreset,
		keyPresetFile, keyEnvelopePath, keyThemeCacheSize, keyASCIIBinDir,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyLogLevel, "warn")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyParallelism, engine.DefaultPoolSize)
	v.SetDefault(keyPreset, theme.DefaultPresetID)
	v.SetDefault(keyPresetFile, "")
	v.SetDefault(keyEnvelopePath, "")
	v.SetDefault(keyThemeCacheSize, 128)
	v.SetDefault(keyASCIIBinDir, filepath.Join(diagenDir(), "bin"))
}

func diagenDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".diagen"
	}
	return filepath.Join(home, ".diagen")
}

func settingsPath() string {
	return filepath.Join(diagenDir(), "settings.json")
}

// flagName maps a config key to its flag name.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// loadConfig layers defaults, the settings file at path, DIAGEN_* env vars
// and any flags in flags that were set. A missing settings file is not an
// error; an unreadable or malformed one is.
func loadConfig(v *viper.Viper, path string, flags *pflag.FlagSet) (Config, error) {
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvPrefix("DIAGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range configKeys() {
			if f := flags.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("config: bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	cfg := Config{
		LogLevel:       strings.ToLower(v.GetString(keyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(keyLogFormat)),
		Parallelism:    v.GetInt(keyParallelism),
		Preset:         v.GetString(keyPreset),
		PresetFile:     v.GetString(keyPresetFile),
		EnvelopePath:   v.GetString(keyEnvelopePath),
		ThemeCacheSize: v.GetInt(keyThemeCacheSize),
		ASCIIBinDir:    v.GetString(keyASCIIBinDir),
	}
	if cfg.Parallelism <= 0 {
		return Config{}, fmt.Errorf("config: parallelism must be positive, got %d", cfg.Parallelism)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("config: log_format must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}
