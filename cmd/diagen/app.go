package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/diagen/internal/envelope"
	"github.com/rendis/diagen/internal/extract"
	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/internal/validation"
	"github.com/rendis/diagen/pkg/schema"
)

// app holds what every subcommand shares once configuration is loaded.
type app struct {
	v          *viper.Viper
	configPath string

	cfg       Config
	logger    *slog.Logger
	registry  *theme.Registry
	themes    theme.ThemeResolver
	envelope  *envelope.Extractor
	extractor *extract.Extractor
}

func newApp() *app {
	return &app{v: viper.New(), configPath: settingsPath()}
}

// setup loads configuration and builds the shared components.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var extra []theme.Preset
	if cfg.PresetFile != "" {
		pv, err := validation.NewPresetValidator()
		if err != nil {
			return fmt.Errorf("presets: %w", err)
		}
		if extra, err = pv.LoadPresetFile(cfg.PresetFile); err != nil {
			return err
		}
		logger.Debug("preset file loaded",
			slog.String("path", cfg.PresetFile),
			slog.Int("presets", len(extra)),
		)
	}
	registry := theme.NewRegistry(extra...)
	if _, ok := registry.Lookup(cfg.Preset); !ok && cfg.Preset != "" {
		logger.Warn("unknown preset, using default", slog.String("preset", cfg.Preset))
	}

	// A configured path is tried before the built-in provider shapes.
	env, err := envelope.New(append([]string{cfg.EnvelopePath}, envelope.DefaultPaths...)...)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.registry = registry
	a.themes = theme.NewCachedResolver(theme.NewResolver(registry), cfg.ThemeCacheSize)
	a.envelope = env
	a.extractor = extract.New(logger)
	return nil
}

// readInput returns the contents of the file named by args, or stdin when
// there is none or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

// specs extracts diagram specs from a model response. No diagrams at all is
// an EMPTY_RESPONSE error.
func (a *app) specs(ctx context.Context, raw string) ([]schema.DiagramSpec, error) {
	text, err := a.envelope.Completion(ctx, raw)
	if err != nil {
		return nil, err
	}
	res := a.extractor.Extract(ctx, text)
	if len(res.Specs) == 0 {
		return nil, schema.NewError(schema.ErrCodeEmptyResponse, "response contains no diagrams").
			WithDetails(map[string]any{"protocol_miss": res.ProtocolMiss})
	}
	if res.ProtocolMiss {
		a.logger.Info("no diagram delimiters found, treating response as one diagram")
	}
	return res.Specs, nil
}

// themeRequest builds the request from the configured preset and --set pairs.
func (a *app) themeRequest(overrides map[string]string) schema.ThemeRequest {
	req := schema.ThemeRequest{PresetID: strings.TrimSpace(a.cfg.Preset)}
	if len(overrides) > 0 {
		req.Overrides = make(map[string]string, len(overrides))
		for k, v := range overrides {
			req.Overrides[k] = v
		}
	}
	return req
}
