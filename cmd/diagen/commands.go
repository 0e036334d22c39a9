package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/diagen/internal/diagram"
	"github.com/rendis/diagen/internal/engine"
	"github.com/rendis/diagen/internal/extract"
	"github.com/rendis/diagen/internal/prompt"
	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/mcp"
	"github.com/rendis/diagen/pkg/schema"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [file]",
		Short: "Split a model response into diagram definitions (JSON)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			specs, err := a.specs(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), specs)
		},
	}
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		format    string
		outDir    string
		overrides map[string]string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render every diagram in a model response",
		Long: `Render every diagram in a model response.

Without --out, artifacts are written to stdout, each after its delimiter
line. With --out, one file per diagram is written to the directory and a
status line per diagram goes to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			renderer, err := diagram.ForFormat(format, a.cfg.ASCIIBinDir)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			specs, err := a.specs(cmd.Context(), raw)
			if err != nil {
				return err
			}

			coord := engine.NewCoordinator(renderer, engine.CoordinatorConfig{
				PoolSize: a.cfg.Parallelism,
				Themes:   a.themes,
				Logger:   a.logger,
			})
			results := coord.RenderBatch(cmd.Context(), specs, a.themeRequest(overrides), a.cfg.Parallelism)

			switch {
			case asJSON:
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			case outDir != "":
				dest, err := writeArtifacts(outDir, format, results)
				if err != nil {
					return err
				}
				printStatus(cmd.ErrOrStderr(), results, dest)
			default:
				out := cmd.OutOrStdout()
				for _, r := range results {
					if !r.OK {
						continue
					}
					fmt.Fprintln(out, extract.Delimiter(r.Title))
					fmt.Fprintln(out, r.Artifact)
				}
				printStatus(cmd.ErrOrStderr(), results, nil)
			}
			return summarize(results)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", diagram.FormatSVG, "output format: svg, ascii or mermaid")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write one file per diagram")
	cmd.Flags().StringToStringVar(&overrides, "set", nil, "theme variable override, e.g. --set nodeBkg=#0f172a")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print render results as JSON")
	return cmd
}

// writeArtifacts writes each successful artifact to dir and returns the path
// per result, empty for failures.
func writeArtifacts(dir, format string, results []schema.RenderResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	dest := make([]string, len(results))
	for i, r := range results {
		if !r.OK {
			continue
		}
		path := filepath.Join(dir, fileName(i, r.Title, extension(format)))
		if err := os.WriteFile(path, []byte(r.Artifact), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		dest[i] = path
	}
	return dest, nil
}

func newValidateCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Sanitize and syntax-check every diagram without rendering",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			specs, err := a.specs(cmd.Context(), raw)
			if err != nil {
				return err
			}

			coord := engine.NewCoordinator(diagram.NewSVGRenderer(), engine.CoordinatorConfig{
				PoolSize: a.cfg.Parallelism,
				Themes:   a.themes,
				Logger:   a.logger,
			})
			results := coord.ValidateBatch(cmd.Context(), specs, a.cfg.Parallelism)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printStatus(cmd.OutOrStdout(), results, nil)
			}
			return summarize(results)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print validation results as JSON")
	return cmd
}

type themeRow struct {
	theme.Preset
	NodeText     string  `json:"node_text"`
	TextContrast float64 `json:"text_contrast"`
}

func newThemesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "themes",
		Short: "List theme presets and the contrast of their node text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rows []themeRow
			for _, p := range a.registry.Presets() {
				th := a.themes.Resolve(schema.ThemeRequest{PresetID: p.ID})
				rows = append(rows, themeRow{
					Preset:       p,
					NodeText:     th.NodeText,
					TextContrast: theme.ContrastRatio(th.NodeText, th.NodeFill),
				})
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, bold("ID")+"\t"+bold("LABEL")+"\t"+bold("FILL")+"\t"+bold("TEXT")+"\t"+bold("CONTRAST"))
			for _, r := range rows {
				id := r.ID
				if id == a.cfg.Preset {
					id += "*"
				}
				ratio := fmt.Sprintf("%.2f", r.TextContrast)
				if r.TextContrast < 4.5 {
					ratio = yellow(ratio)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, r.Label, r.NodeFill, r.NodeText, ratio)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print presets as JSON")
	return cmd
}

func newPromptCmd(a *app) *cobra.Command {
	var (
		maxDiagrams       int
		themeInstructions string
		asJSON            bool
	)
	cmd := &cobra.Command{
		Use:   "prompt [file]",
		Short: "Print the model instruction for an article",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			article, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			p, err := prompt.Build(prompt.Request{
				Article:           article,
				MaxDiagrams:       maxDiagrams,
				ThemeInstructions: themeInstructions,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, bold("# system"))
			fmt.Fprintln(out, p.System)
			fmt.Fprintln(out)
			fmt.Fprintln(out, bold("# user"))
			fmt.Fprint(out, p.User)
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxDiagrams, "max-diagrams", "n", prompt.DefaultMaxDiagrams, "most diagrams the model may produce")
	cmd.Flags().StringVar(&themeInstructions, "theme-instructions", "", "free-text visual intent for the model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the messages as JSON")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the diagen tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcp.NewDiagenServer(mcp.DiagenServerDeps{
				Registry:    a.registry,
				Themes:      a.themes,
				Envelope:    a.envelope,
				Parallelism: a.cfg.Parallelism,
				ASCIIBinDir: a.cfg.ASCIIBinDir,
				Logger:      a.logger,
			})
			a.logger.Info("mcp server listening on stdio")
			return srv.Serve(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the diagen version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
