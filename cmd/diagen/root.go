package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/diagen/internal/engine"
	"github.com/rendis/diagen/internal/theme"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "diagen",
		Short: "Turn language-model output into themed diagrams",
		Long: `diagen reads the answer a language model gave for an article, splits it
into diagrams using the ---DIAGRAM: <title>--- protocol, repairs common
syntax slips, and renders each diagram as SVG, ASCII or themed Mermaid.

Input is a file argument or stdin. Provider JSON responses are unwrapped
automatically.

Configuration is read from ~/.diagen/settings.json and DIAGEN_* environment
variables; flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", a.configPath, "settings file")
	pf.String(flagName(keyLogLevel), "warn", "log level: debug, info, warn or error")
	pf.String(flagName(keyLogFormat), "text", "log format: text or json")
	pf.Int(flagName(keyParallelism), engine.DefaultPoolSize, "diagrams processed at once")
	pf.String(flagName(keyPreset), theme.DefaultPresetID, "theme preset id")
	pf.String(flagName(keyPresetFile), "", "JSON file with extra presets")
	pf.String(flagName(keyEnvelopePath), "", "jq path to the completion text in provider JSON")
	pf.Int(flagName(keyThemeCacheSize), 128, "resolved themes kept in memory")
	pf.String(flagName(keyASCIIBinDir), "", "directory holding the mermaid-ascii binary")

	root.AddCommand(
		newExtractCmd(a),
		newRenderCmd(a),
		newValidateCmd(a),
		newThemesCmd(a),
		newPromptCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)
	return root
}
