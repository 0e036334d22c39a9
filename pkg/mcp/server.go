package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/diagen/internal/diagram"
	"github.com/rendis/diagen/internal/engine"
	"github.com/rendis/diagen/internal/envelope"
	"github.com/rendis/diagen/internal/extract"
	"github.com/rendis/diagen/internal/prompt"
	"github.com/rendis/diagen/internal/theme"
)

// DiagenServerDeps holds the dependencies for creating a DiagenServer.
// Zero values fall back to built-in presets and default envelope paths.
type DiagenServerDeps struct {
	Registry    *theme.Registry
	Themes      theme.ThemeResolver
	Envelope    *envelope.Extractor
	Parallelism int
	ASCIIBinDir string
	Logger      *slog.Logger
}

// DiagenServer wraps an MCP server with diagen tool handlers.
type DiagenServer struct {
	registry     *theme.Registry
	envelope     *envelope.Extractor
	extractor    *extract.Extractor
	coordinators map[string]*engine.Coordinator
	parallelism  int
	logger       *slog.Logger
	mcpServer    *server.MCPServer
}

// NewDiagenServer creates a DiagenServer with all 5 tools registered.
func NewDiagenServer(deps DiagenServerDeps) *DiagenServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	registry := deps.Registry
	if registry == nil {
		registry = theme.NewRegistry()
	}
	themes := deps.Themes
	if themes == nil {
		themes = theme.NewCachedResolver(theme.NewResolver(registry), 0)
	}
	env := deps.Envelope
	if env == nil {
		// Default paths are constants that always compile.
		env, _ = envelope.New()
	}

	s := &DiagenServer{
		registry:     registry,
		envelope:     env,
		extractor:    extract.New(logger),
		coordinators: make(map[string]*engine.Coordinator, len(diagram.Formats())),
		parallelism:  deps.Parallelism,
		logger:       logger,
	}
	for _, format := range diagram.Formats() {
		// Every listed format has a renderer.
		r, _ := diagram.ForFormat(format, deps.ASCIIBinDir)
		s.coordinators[format] = engine.NewCoordinator(r, engine.CoordinatorConfig{
			PoolSize: deps.Parallelism,
			Themes:   themes,
			Logger:   logger,
		})
	}

	mcpSrv := server.NewMCPServer(
		"diagen",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("diagen turns language-model output into themed diagrams. Use diagen.prompt to build the instruction for the model, diagen.extract to split its answer into diagrams, diagen.validate to syntax-check them, diagen.render to produce SVG, ASCII or themed Mermaid, and diagen.themes to list color presets."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DiagenServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DiagenServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *DiagenServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: extractTool(), Handler: s.handleExtract},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: themesTool(), Handler: s.handleThemes},
		{Tool: promptTool(), Handler: s.handlePrompt},
	}
}

// --- Tool definitions ---

var diagramItems = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":  map[string]any{"type": "string"},
		"source": map[string]any{"type": "string"},
	},
	"required": []string{"source"},
}

func extractTool() mcp.Tool {
	return mcp.NewTool("diagen.extract",
		mcp.WithDescription("Split a model response into titled diagram definitions"),
		mcp.WithString("response", mcp.Required(), mcp.Description("Raw model output or a provider JSON response envelope")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("diagen.render",
		mcp.WithDescription("Render diagrams with a color theme"),
		mcp.WithString("response", mcp.Description("Raw model output or a provider JSON response envelope to extract diagrams from")),
		mcp.WithArray("diagrams", mcp.Items(diagramItems), mcp.Description("Diagrams to render, used instead of response")),
		mcp.WithString("preset", mcp.Description("Theme preset id (see diagen.themes)")),
		mcp.WithObject("overrides", mcp.Description("Theme variable overrides, e.g. {\"nodeBkg\": \"#0f172a\"}")),
		mcp.WithString("format",
			mcp.Enum(diagram.Formats()...),
			mcp.Description("Output format: svg (default), ascii (text) or mermaid (themed source)"),
		),
		mcp.WithNumber("parallelism", mcp.Description("Maximum diagrams rendered at once")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("diagen.validate",
		mcp.WithDescription("Sanitize and syntax-check diagrams without rendering"),
		mcp.WithString("response", mcp.Description("Raw model output or a provider JSON response envelope to extract diagrams from")),
		mcp.WithArray("diagrams", mcp.Items(diagramItems), mcp.Description("Diagrams to validate, used instead of response")),
	)
}

func themesTool() mcp.Tool {
	return mcp.NewTool("diagen.themes",
		mcp.WithDescription("List theme presets with their resolved colors"),
	)
}

func promptTool() mcp.Tool {
	return mcp.NewTool("diagen.prompt",
		mcp.WithDescription("Build the system and user messages that ask a model for diagrams"),
		mcp.WithString("article", mcp.Required(), mcp.Description("Article text to illustrate")),
		mcp.WithNumber("max_diagrams", mcp.Description(fmt.Sprintf("Maximum diagrams to request (default %d, at most %d)",
			prompt.DefaultMaxDiagrams, prompt.MaxDiagramsLimit))),
		mcp.WithString("theme_instructions", mcp.Description("Free-text visual intent passed to the model")),
	)
}
