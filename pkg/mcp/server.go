// Package mcp exposes designer sessions to agents as MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
)

// DesignerServerDeps holds the dependencies for creating a DesignerServer.
// Every designer session the server opens is built from them.
type DesignerServerDeps struct {
	Backend   designer.Backend
	Drafts    designer.DraftStore
	Hub       streaming.EventHub
	Validator *validation.Validator
	Sizer     graph.SizeFunc
	HitRadius float64
	Policy    gesture.TargetPolicy
	Logger    *slog.Logger

	// OnOpen is called once for every session that loads successfully.
	OnOpen func(*designer.Session)
}

// DesignerServer wraps an MCP server with designer tool handlers.
type DesignerServer struct {
	deps      DesignerServerDeps
	logger    *slog.Logger
	sessions  *SessionRegistry
	jq        *expressions.GoJQEngine
	mcpServer *server.MCPServer
}

// NewDesignerServer creates a DesignerServer with all tools registered.
func NewDesignerServer(deps DesignerServerDeps) *DesignerServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Hub == nil {
		deps.Hub = streaming.NewMemoryHub()
	}
	if deps.Sizer == nil {
		deps.Sizer = diagram.DefaultSize
	}
	deps.Logger = logger

	s := &DesignerServer{
		deps:     deps,
		logger:   logger,
		sessions: NewSessionRegistry(),
		jq:       expressions.NewGoJQEngine(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Disconnect(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"flowcanvas",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("flowcanvas edits workflow graph definitions. Open one with designer.load, inspect it with designer.graph or designer.diagram, edit it with designer.connect, designer.move, designer.remove and designer.assign_output, check it with designer.validate, and persist it with designer.save. designer.query runs a jq expression over the wire document."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and relays session events to clients.
// It blocks until ctx is cancelled or stdin closes.
func (s *DesignerServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier := NewMCPNotifier(s.mcpServer, s.sessions)
	go func() {
		if err := Forward(ctx, s.deps.Hub, s.sessions, notifier, s.logger); err != nil {
			s.logger.Error("event forwarding stopped", "error", err)
		}
	}()

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DesignerServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the registry of open designer sessions.
func (s *DesignerServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *DesignerServer) newSession(id string) *designer.Session {
	return designer.New(designer.Deps{
		SessionID: id,
		Backend:   s.deps.Backend,
		Drafts:    s.deps.Drafts,
		Hub:       s.deps.Hub,
		Validator: s.deps.Validator,
		Sizer:     s.deps.Sizer,
		HitRadius: s.deps.HitRadius,
		Policy:    s.deps.Policy,
		Logger:    s.logger,
	})
}

func (s *DesignerServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: graphTool(), Handler: s.handleGraph},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: moveTool(), Handler: s.handleMove},
		{Tool: removeTool(), Handler: s.handleRemove},
		{Tool: assignOutputTool(), Handler: s.handleAssignOutput},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: saveTool(), Handler: s.handleSave},
	}
}

// --- Tool definitions ---

func sessionParam() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Description("Designer session (default: the most recently loaded)"))
}

func loadTool() mcp.Tool {
	return mcp.NewTool("designer.load",
		mcp.WithDescription("Open a workflow definition in a designer session"),
		mcp.WithString("workflow_type", mcp.Description("Workflow type to fetch from the backend")),
		mcp.WithString("revision", mcp.Description("Revision to open (default: the active one)")),
		mcp.WithObject("definition", mcp.Description("Wire document to open instead of fetching one")),
		mcp.WithString("draft_key", mcp.Description("Restore a stored draft instead of fetching")),
		sessionParam(),
	)
}

func graphTool() mcp.Tool {
	return mcp.NewTool("designer.graph",
		mcp.WithDescription("Get the nodes, connections and state of a designer session"),
		sessionParam(),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("designer.connect",
		mcp.WithDescription("Connect two nodes"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node (runtime id or node_id)")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node (runtime id or node_id)")),
		sessionParam(),
	)
}

func moveTool() mcp.Tool {
	return mcp.NewTool("designer.move",
		mcp.WithDescription("Move a node to a logical position"),
		mcp.WithString("node", mcp.Required(), mcp.Description("Node (runtime id or node_id)")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Logical x")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Logical y")),
		sessionParam(),
	)
}

func removeTool() mcp.Tool {
	return mcp.NewTool("designer.remove",
		mcp.WithDescription("Remove a node with its connections, or a single connection"),
		mcp.WithString("node", mcp.Description("Node to remove (runtime id or node_id)")),
		mcp.WithString("connection", mcp.Description("Connection id to remove")),
		sessionParam(),
	)
}

func assignOutputTool() mcp.Tool {
	return mcp.NewTool("designer.assign_output",
		mcp.WithDescription("Bind a connection to one of its source node's outputs"),
		mcp.WithString("connection", mcp.Required(), mcp.Description("Connection id")),
		mcp.WithString("output", mcp.Description("Output label (empty clears the binding)")),
		sessionParam(),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("designer.validate",
		mcp.WithDescription("Validate the session's definition"),
		sessionParam(),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("designer.diagram",
		mcp.WithDescription("Render the session's graph. Returns ASCII art, Mermaid flowchart syntax, Graphviz DOT, or a PNG image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "dot", "image", "canvas"),
			mcp.Description("Output format: ascii, mermaid, dot, image (graphviz layout PNG) or canvas (PNG at editor positions)"),
		),
		sessionParam(),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("designer.query",
		mcp.WithDescription("Run a jq expression over the session's wire document"),
		mcp.WithString("expression", mcp.Required(), mcp.Description("jq expression, e.g. .nodes[] | select(.type == \"approval\") | .node_id")),
		sessionParam(),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("designer.save",
		mcp.WithDescription("Save the session's definition to the backend, or store a local draft"),
		mcp.WithBoolean("draft", mcp.Description("Store a local draft instead of saving (default: false)")),
		sessionParam(),
	)
}
