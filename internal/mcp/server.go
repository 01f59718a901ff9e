package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/govtrail/internal/correlation"
	"github.com/ppiankov/govtrail/internal/engine"
)

// Config holds MCP server configuration.
type Config struct {
	// AgentID is used when a tool call names no agent.
	AgentID string
	Version string
}

// Server exposes governance checks to agents over MCP. Every call in one
// session shares the session trace unless the caller supplies its own.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *engine.Engine
	agentID   string
	traceID   string
}

// New creates an MCP server bound to an engine.
func New(e *engine.Engine, cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		engine:  e,
		agentID: cfg.AgentID,
		traceID: correlation.NewTraceID(),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "govtrail",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// TraceID is the session trace.
func (s *Server) TraceID() string { return s.traceID }

func (s *Server) trace(id string) string {
	if id != "" {
		return id
	}
	return s.traceID
}

// registerTools adds all govtrail tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "govtrail_check_tool",
		Description: "Check whether an agent is authorized to invoke a tool. Denied checks return an error result with the reason and are recorded in the audit trail.",
	}, s.handleCheckTool)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "govtrail_check_integration",
		Description: "Check whether an approved third-party integration may reach a target endpoint. Expired integrations are denied.",
	}, s.handleCheckIntegration)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "govtrail_check_revoked",
		Description: "Check whether a user, agent, tool, integration or principal is under an active emergency revocation.",
	}, s.handleCheckRevoked)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "govtrail_reconstruct",
		Description: "Reconstruct the ordered, integrity-checked audit trail for a correlation id. Defaults to this session's trace.",
	}, s.handleReconstruct)
}
