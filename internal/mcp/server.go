package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aidefend/aidefend-mcp/internal/engine"
)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
	engine *engine.Engine
}

// Config holds server dependencies.
type Config struct {
	Engine *engine.Engine
	Syncer Syncer
}

// NewServer creates a configured MCP server with all tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "aidefend-mcp",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_defenses",
		Description: "Semantic search over the AIDEFEND AI defense knowledge base. Returns techniques, sub-techniques, and implementation strategies matching a natural language threat or defense description. Supports filtering by tactic, record type, and presence of code examples.",
	}, makeSearchHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_technique",
		Description: "Retrieve one AIDEFEND record by its exact identifier (e.g. AID-H-001). Optionally include the sub-techniques and strategies nested under it.",
	}, makeGetTechniqueHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_technique_id",
		Description: "Check whether an AIDEFEND identifier is well formed and exists in the index. Unknown IDs get ranked did-you-mean suggestions.",
	}, makeValidateHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_code_snippets",
		Description: "Retrieve the code examples attached to AIDEFEND guidance, by exact identifier or by topic search. Snippets keep their declared language and can be filtered to one language.",
	}, makeCodeSnippetsHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_statistics",
		Description: "Summarize the indexed knowledge base: record counts by type and tactic, how many records carry code examples, and index provenance.",
	}, makeStatisticsHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report index readiness, the upstream commit it was built from, when it was last synced, and its age.",
	}, makeStatusHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_now",
		Description: "Trigger a corpus sync immediately. Reports skipped if a sync is already running and unchanged if upstream has not moved (unless force is set). Queries keep working during a sync.",
	}, makeSyncHandler(cfg.Syncer))

	return &Server{
		server: server,
		engine: cfg.Engine,
	}
}

// Run starts the server on stdio transport and blocks until the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance for transport
// handlers that need to wrap it.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
