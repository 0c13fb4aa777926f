package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/lecture-rag/internal/retrieval"
	"github.com/bull/lecture-rag/internal/transcript"
)

// Retriever is the part of retrieval.Service the tools use.
type Retriever interface {
	Search(ctx context.Context, query, sourceID string, limit int) (*retrieval.SearchResult, error)
	EnsureTranscript(ctx context.Context, sourceID string) (*transcript.Transcript, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	logger *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Retrieval Retriever
	Version   string
	Logger    *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "lecture-transcripts",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_transcripts",
		Description: "Search lecture video transcripts. Returns time-stamped excerpts, scoped to one video when source_id is given.",
	}, makeSearchHandler(cfg.Retrieval, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Get the full transcript of a lecture video, extracting it from captions on first use.",
	}, makeTranscriptHandler(cfg.Retrieval))

	return &Server{server: server, logger: logger}
}

// Run serves over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
