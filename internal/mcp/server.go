package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/internal/orchestrator"
	"github.com/dshills/pyingest/internal/parser"
	"github.com/dshills/pyingest/internal/searcher"
	"github.com/dshills/pyingest/internal/source"
	"github.com/dshills/pyingest/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "pyingest"
)

// ServerVersion is reported to MCP clients; the build overrides it
var ServerVersion = "dev"

// Dependencies are the components the tools call into. Orchestrator and
// Backend are required; RunStore is optional and serves status for runs of
// earlier sessions. Resolver defaults to one with the default clone timeout. A supplied Searcher must also be registered as a progress
// sink of the orchestrator; its response cache is only used in that case.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Parser       *parser.Parser
	Chunker      *chunker.Chunker
	Backend      storage.Backend
	RunStore     storage.RunStore
	Searcher     *searcher.Searcher
	Resolver     *source.Resolver
	Options      orchestrator.Options
	Logger       *logrus.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	orch     *orchestrator.Orchestrator
	parser   *parser.Parser
	chunker  *chunker.Chunker
	backend  storage.Backend
	runs     storage.RunStore
	searcher *searcher.Searcher
	resolver *source.Resolver
	cache    bool
	defaults orchestrator.Options
	logger   *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}

	logger := logging.OrDiscard(deps.Logger)
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		orch:     deps.Orchestrator,
		parser:   deps.Parser,
		chunker:  deps.Chunker,
		backend:  deps.Backend,
		runs:     deps.RunStore,
		searcher: deps.Searcher,
		resolver: deps.Resolver,
		cache:    deps.Searcher != nil,
		defaults: deps.Options,
		logger:   logger,
	}
	if s.parser == nil {
		s.parser = parser.New(logger)
	}
	if s.resolver == nil {
		s.resolver = source.NewResolver(source.Config{}, logger)
	}
	if s.searcher == nil {
		s.searcher = searcher.New(deps.Backend, nil)
	}
	if s.chunker == nil {
		s.chunker = chunker.New(chunker.DefaultConfig(), logger)
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	s.logger.WithField("version", ServerVersion).Info("MCP server listening on stdio")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestRepositoryTool(), s.handleIngestRepository)
	s.mcp.AddTool(getIngestionStatusTool(), s.handleGetIngestionStatus)
	s.mcp.AddTool(parsePythonTool(), s.handleParsePython)
	s.mcp.AddTool(chunkTextTool(), s.handleChunkText)
	s.mcp.AddTool(searchChunksTool(), s.handleSearchChunks)
}
