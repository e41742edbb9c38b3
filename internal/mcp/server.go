// Package mcp exposes the indexer and searcher as MCP tools over
// stdio: index_codebase, search_code, clear_index, and
// get_indexing_status.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/dshills/semindex-mcp/internal/indexer"
	"github.com/dshills/semindex-mcp/internal/registry"
	"github.com/dshills/semindex-mcp/internal/searcher"
	"github.com/dshills/semindex-mcp/internal/vectorstore"
)

const (
	// ServerName is the MCP server name.
	ServerName = "semindex-mcp"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp      *server.MCPServer
	store    vectorstore.VectorStore
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	registry *registry.Registry
	log      *logrus.Entry
}

// NewServer creates an MCP server over already-wired components.
func NewServer(store vectorstore.VectorStore, idx *indexer.Indexer, srch *searcher.Searcher, reg *registry.Registry) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		store:    store,
		indexer:  idx,
		searcher: srch,
		registry: reg,
		log:      logrus.WithField("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// Stale registry entries are reconciled first.
func (s *Server) Serve(ctx context.Context) error {
	s.registry.Reconcile(ctx, s.store, s.indexer.CollectionName)
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(clearIndexTool(), s.handleClearIndex)
	s.mcp.AddTool(getIndexingStatusTool(), s.handleGetIndexingStatus)
}
