package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/semindex-mcp/internal/config"
	"github.com/dshills/semindex-mcp/internal/embedder"
	"github.com/dshills/semindex-mcp/internal/indexer"
	"github.com/dshills/semindex-mcp/internal/registry"
	"github.com/dshills/semindex-mcp/internal/searcher"
	"github.com/dshills/semindex-mcp/internal/vectorstore"
)

// app bundles the wired components behind every command.
type app struct {
	store    *vectorstore.SQLiteStore
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	registry *registry.Registry
}

// newApp wires store, embedder, registry, indexer, and searcher from
// configuration.
func newApp(cfg *config.Config) (*app, error) {
	store, err := vectorstore.NewSQLiteStore(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromConfig(embedder.FactoryConfig{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := registry.New(cfg.Storage.Registry)
	idx := indexer.New(store, emb, reg, indexer.Config{
		SnapshotDir:    cfg.Storage.SnapshotDir,
		ContextName:    cfg.Index.ContextName,
		IgnorePatterns: cfg.Index.IgnorePatterns,
		BatchSize:      cfg.Index.BatchSize,
		Hybrid:         cfg.Index.Hybrid,
		ChunkSize:      cfg.Index.ChunkSize,
		ChunkOverlap:   cfg.Index.ChunkOverlap,
	})
	srch := searcher.New(store, emb, reg, idx)

	return &app{store: store, indexer: idx, searcher: srch, registry: reg}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

// resolveRoot turns an optional path argument into an absolute
// codebase root, defaulting to the working directory.
func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
