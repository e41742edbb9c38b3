// Package searcher answers semantic code-search queries against an
// indexed codebase, fusing dense and sparse retrieval for hybrid
// collections and projecting hits into caller-facing results.
package searcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/src-d/enry/v2"

	"github.com/dshills/semindex-mcp/internal/embedder"
	"github.com/dshills/semindex-mcp/internal/registry"
	"github.com/dshills/semindex-mcp/internal/vectorstore"
	"github.com/dshills/semindex-mcp/pkg/types"
)

// DefaultLimit caps results when the caller doesn't specify one.
const DefaultLimit = 10

// Request is one search invocation.
type Request struct {
	Query      string
	Limit      int
	Threshold  float64  // minimum score, 0 = off
	Extensions []string // allow-list like [".go", ".ts"], empty = all
}

// Response carries results plus indexing-state hints.
type Response struct {
	Results    []types.SearchResult
	InProgress bool    // an index run is underway for this codebase
	Progress   float64 // percentage when InProgress
}

// CollectionNamer maps a codebase root to its collection name.
// Satisfied by the indexer.
type CollectionNamer interface {
	CollectionName(root string) string
}

// Searcher coordinates query embedding and store retrieval.
type Searcher struct {
	store    vectorstore.VectorStore
	embedder embedder.Embedder
	registry *registry.Registry
	namer    CollectionNamer
	log      *logrus.Entry
}

// New creates a Searcher.
func New(store vectorstore.VectorStore, emb embedder.Embedder, reg *registry.Registry, namer CollectionNamer) *Searcher {
	return &Searcher{
		store:    store,
		embedder: emb,
		registry: reg,
		namer:    namer,
		log:      logrus.WithField("component", "searcher"),
	}
}

// Search runs a query against the collection for root. A missing
// collection yields empty results, not an error; an in-flight index
// run is reported as a hint and never blocks the search.
func (s *Searcher) Search(ctx context.Context, root string, req Request) (*Response, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	if entry, ok := s.registry.Get(root); ok && entry.Status == registry.StatusIndexing {
		resp.InProgress = true
		resp.Progress = entry.Progress
	}

	name := s.namer.CollectionName(root)
	has, err := s.store.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !has {
		return resp, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	emb, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	info, err := s.store.CollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	// Over-fetch so post-filters don't starve the result set.
	fetch := limit
	if len(req.Extensions) > 0 || req.Threshold > 0 {
		fetch = limit * 3
	}

	var hits []vectorstore.ScoredChunk
	if info.IsHybrid {
		hits, err = s.store.HybridSearch(ctx, name, emb.Vector, req.Query, vectorstore.HybridOptions{Limit: fetch})
	} else {
		hits, err = s.store.Search(ctx, name, emb.Vector, vectorstore.SearchOptions{TopK: fetch})
	}
	if err != nil {
		return nil, err
	}

	resp.Results = project(hits, req, limit)
	return resp, nil
}

// project applies the extension allow-list, threshold, and limit,
// mapping store hits to caller-facing results.
func project(hits []vectorstore.ScoredChunk, req Request, limit int) []types.SearchResult {
	allowed := make(map[string]struct{}, len(req.Extensions))
	for _, ext := range req.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	results := make([]types.SearchResult, 0, limit)
	for _, hit := range hits {
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(hit.Chunk.FileExtension)]; !ok {
				continue
			}
		}
		if req.Threshold > 0 && hit.Score < req.Threshold {
			continue
		}
		results = append(results, types.SearchResult{
			Content:      hit.Chunk.Content,
			RelativePath: hit.Chunk.RelativePath,
			StartLine:    hit.Chunk.StartLine,
			EndLine:      hit.Chunk.EndLine,
			Language:     languageFor(hit.Chunk.RelativePath),
			Score:        hit.Score,
		})
		if len(results) >= limit {
			break
		}
	}
	return results
}

// languageFor derives a display language from the file name.
func languageFor(relPath string) string {
	if lang := enry.GetLanguage(filepath.Base(relPath), nil); lang != "" && lang != enry.OtherLanguage {
		return lang
	}
	ext := strings.TrimPrefix(filepath.Ext(relPath), ".")
	if ext == "" {
		return "text"
	}
	return ext
}
