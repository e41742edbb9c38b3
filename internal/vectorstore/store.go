// Package vectorstore provides collection-scoped storage for code
// chunks with dense, sparse, and hybrid (RRF-fused) retrieval.
//
// The VectorStore interface is the contract the indexing pipeline and
// searcher depend on; SQLiteStore is the local reference
// implementation backed by one SQLite file per collection plus a
// JSON-persisted BM25 model for hybrid collections.
package vectorstore

import (
	"context"
	"time"

	"github.com/dshills/semindex-mcp/pkg/types"
)

// Default search parameters.
const (
	DefaultRRFK = 60
	DefaultTopK = 10
)

// SearchOptions configures a dense search.
type SearchOptions struct {
	TopK      int
	Threshold float64 // filters after scoring; 0 = off
	Filter    string
}

// HybridOptions configures a hybrid search.
type HybridOptions struct {
	Limit  int
	Filter string
}

// ScoredChunk is one retrieval hit.
type ScoredChunk struct {
	Chunk types.Chunk
	Score float64
}

// CollectionInfo describes a collection's persisted metadata.
type CollectionInfo struct {
	Name          string
	Dimension     int
	IsHybrid      bool
	DocumentCount int
	CreatedAt     time.Time
}

// VectorStore is the storage contract for chunk collections.
// Implementations upsert by chunk id, so re-inserting unchanged
// content is idempotent.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	CreateHybridCollection(ctx context.Context, name string, dimension int) error
	DropCollection(ctx context.Context, name string) error
	HasCollection(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	Insert(ctx context.Context, name string, chunks []types.Chunk, dense [][]float32) error
	InsertHybrid(ctx context.Context, name string, chunks []types.Chunk, dense [][]float32) error
	Delete(ctx context.Context, name string, ids []string) error

	// TrainBM25 (re)trains the collection's sparse model over a
	// corpus and regenerates stored sparse vectors. Hybrid only.
	TrainBM25(ctx context.Context, name string, corpus []string) error

	// Query returns a projection of rows matching the filter. An
	// empty filter matches everything; limit <= 0 means no limit.
	Query(ctx context.Context, name, filter string, fields []string, limit int) ([]map[string]any, error)

	Search(ctx context.Context, name string, query []float32, opts SearchOptions) ([]ScoredChunk, error)

	// HybridSearch fuses dense and sparse rankings with RRF. When
	// the sparse side yields no terms it falls back to dense-only.
	HybridSearch(ctx context.Context, name string, dense []float32, queryText string, opts HybridOptions) ([]ScoredChunk, error)

	// CheckCollectionLimit reports whether new collections may be
	// created. The local backend has no cap.
	CheckCollectionLimit(ctx context.Context) (bool, error)

	Close() error
}
