// Package types contains the data model shared across the indexing
// pipeline, the vector store, and the search layer.
//
// The central type is Chunk: a contiguous region of one source file
// with a content-addressed id that is stable across runs. Chunks are
// produced by the splitter, vectorized by the embedder and the BM25
// vectorizer, and upserted into a collection.
package types
