// Package embedder defines the dense-embedding contract consumed by
// the indexing pipeline, plus HTTP providers, retry with exponential
// backoff, and an LRU cache keyed by content hash.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors.
var (
	ErrEmptyBatch        = errors.New("no texts provided")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is a dense vector with its dimension.
type Embedding struct {
	Vector    []float32
	Dimension int
}

// Embedder generates dense embeddings for code and query text.
type Embedder interface {
	// Dimension returns the vector length this provider produces.
	Dimension() int

	// Provider returns the provider name.
	Provider() string

	// Embed generates a single embedding.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// EmbedBatch generates embeddings for multiple texts,
	// order-preserving.
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// Preprocess normalizes input before a provider call: empty text
// becomes a single space (providers reject empty strings) and long
// text is truncated to the provider's estimated character budget of
// 4 chars per token.
func Preprocess(texts []string, maxTokens int) []string {
	limit := maxTokens * 4
	out := make([]string, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			text = " "
		}
		if limit > 0 && len(text) > limit {
			text = text[:limit]
		}
		out[i] = text
	}
	return out
}

// ComputeHash returns the cache key for a text.
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Cache is an in-memory LRU of embeddings keyed by content hash.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding up to maxLen embeddings.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a deep copy so caller mutations can't pollute the cache.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	vector := make([]float32, len(emb.Vector))
	copy(vector, emb.Vector)
	return &Embedding{Vector: vector, Dimension: emb.Dimension}, true
}

// Set stores an embedding; LRU eviction applies at capacity.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Len returns the current entry count.
func (c *Cache) Len() int { return c.cache.Len() }

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w", ErrEmptyBatch)
	}
	return nil
}
