package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		maxTokens int
		want      []string
	}{
		{"empty becomes space", []string{""}, 100, []string{" "}},
		{"whitespace becomes space", []string{"   "}, 100, []string{" "}},
		{"truncates to 4x tokens", []string{strings.Repeat("x", 100)}, 10, []string{strings.Repeat("x", 40)}},
		{"no limit when zero", []string{strings.Repeat("x", 100)}, 0, []string{strings.Repeat("x", 100)}},
		{"passes through", []string{"hello"}, 100, []string{"hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.input, tt.maxTokens))
		})
	}
}

func TestCache(t *testing.T) {
	cache := NewCache(2)
	emb := &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3}
	cache.Set("k1", emb)

	got, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, emb.Vector, got.Vector)

	// Mutating the copy must not affect the cached value.
	got.Vector[0] = 99
	again, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "some code")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "some code")
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector)
	assert.Len(t, a.Vector, 64)

	c, err := p.Embed(ctx, "different code")
	require.NoError(t, err)
	assert.NotEqual(t, a.Vector, c.Vector)
}

func TestMockProvider_UnitNorm(t *testing.T) {
	p := NewMockProvider(64)
	emb, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)

	var norm float64
	for _, v := range emb.Vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestMockProvider_BatchOrder(t *testing.T) {
	p := NewMockProvider(32)
	ctx := context.Background()
	texts := []string{"one", "two", "three"}

	batch, err := p.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, err := p.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single.Vector, batch[i].Vector)
	}
}

func TestMockProvider_EmptyBatch(t *testing.T) {
	p := NewMockProvider(32)
	_, err := p.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("rate limit exceeded")))
	assert.True(t, isRetryable(errors.New("request timed out")))
	assert.True(t, isRetryable(errors.New("status 503: unavailable")))
	assert.False(t, isRetryable(errors.New("invalid api key")))
	assert.False(t, isRetryable(nil))
}

func TestRetryWithBackoff_SucceedsAfterRetry(t *testing.T) {
	var calls atomic.Int32
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}

	result, err := retryWithBackoff(context.Background(), cfg, func() (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryWithBackoff_NonRetryableSurfaces(t *testing.T) {
	var calls atomic.Int32
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}

	_, err := retryWithBackoff(context.Background(), cfg, func() (string, error) {
		calls.Add(1)
		return "", errors.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openAIResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), 1, 2}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", server.URL, "", 3, nil)
	require.NoError(t, err)

	out, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0, 1, 2}, out[0].Vector)
	assert.Equal(t, []float32{1, 1, 2}, out[1].Vector)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", server.URL, "", 3, nil)
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "", "", 0, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestOllamaProvider_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := ollamaResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{1, 2, 3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "", 3, nil)
	out, err := p.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float32{1, 2, 3}, out[0].Vector)
}

func TestProviderCache_Hit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		resp := openAIResponse{}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: []float32{1, 2, 3}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("k", server.URL, "", 3, NewCache(10))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Embed(ctx, "cached text")
	require.NoError(t, err)
	_, err = p.Embed(ctx, "cached text")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
