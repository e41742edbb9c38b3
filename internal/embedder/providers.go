package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dshills/semindex-mcp/pkg/types"
)

// Provider names and defaults.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	OpenAIDimension      = 1536
	OpenAIMaxTokens      = 8192

	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
	OllamaDimension      = 768
	OllamaMaxTokens      = 2048

	requestTimeout = 30 * time.Second
)

// OpenAIProvider implements Embedder against the OpenAI embeddings
// API (or any compatible endpoint via BaseURL).
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	maxTokens  int
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates an OpenAI-compatible embedder.
func NewOpenAIProvider(apiKey, baseURL, model string, dimension int, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key required for openai provider", ErrNoProviderEnabled)
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dimension <= 0 {
		dimension = OpenAIDimension
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		maxTokens:  OpenAIMaxTokens,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache,
	}, nil
}

func (p *OpenAIProvider) Dimension() int   { return p.dimension }
func (p *OpenAIProvider) Provider() string { return ProviderOpenAI }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	hash := ComputeHash(text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}
	results, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	inputs := Preprocess(texts, p.maxTokens)

	embeddings, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([]Embedding, error) {
		return p.callAPI(ctx, inputs)
	})
	if err != nil {
		return nil, &types.RemoteError{Op: "openai embed", Retryable: false, Err: err}
	}

	if p.cache != nil {
		for i := range embeddings {
			emb := embeddings[i]
			p.cache.Set(ComputeHash(texts[i]), &emb)
		}
	}
	return embeddings, nil
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([]Embedding, error) {
	body, err := json.Marshal(openAIRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailed, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(texts), len(parsed.Data))
	}

	// The API may reorder; index restores request order.
	out := make([]Embedding, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderFailed, d.Index)
		}
		out[d.Index] = Embedding{Vector: d.Embedding, Dimension: len(d.Embedding)}
	}
	return out, nil
}

// OllamaProvider implements Embedder against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimension  int
	maxTokens  int
	httpClient *http.Client
	cache      *Cache
}

// NewOllamaProvider creates an Ollama embedder.
func NewOllamaProvider(baseURL, model string, dimension int, cache *Cache) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if dimension <= 0 {
		dimension = OllamaDimension
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		maxTokens:  OllamaMaxTokens,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache,
	}
}

func (p *OllamaProvider) Dimension() int   { return p.dimension }
func (p *OllamaProvider) Provider() string { return ProviderOllama }

func (p *OllamaProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	hash := ComputeHash(text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}
	results, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	inputs := Preprocess(texts, p.maxTokens)

	embeddings, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([]Embedding, error) {
		return p.callAPI(ctx, inputs)
	})
	if err != nil {
		return nil, &types.RemoteError{Op: "ollama embed", Retryable: false, Err: err}
	}

	if p.cache != nil {
		for i := range embeddings {
			emb := embeddings[i]
			p.cache.Set(ComputeHash(texts[i]), &emb)
		}
	}
	return embeddings, nil
}

func (p *OllamaProvider) callAPI(ctx context.Context, texts []string) ([]Embedding, error) {
	body, err := json.Marshal(ollamaRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(texts), len(parsed.Embeddings))
	}

	out := make([]Embedding, len(texts))
	for i, vec := range parsed.Embeddings {
		out[i] = Embedding{Vector: vec, Dimension: len(vec)}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
