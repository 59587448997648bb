package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshigiri/kensaku/internal/models"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
	ollamaDimensions   = 768
)

// OllamaEmbedder calls a local Ollama server's embeddings API.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOllamaEmbedder creates an Ollama-backed embedder. Empty baseURL, model, or
// dimensions fall back to nomic-embed-text defaults.
func NewOllamaEmbedder(baseURL, model string, dimensions int, timeout time.Duration) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if dimensions <= 0 {
		dimensions = ollamaDimensions
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed generates one embedding via POST /api/embeddings.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{
		"model":  o.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, &models.ProviderUnavailableError{Provider: o.Model(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &models.ProviderUnavailableError{
			Provider: o.Model(),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(msg)),
		}
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &models.ProviderUnavailableError{Provider: o.Model(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := validateVector(o.model, o.dimensions, apiResp.Embedding); err != nil {
		return nil, err
	}
	return apiResp.Embedding, nil
}

// EmbedBatch embeds each text sequentially; the Ollama embeddings endpoint is single-input.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Model returns the Ollama model name.
func (o *OllamaEmbedder) Model() string { return "ollama/" + o.model }

// Dimensions returns the declared embedding dimension.
func (o *OllamaEmbedder) Dimensions() int { return o.dimensions }

// Close is a no-op; the HTTP client holds no persistent resources.
func (o *OllamaEmbedder) Close() error { return nil }
