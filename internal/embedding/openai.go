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
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
	openAIDimensions   = 1536
	openAIMaxBatch     = 100
)

// OpenAIEmbedder calls the OpenAI embeddings API (or any compatible endpoint).
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder. Empty baseURL, model, or
// dimensions fall back to text-embedding-3-small defaults. The API key may be
// empty for compatible endpoints that do not require auth.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, timeout time.Duration) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if dimensions <= 0 {
		dimensions = openAIDimensions
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed generates one embedding.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &models.ProviderUnavailableError{Provider: o.Model(), Err: fmt.Errorf("no embeddings returned")}
	}
	return vecs[0], nil
}

// EmbedBatch embeds up to openAIMaxBatch texts per request, splitting larger inputs.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxBatch {
		end := start + openAIMaxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := o.callAPI(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *OpenAIEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

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
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &models.ProviderUnavailableError{Provider: o.Model(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(apiResp.Data) != len(texts) {
		return nil, &models.ProviderUnavailableError{
			Provider: o.Model(),
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(apiResp.Data), len(texts)),
		}
	}
	out := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &models.ProviderUnavailableError{Provider: o.Model(), Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		if err := validateVector(o.model, o.dimensions, d.Embedding); err != nil {
			return nil, err
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Model returns the OpenAI model name.
func (o *OpenAIEmbedder) Model() string { return "openai/" + o.model }

// Dimensions returns the declared embedding dimension.
func (o *OpenAIEmbedder) Dimensions() int { return o.dimensions }

// Close is a no-op; the HTTP client holds no persistent resources.
func (o *OpenAIEmbedder) Close() error { return nil }
