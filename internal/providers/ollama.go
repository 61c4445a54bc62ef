package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dory/internal/util"
)

const defaultOllamaEmbedModel = "nomic-embed-text"

// OllamaEmbeddingProvider embeds one text per request against a local Ollama server.
type OllamaEmbeddingProvider struct {
	baseURL    string
	model      string
	maxRetries int
	client     *http.Client
}

func NewOllamaEmbeddingProvider(baseURL, model string, timeout time.Duration, maxRetries int) *OllamaEmbeddingProvider {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = defaultOllamaEmbedModel
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaEmbeddingProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
	}
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.model, Key: "ollama"}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		vec, err := withRetry(ctx, o.maxRetries, func() ([]float32, error) {
			return o.embedOne(ctx, text)
		})
		if err != nil {
			return nil, info, wrapFailure("ollama embeddings", err)
		}
		out = append(out, matchDimension(vec, req.Dimension))
	}
	if err := CheckShape(out, len(req.Inputs)); err != nil {
		return nil, info, fmt.Errorf("ollama embeddings: %w", err)
	}
	return out, info, nil
}

func (o *OllamaEmbeddingProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": text,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request: %v", util.ErrConfig, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &statusError{
			Backend:    "ollama",
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode ollama embedding response: %v", util.ErrMalformedResult, err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned empty embedding", util.ErrMalformedResult)
	}
	return parsed.Embedding, nil
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
