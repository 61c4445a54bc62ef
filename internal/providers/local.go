package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"dory/internal/util"
)

const (
	defaultHFModel = "sentence-transformers/all-MiniLM-L6-v2"
	// text-embeddings-inference rejects client batches above its max_client_batch_size (32 by default).
	hfClientBatch = 32
)

// LocalProvider runs a Hugging Face sentence-embedding model served on this host by
// text-embeddings-inference. Token embeddings from /embed_all are pooled here so
// the pooling strategy stays under our control.
type LocalProvider struct {
	baseURL    string
	model      string
	pooling    string
	normalize  bool
	maxRetries int
	client     *http.Client

	mu     sync.Mutex
	loaded bool
}

func NewLocalProvider(baseURL, model, pooling string, normalize bool, timeout time.Duration, maxRetries int) *LocalProvider {
	if model == "" {
		model = defaultHFModel
	}
	if pooling == "" {
		pooling = "mean"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LocalProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      model,
		pooling:    pooling,
		normalize:  normalize,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
	}
}

// ensureLoaded probes /info until it succeeds once; the model id reported by the
// server replaces the configured one.
func (l *LocalProvider) ensureLoaded(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/info", nil)
	if err != nil {
		return fmt.Errorf("%w: hf endpoint %q: %v", util.ErrConfig, l.baseURL, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("hf model probe: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &statusError{Backend: "hf", StatusCode: resp.StatusCode, Body: string(body)}
	}
	var parsed struct {
		ModelID string `json:"model_id"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.ModelID != "" {
		l.model = parsed.ModelID
	}
	l.loaded = true
	return nil
}

func (l *LocalProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return nil, ProviderInfo{Name: "hf", Model: l.model, Key: "hf"}, wrapFailure("hf model", err)
	}
	info := ProviderInfo{Name: "hf", Model: l.model, Key: "hf"}
	out := make([][]float32, 0, len(req.Inputs))
	for start := 0; start < len(req.Inputs); start += hfClientBatch {
		end := start + hfClientBatch
		if end > len(req.Inputs) {
			end = len(req.Inputs)
		}
		batch := req.Inputs[start:end]
		tokens, err := withRetry(ctx, l.maxRetries, func() ([][][]float32, error) {
			return l.embedAll(ctx, batch)
		})
		if err != nil {
			return nil, info, wrapFailure("hf embeddings", err)
		}
		if len(tokens) != len(batch) {
			return nil, info, fmt.Errorf("%w: hf returned %d results for %d inputs", util.ErrMalformedResult, len(tokens), len(batch))
		}
		for _, t := range tokens {
			vec, err := pool(t, l.pooling)
			if err != nil {
				return nil, info, err
			}
			if l.normalize {
				vec = L2Normalize(vec)
			}
			out = append(out, vec)
		}
	}
	if err := CheckShape(out, len(req.Inputs)); err != nil {
		return nil, info, fmt.Errorf("hf embeddings: %w", err)
	}
	return out, info, nil
}

func (l *LocalProvider) embedAll(ctx context.Context, inputs []string) ([][][]float32, error) {
	payload, _ := json.Marshal(map[string]any{"inputs": inputs, "truncate": true})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/embed_all", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: hf request: %v", util.ErrConfig, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hf embed_all request failed: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &statusError{
			Backend:    "hf",
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	var parsed [][][]float32
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode hf response: %v", util.ErrMalformedResult, err)
	}
	return parsed, nil
}

// pool reduces a (tokens, hidden) matrix to one vector.
func pool(tokens [][]float32, strategy string) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("%w: hf returned no token embeddings", util.ErrMalformedResult)
	}
	dim := len(tokens[0])
	if strategy == "cls" {
		out := make([]float32, dim)
		copy(out, tokens[0])
		return out, nil
	}
	sum := make([]float64, dim)
	for i, tok := range tokens {
		if len(tok) != dim {
			return nil, fmt.Errorf("%w: token %d has width %d, expected %d", util.ErrMalformedResult, i, len(tok), dim)
		}
		for j, x := range tok {
			sum[j] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(tokens))
	for j := range sum {
		out[j] = float32(sum[j] / n)
	}
	return out, nil
}
