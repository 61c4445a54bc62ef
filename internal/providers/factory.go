package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dory/internal/config"
	"dory/internal/util"
)

var chatProviders = map[string]struct{}{
	"openai":    {},
	"anthropic": {},
	"mock":      {},
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// MakeBackend builds the embedding backend named by cfg.Provider. Unknown names and
// missing endpoints or keys are configuration errors.
func MakeBackend(ctx context.Context, cfg config.Embedding) (EmbeddingProvider, error) {
	var p EmbeddingProvider
	switch name := strings.ToLower(strings.TrimSpace(cfg.Provider)); name {
	case "openai":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: openai embeddings need DORY_EMBEDDING_API_KEY or OPENAI_API_KEY", util.ErrConfig)
		}
		p = NewOpenAIProvider(OpenAIOptions{
			Name:       "openai",
			APIKey:     key,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case "http_compatible":
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
		if endpoint == "" {
			return nil, fmt.Errorf("%w: http_compatible embeddings need DORY_EMBEDDING_ENDPOINT", util.ErrConfig)
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("%w: http_compatible embeddings need DORY_EMBEDDING_MODEL", util.ErrConfig)
		}
		p = NewOpenAIProvider(OpenAIOptions{
			Name:       "http_compatible",
			APIKey:     cfg.APIKey,
			BaseURL:    endpoint,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case "hf":
		if strings.TrimSpace(cfg.HFEndpoint) == "" {
			return nil, fmt.Errorf("%w: hf embeddings need DORY_HF_ENDPOINT", util.ErrConfig)
		}
		p = NewLocalProvider(cfg.HFEndpoint, cfg.Model, cfg.HFPooling, cfg.HFNormalize, cfg.Timeout, cfg.MaxRetries)
	case "ollama":
		p = NewOllamaEmbeddingProvider(cfg.OllamaHost, cfg.Model, cfg.Timeout, cfg.MaxRetries)
	case "gemini":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: gemini embeddings need DORY_EMBEDDING_API_KEY or GEMINI_API_KEY", util.ErrConfig)
		}
		g, err := NewGeminiProvider(ctx, key, cfg.Model, cfg.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrConfig, err)
		}
		p = g
	case "mock":
		p = NewMockProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", util.ErrConfig, cfg.Provider)
	}
	return WithRateLimit(p, cfg.RPS), nil
}

// MakeChatModel builds the chat provider named by cfg.Provider.
func MakeChatModel(cfg config.Chat) (LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: openai chat needs DORY_API_KEY or OPENAI_API_KEY", util.ErrConfig)
		}
		return NewOpenAIProvider(OpenAIOptions{
			Name:       "openai",
			APIKey:     key,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "anthropic":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: anthropic chat needs DORY_API_KEY or ANTHROPIC_API_KEY", util.ErrConfig)
		}
		return NewAnthropicProvider(key, cfg.Model, cfg.Timeout, cfg.MaxRetries), nil
	case "mock":
		return NewMockProvider(0), nil
	default:
		return nil, fmt.Errorf("%w: unknown chat provider %q", util.ErrConfig, cfg.Provider)
	}
}
