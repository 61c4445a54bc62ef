package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiEmbedModel = "text-embedding-004"

// GeminiProvider embeds through the Gemini API in a single batch call.
type GeminiProvider struct {
	model      string
	maxRetries int
	client     *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, maxRetries int) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	if model == "" {
		model = defaultGeminiEmbedModel
	}
	return &GeminiProvider{model: model, maxRetries: maxRetries, client: client}, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.model, Key: "gemini"}
	if len(req.Inputs) == 0 {
		return [][]float32{}, info, nil
	}
	contents := make([]*genai.Content, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}
	var cfg *genai.EmbedContentConfig
	if req.Dimension > 0 {
		dim := int32(req.Dimension)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
	result, err := withRetry(ctx, g.maxRetries, func() (*genai.EmbedContentResponse, error) {
		return g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
	})
	if err != nil {
		return nil, info, wrapFailure("gemini embeddings", err)
	}
	var out [][]float32
	if result != nil {
		out = make([][]float32, 0, len(result.Embeddings))
		for _, e := range result.Embeddings {
			if e == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, e.Values)
		}
	}
	if err := CheckShape(out, len(req.Inputs)); err != nil {
		return nil, info, fmt.Errorf("gemini embeddings: %w", err)
	}
	return out, info, nil
}
