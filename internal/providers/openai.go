package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"dory/internal/util"
)

const (
	defaultOpenAIEmbedModel = "text-embedding-3-small"
	defaultOpenAIChatModel  = "gpt-4.1-mini"
)

type OpenAIOptions struct {
	// Name is reported in ProviderInfo: "openai" or "http_compatible".
	Name       string
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIProvider talks to the OpenAI API or any server exposing the same
// /embeddings and /chat/completions routes.
type OpenAIProvider struct {
	name   string
	model  string
	client openai.Client
}

func NewOpenAIProvider(o OpenAIOptions) *OpenAIProvider {
	opts := []option.RequestOption{option.WithMaxRetries(o.MaxRetries)}
	if o.APIKey != "" {
		opts = append(opts, option.WithAPIKey(o.APIKey))
	} else {
		// compatible servers frequently run without auth; the SDK still wants a value
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(o.BaseURL, "/")+"/"))
	}
	if o.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.Timeout))
	}
	name := o.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{name: name, model: o.Model, client: openai.NewClient(opts...)}
}

func (o *OpenAIProvider) info(model string) ProviderInfo {
	return ProviderInfo{Name: o.name, Model: model, Key: o.name}
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	model := o.model
	if model == "" {
		model = defaultOpenAIEmbedModel
	}
	info := o.info(model)
	if len(req.Inputs) == 0 {
		return [][]float32{}, info, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Inputs},
		Model: model,
	}
	if req.Dimension > 0 {
		params.Dimensions = openai.Int(int64(req.Dimension))
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, info, wrapFailure(o.name+" embeddings", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = toFloat32(d.Embedding)
	}
	if err := CheckShape(out, len(req.Inputs)); err != nil {
		return nil, info, fmt.Errorf("%s embeddings: %w", o.name, err)
	}
	return out, info, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	if model == "" {
		model = defaultOpenAIChatModel
	}
	info := o.info(model)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       model,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return GenerateResponse{}, info, wrapFailure(o.name+" chat", err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("%w: %s returned empty choices", util.ErrMalformedResult, o.name)
	}
	out := GenerateResponse{Text: resp.Choices[0].Message.Content}
	out.Usage.InputTokens = resp.Usage.PromptTokens
	out.Usage.OutputTokens = resp.Usage.CompletionTokens
	out.Usage.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	return out, info, nil
}
