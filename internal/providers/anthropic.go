package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dory/internal/util"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider generates chat answers with Claude models.
type AnthropicProvider struct {
	model  string
	client anthropic.Client
}

func NewAnthropicProvider(apiKey, model string, timeout time.Duration, maxRetries int) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(maxRetries)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &AnthropicProvider{model: model, client: anthropic.NewClient(opts...)}
}

func (a *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	info := ProviderInfo{Name: "anthropic", Model: model, Key: "anthropic"}

	var system []string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return GenerateResponse{}, info, wrapFailure("anthropic chat", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return GenerateResponse{}, info, fmt.Errorf("%w: anthropic returned no text", util.ErrMalformedResult)
	}
	out := GenerateResponse{Text: b.String()}
	out.Usage.InputTokens = resp.Usage.InputTokens
	out.Usage.OutputTokens = resp.Usage.OutputTokens
	out.Usage.CachedTokens = resp.Usage.CacheReadInputTokens
	return out, info, nil
}
