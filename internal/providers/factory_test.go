package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dory/internal/config"
	"dory/internal/util"
)

func TestMakeBackend(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	base := config.Default().Embedding

	cases := []struct {
		name    string
		mutate  func(*config.Embedding)
		wantErr error
	}{
		{"unknown provider", func(e *config.Embedding) { e.Provider = "word2vec" }, util.ErrConfig},
		{"http_compatible without endpoint", func(e *config.Embedding) { e.Provider = "http_compatible"; e.Model = "m" }, util.ErrConfig},
		{"openai without key", func(e *config.Embedding) { e.Provider = "openai" }, util.ErrConfig},
		{"gemini without key", func(e *config.Embedding) { e.Provider = "gemini" }, util.ErrConfig},
		{"hf without endpoint", func(e *config.Embedding) { e.Provider = "hf"; e.HFEndpoint = "" }, util.ErrConfig},
		{"http_compatible", func(e *config.Embedding) {
			e.Provider = "http_compatible"
			e.Endpoint = "http://localhost:9/v1/"
			e.Model = "m"
		}, nil},
		{"openai with key", func(e *config.Embedding) { e.Provider = "openai"; e.APIKey = "sk-test" }, nil},
		{"ollama", func(e *config.Embedding) { e.Provider = "ollama" }, nil},
		{"hf", func(e *config.Embedding) { e.Provider = "hf" }, nil},
		{"mock rate limited", func(e *config.Embedding) { e.Provider = "MOCK"; e.RPS = 5 }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			p, err := MakeBackend(t.Context(), cfg)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
		})
	}
}

func TestRateLimitedBackendDelegates(t *testing.T) {
	cfg := config.Default().Embedding
	cfg.Provider = "mock"
	cfg.Dimension = 8
	cfg.RPS = 100
	p, err := MakeBackend(t.Context(), cfg)
	require.NoError(t, err)
	vecs, info, err := p.Embed(t.Context(), EmbedRequest{Inputs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	require.NoError(t, CheckShape(vecs, 2))
	require.Len(t, vecs[0], 8)
}

func TestMakeChatModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default().Chat

	_, err := MakeChatModel(cfg)
	require.ErrorIs(t, err, util.ErrConfig)

	cfg.Provider = "palm"
	_, err = MakeChatModel(cfg)
	require.ErrorIs(t, err, util.ErrConfig)

	cfg.Provider = "anthropic"
	cfg.APIKey = "k"
	m, err := MakeChatModel(cfg)
	require.NoError(t, err)
	require.IsType(t, &AnthropicProvider{}, m)

	cfg.Provider = "mock"
	m, err = MakeChatModel(cfg)
	require.NoError(t, err)
	resp, info, err := m.Generate(t.Context(), GenerateRequest{Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hello there"}}})
	require.NoError(t, err)
	require.Equal(t, "Mock answer: hello there", resp.Text)
	require.Equal(t, "mock", info.Name)
}
