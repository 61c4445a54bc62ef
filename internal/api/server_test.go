package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"dory/internal/chat"
	"dory/internal/faq"
	"dory/internal/index"
	"dory/internal/models"
	"dory/internal/util"
	"dory/internal/workflows"
)

type fakeChat struct {
	model string
	err   error
}

func (f *fakeChat) Turn(_ context.Context, req chat.TurnRequest) (chat.TurnResult, error) {
	if f.err != nil {
		return chat.TurnResult{}, f.err
	}
	if req.UserText == "" {
		return chat.TurnResult{}, chat.ErrEmptyMessage
	}
	return chat.TurnResult{SessionID: "s1", Answer: "echo: " + req.UserText, Source: models.SourceModel}, nil
}

func (f *fakeChat) SetModel(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty model name", util.ErrConfig)
	}
	f.model = raw
	return raw, nil
}

func (f *fakeChat) CurrentModel() string { return f.model }

type fakeSearch struct {
	hint models.Domain
	err  error
}

func (f *fakeSearch) Search(_ context.Context, q string, hint models.Domain) ([]models.Hit, models.Domain, error) {
	f.hint = hint
	if f.err != nil {
		return nil, models.DomainNone, f.err
	}
	if q == "nothing" {
		return nil, models.DomainNone, nil
	}
	return []models.Hit{{Score: 0.7, Text: "hit", Domain: models.DomainDE}}, models.DomainDE, nil
}

type fakeFAQ struct{ upserts []models.FAQEntry }

func (f *fakeFAQ) Match(_ context.Context, q string) (faq.Match, bool, error) {
	if faq.Normalize(q) == "where is it?" {
		return faq.Match{Question: "where is it?", Answer: "Canberra", Score: 100}, true, nil
	}
	return faq.Match{}, false, nil
}

func (f *fakeFAQ) UpsertFAQ(_ context.Context, e models.FAQEntry) error {
	f.upserts = append(f.upserts, e)
	return nil
}

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (models.ChatStats, error) {
	return models.ChatStats{Turns: 3, Sessions: 2}, nil
}

type fakeRebuilder struct {
	running bool
	started [][]string
}

func (f *fakeRebuilder) StartIndexBuild(_ context.Context, corpora []string) (string, error) {
	if f.running {
		return "", ErrBuildRunning
	}
	f.started = append(f.started, corpora)
	return "run-1", nil
}

func (f *fakeRebuilder) IndexBuildProgress(context.Context) (workflows.IndexBuildProgress, error) {
	if len(f.started) == 0 {
		return workflows.IndexBuildProgress{}, errNotFound
	}
	return workflows.IndexBuildProgress{RunID: "run-1", Total: 2, Status: "running"}, nil
}

type fixture struct {
	srv     *httptest.Server
	chat    *fakeChat
	search  *fakeSearch
	faq     *fakeFAQ
	rebuild *fakeRebuilder
}

func newFixture(t *testing.T, adminToken string) *fixture {
	t.Helper()
	f := &fixture{chat: &fakeChat{model: "gpt-4.1-mini"}, search: &fakeSearch{}, faq: &fakeFAQ{}, rebuild: &fakeRebuilder{}}
	s := NewServer(Options{
		AdminToken: adminToken,
		Chat:       f.chat,
		Search:     f.search,
		FAQ:        f.faq,
		FAQWriter:  f.faq,
		Stats:      fakeStats{},
		IndexStats: func() ([]index.CorpusStats, error) {
			return []index.CorpusStats{{Domain: models.DomainDE, Rows: 4, Dim: 8}}, nil
		},
		Rebuilder: f.rebuild,
		Logger:    arbor.NewLogger(),
	})
	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	return e["code"].(string)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "gpt-4.1-mini", body["model"])
	require.Len(t, body["index"], 1)
}

func TestChatEndpoint(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, http.MethodPost, "/chat", "", map[string]string{"user_text": "hi"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "echo: hi", body["answer"])

	code, body = f.do(t, http.MethodPost, "/chat", "", map[string]string{"user_text": ""})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "DORY-API-4001", errorCode(t, body))

	code, body = f.do(t, http.MethodGet, "/chat", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, code)
	require.Equal(t, "DORY-API-4005", errorCode(t, body))
}

func TestChatEndpointHidesInternalErrors(t *testing.T) {
	f := newFixture(t, "")
	f.chat.err = fmt.Errorf("dial tcp 10.0.0.3:5432: secret-host")
	code, body := f.do(t, http.MethodPost, "/chat", "", map[string]string{"user_text": "hi"})
	require.Equal(t, http.StatusInternalServerError, code)
	require.NotContains(t, fmt.Sprint(body), "secret-host")

	f.chat.err = fmt.Errorf("embed: %w", util.ErrTransient)
	code, body = f.do(t, http.MethodPost, "/chat", "", map[string]string{"user_text": "hi"})
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "DORY-API-5020", errorCode(t, body))
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, http.MethodPost, "/search", "", map[string]string{"query": "twins", "domain_hint": "Summit"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, models.DomainSummit, f.search.hint)
	require.Equal(t, "de", body["domain"])
	require.Len(t, body["hits"], 1)

	code, body = f.do(t, http.MethodPost, "/search", "", map[string]string{"query": "nothing"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{}, body["hits"])
	require.Equal(t, "", body["domain"])

	code, _ = f.do(t, http.MethodPost, "/search", "", map[string]string{"query": "x", "domain_hint": "papers"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/search", "", map[string]string{"query": " "})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestFAQMatchEndpoint(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, http.MethodPost, "/faq/match", "", map[string]string{"question": "Where is   it?"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["matched"])

	_, body = f.do(t, http.MethodPost, "/faq/match", "", map[string]string{"question": "unrelated"})
	require.Equal(t, false, body["matched"])
	require.NotContains(t, body, "match")
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, http.MethodGet, "/admin/stats", "anything", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "DORY-API-4004", errorCode(t, body))
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t, "s3cret")
	code, body := f.do(t, http.MethodGet, "/admin/stats", "wrong", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "DORY-API-4010", errorCode(t, body))

	code, body = f.do(t, http.MethodGet, "/admin/stats", "s3cret", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(3), body["turns"])
}

func TestAdminSetModelAndFAQ(t *testing.T) {
	f := newFixture(t, "s3cret")
	code, body := f.do(t, http.MethodPost, "/admin/set_model", "s3cret", map[string]string{"new_model": "anthropic:claude-sonnet-4-20250514"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "anthropic:claude-sonnet-4-20250514", body["current_model"])

	code, _ = f.do(t, http.MethodPost, "/admin/set_model", "s3cret", map[string]string{"new_model": ""})
	require.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/admin/faq", "s3cret", map[string]string{"question": "  When is   Day 2? ", "answer": "Tuesday."})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "when is day 2?", body["question_norm"])
	require.Len(t, f.faq.upserts, 1)

	code, _ = f.do(t, http.MethodPost, "/admin/faq", "s3cret", map[string]string{"question": "x"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAdminIndexRebuild(t *testing.T) {
	f := newFixture(t, "s3cret")
	code, _ := f.do(t, http.MethodGet, "/admin/index/rebuild", "s3cret", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, body := f.do(t, http.MethodPost, "/admin/index/rebuild", "s3cret", map[string]any{"corpora": []string{"summit"}})
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, "run-1", body["run_id"])
	require.Equal(t, [][]string{{"summit"}}, f.rebuild.started)

	code, body = f.do(t, http.MethodGet, "/admin/index/rebuild", "s3cret", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "running", body["status"])

	f.rebuild.running = true
	code, body = f.do(t, http.MethodPost, "/admin/index/rebuild", "s3cret", nil)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "DORY-API-4009", errorCode(t, body))

	code, _ = f.do(t, http.MethodPost, "/admin/index/rebuild", "s3cret", map[string]any{"corpora": []string{"papers"}})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "")
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/chat", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Admin-Token")
}
