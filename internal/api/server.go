package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dory/internal/chat"
	"dory/internal/faq"
	"dory/internal/index"
	"dory/internal/logging"
	"dory/internal/models"
	"dory/internal/util"

	"github.com/ternarybob/arbor"
)

const maxBodyBytes = 1 << 20

var (
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errUnauthorized     = errors.New("unauthorized")
	errUnavailable      = errors.New("unavailable")
)

type ChatService interface {
	Turn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error)
	SetModel(raw string) (string, error)
	CurrentModel() string
}

type Searcher interface {
	Search(ctx context.Context, query string, hint models.Domain) ([]models.Hit, models.Domain, error)
}

type FAQMatcher interface {
	Match(ctx context.Context, question string) (faq.Match, bool, error)
}

type FAQWriter interface {
	UpsertFAQ(ctx context.Context, e models.FAQEntry) error
}

type StatsSource interface {
	Stats(ctx context.Context) (models.ChatStats, error)
}

type Options struct {
	AdminToken string
	Chat       ChatService
	Search     Searcher
	FAQ        FAQMatcher
	FAQWriter  FAQWriter
	Stats      StatsSource
	IndexStats func() ([]index.CorpusStats, error)
	Rebuilder  IndexRebuilder
	Logger     arbor.ILogger
}

type Server struct {
	opts   Options
	logger arbor.ILogger
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = logging.GetLogger()
	}
	return &Server{opts: o, logger: o.Logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/faq/match", s.handleFAQMatch)
	mux.HandleFunc("/admin/set_model", s.admin(s.handleSetModel))
	mux.HandleFunc("/admin/faq", s.admin(s.handleAdminFAQ))
	mux.HandleFunc("/admin/stats", s.admin(s.handleStats))
	mux.HandleFunc("/admin/index/rebuild", s.admin(s.handleRebuild))
	return withCORS(s.withRequestLog(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"ok": true}
	if s.opts.Chat != nil {
		out["model"] = s.opts.Chat.CurrentModel()
	}
	if s.opts.IndexStats != nil {
		if stats, err := s.opts.IndexStats(); err != nil {
			out["index_error"] = "index unavailable"
		} else {
			out["index"] = stats
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	var req chat.TurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.opts.Chat.Turn(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	var req struct {
		Query      string `json:"query"`
		DomainHint string `json:"domain_hint"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	hint := models.DomainNone
	if h := strings.ToLower(strings.TrimSpace(req.DomainHint)); h != "" {
		d, ok := models.ParseDomain(h)
		if !ok {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown domain_hint %q", req.DomainHint))
			return
		}
		hint = d
	}
	hits, domain, err := s.opts.Search.Search(r.Context(), req.Query, hint)
	if err != nil {
		s.fail(w, err)
		return
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "domain": domain})
}

func (s *Server) handleFAQMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m, ok, err := s.opts.FAQ.Match(r.Context(), req.Question)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := map[string]any{"matched": ok}
	if ok {
		out["match"] = m
	}
	writeJSON(w, http.StatusOK, out)
}

// admin guards a handler with the X-Admin-Token header. Admin routes do not exist
// when no token is configured.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			writeErr(w, http.StatusNotFound, errNotFound)
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminToken)) != 1 {
			writeErr(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	var req struct {
		NewModel string `json:"new_model"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := s.opts.Chat.SetModel(req.NewModel)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "current_model": current})
}

func (s *Server) handleAdminFAQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	q := faq.Normalize(req.Question)
	answer := strings.TrimSpace(req.Answer)
	if q == "" || answer == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question and answer are required"))
		return
	}
	if err := s.opts.FAQWriter.UpsertFAQ(r.Context(), models.FAQEntry{QuestionNorm: q, Answer: answer, CreatedAt: time.Now().UTC()}); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "question_norm": q})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	st, err := s.opts.Stats.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.opts.Rebuilder == nil {
		writeErr(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		prog, err := s.opts.Rebuilder.IndexBuildProgress(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
	case http.MethodPost:
		var req struct {
			Corpora []string `json:"corpora"`
		}
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		for _, c := range req.Corpora {
			if _, ok := models.ParseDomain(c); !ok {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown corpus %q", c))
				return
			}
		}
		runID, err := s.opts.Rebuilder.StartIndexBuild(r.Context(), req.Corpora)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": IndexBuildWorkflowID, "run_id": runID})
	default:
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	}
}

// fail maps an error onto a status and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeErr(w, status, err)
}

func statusFor(err error) int {
	switch {
	case chat.IsUserError(err):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNotFound), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBuildRunning):
		return http.StatusConflict
	case errors.Is(err, util.ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DORY-API-4000"

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "DORY-API-5020", Message: "Upstream provider unavailable. Retry shortly."}
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "DORY-API-5030", Message: "This feature is not configured on the server."}
	case status == http.StatusGatewayTimeout:
		return apiError{Code: "DORY-API-5040", Message: "The request timed out. Retry shortly."}
	case status >= 500:
		return apiError{Code: "DORY-API-5000", Message: "Internal server error. Please retry or check service logs."}
	case status == http.StatusBadRequest:
		code = "DORY-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusUnauthorized:
		code = "DORY-API-4010"
		msg = "Admin token missing or invalid."
	case status == http.StatusNotFound:
		code = "DORY-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "DORY-API-4009"
		msg = "An index build is already running. Check its progress and retry later."
	case status == http.StatusMethodNotAllowed:
		code = "DORY-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			msg = "Message text is required."
		case strings.Contains(low, "query is required"):
			msg = "Search query is required."
		case strings.Contains(low, "domain_hint"):
			msg = "domain_hint must be \"de\" or \"summit\"."
		case strings.Contains(low, "unknown corpus"):
			msg = "corpora may only contain \"de\" and \"summit\"."
		case strings.Contains(low, "question and answer are required"):
			msg = "Both question and answer are required."
		case errors.Is(err, util.ErrConfig):
			msg = "Invalid model or configuration value."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int64("ms", time.Since(start).Milliseconds()).Msg("HTTP request")
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
