package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dory/internal/config"
	"dory/internal/faq"
	"dory/internal/models"
	"dory/internal/providers"
	"dory/internal/util"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// Apology is returned instead of internal error text when the model call fails.
const Apology = "Sorry, I had a problem generating a response. Please try again in a moment."

var ErrEmptyMessage = errors.New("empty message")

type FAQMatcher interface {
	Match(ctx context.Context, question string) (faq.Match, bool, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, hint models.Domain) ([]models.Hit, models.Domain, error)
}

type ChatLogStore interface {
	InsertChatLog(ctx context.Context, l models.ChatLog) error
	SessionLogs(ctx context.Context, sessionID string, limit int) ([]models.ChatLog, error)
	SessionUserTexts(ctx context.Context, sessionID string) ([]string, error)
}

// ModelFactory builds a chat provider; swapped out in tests.
type ModelFactory func(cfg config.Chat) (providers.LLMProvider, error)

type Options struct {
	Chat         config.Chat
	RAGEnabled   bool
	RAGTimeout   time.Duration
	FAQ          FAQMatcher
	Searcher     Searcher
	Logs         ChatLogStore
	Model        providers.LLMProvider
	ModelFactory ModelFactory
	Logger       arbor.ILogger
}

type TurnRequest struct {
	SessionID string `json:"session_id"`
	UserText  string `json:"user_text"`
}

type TurnResult struct {
	SessionID      string            `json:"session_id"`
	Answer         string            `json:"answer"`
	Source         string            `json:"source"`
	Domain         models.Domain     `json:"domain"`
	UsedRAG        bool              `json:"used_rag"`
	ManualOverride bool              `json:"manual_override"`
	Model          string            `json:"model"`
	Hits           []models.Hit      `json:"hits,omitempty"`
	Usage          models.TokenUsage `json:"usage"`
}

type Service struct {
	cfg          config.Chat
	ragEnabled   bool
	ragTimeout   time.Duration
	faq          FAQMatcher
	searcher     Searcher
	logs         ChatLogStore
	prompts      Prompts
	modelFactory ModelFactory
	logger       arbor.ILogger

	mu    sync.RWMutex
	model providers.LLMProvider
	ref   providers.ModelRef
}

func NewService(o Options) (*Service, error) {
	if o.ModelFactory == nil {
		o.ModelFactory = providers.MakeChatModel
	}
	model := o.Model
	if model == nil {
		m, err := o.ModelFactory(o.Chat)
		if err != nil {
			return nil, err
		}
		model = m
	}
	return &Service{
		cfg:          o.Chat,
		ragEnabled:   o.RAGEnabled && o.Searcher != nil,
		ragTimeout:   o.RAGTimeout,
		faq:          o.FAQ,
		searcher:     o.Searcher,
		logs:         o.Logs,
		prompts:      LoadPrompts(o.Chat),
		modelFactory: o.ModelFactory,
		logger:       o.Logger,
		model:        model,
		ref:          providers.ModelRef{Raw: o.Chat.Model, Provider: o.Chat.Provider, Model: o.Chat.Model},
	}, nil
}

// CurrentModel returns the model name used for the next turn.
func (s *Service) CurrentModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ref.Model
}

// SetModel switches the chat model at runtime. "provider:model" also switches the
// provider; a bare name keeps the current one.
func (s *Service) SetModel(raw string) (string, error) {
	ref, err := providers.ParseModelRef(raw)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.Provider = s.ref.Provider
	if ref.Provider != "" {
		cfg.Provider = ref.Provider
	}
	cfg.Model = ref.Model
	model, err := s.modelFactory(cfg)
	if err != nil {
		return "", err
	}
	ref.Provider = cfg.Provider
	s.model, s.ref = model, ref
	s.logger.Info().Str("provider", ref.Provider).Str("model", ref.Model).Msg("Chat model switched")
	return ref.Model, nil
}

func (s *Service) currentModel() (providers.LLMProvider, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model, s.ref.Model
}

// Turn answers one user message: FAQ, then the Summit program override, then
// retrieval and the model. Every answered turn is logged.
func (s *Service) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	text := strings.TrimSpace(req.UserText)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if res, ok := s.answerFromFAQ(ctx, sessionID, text); ok {
		s.record(ctx, text, res)
		return res, nil
	}

	history := s.sessionHistory(ctx, sessionID)
	summitMode := LooksLikeSummitQuestion(text) || s.sessionMentionsSummit(ctx, sessionID, history)

	var programText, programKind string
	if s.cfg.ProgramOverride {
		programText, programKind = ProgramAnswer(text, summitMode)
	}
	if programKind == ProgramKindDay && !IsRecommendation(text) {
		res := TurnResult{
			SessionID:      sessionID,
			Answer:         programText,
			Source:         models.SourceManual,
			Domain:         models.DomainSummit,
			ManualOverride: true,
			Model:          "manual",
		}
		s.record(ctx, text, res)
		return res, nil
	}

	res := TurnResult{SessionID: sessionID, Source: models.SourceModel}
	var contextBlock string
	if s.ragEnabled {
		hint := models.DomainNone
		if summitMode {
			hint = models.DomainSummit
		}
		hits, domain := s.retrieve(ctx, text, hint)
		res.Domain = domain
		if len(hits) > 0 {
			res.Hits = hits
			res.UsedRAG = true
			contextBlock = BuildContextBlock(hits)
		}
	}

	model, modelName := s.currentModel()
	res.Model = modelName
	msgs := buildMessages(promptInput{
		Mode:           s.cfg.PromptMode,
		FirstTurn:      len(history) == 0,
		Prompts:        s.prompts,
		ProgramContext: programText,
		ContextBlock:   contextBlock,
		History:        historyFromLogs(history),
		UserText:       text,
		HistoryLimit:   s.cfg.HistoryMessages,
	})
	out, _, err := model.Generate(ctx, providers.GenerateRequest{
		Operation:   "chat_turn",
		Model:       modelName,
		Messages:    msgs,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Str("model", modelName).Msg("Model call failed")
		res.Answer = Apology
		res.Source = models.SourceError
	} else {
		res.Answer = out.Text
		res.Usage = out.Usage
	}
	s.record(ctx, text, res)
	return res, nil
}

func (s *Service) answerFromFAQ(ctx context.Context, sessionID, text string) (TurnResult, bool) {
	if s.faq == nil {
		return TurnResult{}, false
	}
	m, ok, err := s.faq.Match(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("FAQ lookup failed; continuing without FAQ")
		return TurnResult{}, false
	}
	if !ok {
		return TurnResult{}, false
	}
	return TurnResult{
		SessionID: sessionID,
		Answer:    m.Answer,
		Source:    models.SourceFAQ,
		Model:     "faq",
	}, true
}

// retrieve degrades to no context on timeout or failure.
func (s *Service) retrieve(ctx context.Context, text string, hint models.Domain) ([]models.Hit, models.Domain) {
	if s.ragTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ragTimeout)
		defer cancel()
	}
	hits, domain, err := s.searcher.Search(ctx, text, hint)
	if err != nil {
		s.logger.Warn().Err(err).Str("hint", string(hint)).Msg("Retrieval failed; answering without context")
		return nil, models.DomainNone
	}
	return hits, domain
}

// sessionHistory returns the latest logged turns of the session, oldest first.
func (s *Service) sessionHistory(ctx context.Context, sessionID string) []models.ChatLog {
	if s.logs == nil {
		return nil
	}
	// each logged turn carries a user and an assistant message
	limit := (s.cfg.HistoryMessages + 1) / 2
	if limit < 1 {
		limit = 1
	}
	logs, err := s.logs.SessionLogs(ctx, sessionID, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Session history unavailable")
		return nil
	}
	return logs
}

// sessionMentionsSummit reports whether any earlier user turn of the session asked
// about the Summit. Once set, Summit mode lasts for the rest of the session, past
// the prompt history window. The windowed history is the fallback when the full
// session cannot be read.
func (s *Service) sessionMentionsSummit(ctx context.Context, sessionID string, history []models.ChatLog) bool {
	var texts []string
	if s.logs != nil {
		all, err := s.logs.SessionUserTexts(ctx, sessionID)
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Session messages unavailable, using recent history for Summit mode")
		}
		texts = all
	}
	if texts == nil {
		for _, l := range history {
			texts = append(texts, l.UserText)
		}
	}
	for _, t := range texts {
		if LooksLikeSummitQuestion(t) {
			return true
		}
	}
	return false
}

func (s *Service) record(ctx context.Context, userText string, res TurnResult) {
	s.logger.Info().
		Str("session_id", res.SessionID).
		Str("source", res.Source).
		Str("domain", string(res.Domain)).
		Bool("used_rag", res.UsedRAG).
		Msg("Chat turn answered")
	if s.logs == nil {
		return
	}
	err := s.logs.InsertChatLog(context.WithoutCancel(ctx), models.ChatLog{
		TS:             time.Now().UTC(),
		SessionID:      res.SessionID,
		UserText:       userText,
		Answer:         res.Answer,
		Source:         res.Source,
		Domain:         res.Domain,
		UsedRAG:        res.UsedRAG,
		ManualOverride: res.ManualOverride,
		Model:          res.Model,
		Usage:          res.Usage,
	})
	if err != nil {
		s.logger.Warn().Err(fmt.Errorf("insert chat log: %w", err)).Str("session_id", res.SessionID).Msg("Chat turn not logged")
	}
}

// IsUserError reports errors caused by the request rather than the service.
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptyMessage) || errors.Is(err, util.ErrConfig)
}
