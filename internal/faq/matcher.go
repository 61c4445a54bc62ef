package faq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"dory/internal/config"
	"dory/internal/models"
	"dory/internal/util"
)

// MinFuzzyThreshold is the lowest fuzzy score ever accepted, whatever is configured.
const MinFuzzyThreshold = 80

type Store interface {
	// GetFAQ returns util.ErrNotFound when no entry has the normalized question.
	GetFAQ(ctx context.Context, questionNorm string) (models.FAQEntry, error)
	ListFAQs(ctx context.Context) ([]models.FAQEntry, error)
}

type Scorer func(a, b string) int

type Options struct {
	ExactEnabled     bool
	FuzzyEnabled     bool
	Threshold        int
	GuardedQuestions []string
	GuardKeywords    []string
	Scorer           Scorer
}

func OptionsFromConfig(cfg config.FAQ) Options {
	return Options{
		ExactEnabled:     cfg.Enabled,
		FuzzyEnabled:     cfg.Enabled && cfg.FuzzyEnabled,
		Threshold:        cfg.EffectiveFuzzyThreshold(),
		GuardedQuestions: cfg.GuardedQuestions,
		GuardKeywords:    cfg.GuardKeywords,
	}
}

type Match struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Score    int    `json:"score"`
	Fuzzy    bool   `json:"fuzzy"`
}

type Matcher struct {
	store    Store
	opts     Options
	guarded  map[string]struct{}
	keywords []string
	logger   arbor.ILogger
}

func NewMatcher(store Store, opts Options, logger arbor.ILogger) *Matcher {
	if opts.Threshold < MinFuzzyThreshold {
		opts.Threshold = MinFuzzyThreshold
	}
	if opts.Scorer == nil {
		opts.Scorer = TokenSetRatio
	}
	m := &Matcher{store: store, opts: opts, guarded: map[string]struct{}{}, logger: logger}
	for _, q := range opts.GuardedQuestions {
		m.guarded[Normalize(q)] = struct{}{}
	}
	for _, k := range opts.GuardKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m.keywords = append(m.keywords, k)
		}
	}
	return m
}

func (m *Matcher) Enabled() bool {
	return m.opts.ExactEnabled || m.opts.FuzzyEnabled
}

func (m *Matcher) hasGuardKeyword(q string) bool {
	for _, k := range m.keywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

// Match tries the exact stage, then the fuzzy stage. ok is false when neither fires.
func (m *Matcher) Match(ctx context.Context, question string) (Match, bool, error) {
	q := Normalize(question)
	if q == "" {
		return Match{}, false, nil
	}
	if m.opts.ExactEnabled {
		e, err := m.store.GetFAQ(ctx, q)
		switch {
		case err == nil:
			m.logger.Debug().Str("question", q).Msg("faq exact match")
			return Match{Question: e.QuestionNorm, Answer: e.Answer, Score: 100}, true, nil
		case !errors.Is(err, util.ErrNotFound):
			return Match{}, false, fmt.Errorf("faq exact lookup: %w", err)
		}
	}
	if !m.opts.FuzzyEnabled {
		return Match{}, false, nil
	}

	entries, err := m.store.ListFAQs(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("faq list: %w", err)
	}
	allowGuarded := m.hasGuardKeyword(q)
	var best models.FAQEntry
	bestScore := -1
	for _, e := range entries {
		if _, guarded := m.guarded[e.QuestionNorm]; guarded && !allowGuarded {
			continue
		}
		if s := m.opts.Scorer(q, e.QuestionNorm); s > bestScore {
			best, bestScore = e, s
		}
	}
	if bestScore < m.opts.Threshold {
		return Match{}, false, nil
	}
	m.logger.Debug().Str("question", q).Str("matched", best.QuestionNorm).Int("score", bestScore).Msg("faq fuzzy match")
	return Match{Question: best.QuestionNorm, Answer: best.Answer, Score: bestScore, Fuzzy: true}, true, nil
}
