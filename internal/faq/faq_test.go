package faq

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"dory/internal/models"
	"dory/internal/util"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]models.FAQEntry
	listErr error
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]models.FAQEntry{}}
}

func (s *memStore) GetFAQ(_ context.Context, q string) (models.FAQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[q]
	if !ok {
		return models.FAQEntry{}, util.ErrNotFound
	}
	return e, nil
}

func (s *memStore) ListFAQs(context.Context) ([]models.FAQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.FAQEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNorm < out[j].QuestionNorm })
	return out, nil
}

func (s *memStore) InsertFAQ(_ context.Context, e models.FAQEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.QuestionNorm]; ok {
		return false, nil
	}
	s.entries[e.QuestionNorm] = e
	return true, nil
}

func seeded(t *testing.T) *memStore {
	t.Helper()
	store := newMemStore()
	seeds, err := LoadSeeds("")
	require.NoError(t, err)
	_, err = SeedStore(context.Background(), store, seeds)
	require.NoError(t, err)
	return store
}

const (
	summitQ  = "when is the digital engineering summit?"
	websiteQ = "what is the official summit website?"
)

func baseOptions() Options {
	return Options{
		ExactEnabled:     true,
		FuzzyEnabled:     true,
		Threshold:        80,
		GuardedQuestions: []string{websiteQ},
		GuardKeywords:    []string{"website", "url", "register", "link"},
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"When IS the   Digital\tEngineering\nSummit?",
		"ÀDES  Summit program",
		"already normalized",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
	require.Equal(t, summitQ, Normalize("  When IS the Digital   Engineering Summit?  "))
}

func TestExactMatchAfterNormalization(t *testing.T) {
	m := NewMatcher(seeded(t), baseOptions(), arbor.NewLogger())
	got, ok, err := m.Match(context.Background(), "When IS the   Digital Engineering Summit?")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, got.Fuzzy)
	require.Contains(t, got.Answer, "24 November 2025")
}

func TestFuzzyMatchMisspelledQuery(t *testing.T) {
	opts := baseOptions()
	opts.Scorer = func(q, candidate string) int {
		if q == "wat time sumit start" && candidate == summitQ {
			return 85
		}
		return 10
	}
	m := NewMatcher(seeded(t), opts, arbor.NewLogger())
	got, ok, err := m.Match(context.Background(), "wat time sumit start")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Fuzzy)
	require.Equal(t, 85, got.Score)
	require.Equal(t, summitQ, got.Question)
	require.Contains(t, got.Answer, "24 November 2025")
}

func TestFuzzyThresholdFloor(t *testing.T) {
	opts := baseOptions()
	opts.Threshold = 40
	opts.Scorer = func(string, string) int { return 75 }
	m := NewMatcher(seeded(t), opts, arbor.NewLogger())
	_, ok, err := m.Match(context.Background(), "something vague")
	require.NoError(t, err)
	require.False(t, ok, "scores under 80 never match")
}

func TestGuardedFAQNeedsKeyword(t *testing.T) {
	opts := baseOptions()
	opts.Scorer = func(q, candidate string) int {
		if candidate == websiteQ {
			return 95
		}
		return 20
	}
	m := NewMatcher(seeded(t), opts, arbor.NewLogger())

	_, ok, err := m.Match(context.Background(), "what is the official summit dress code?")
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := m.Match(context.Background(), "summit website please")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, websiteQ, got.Question)

	// the guard only applies to fuzzy matches
	got, ok, err = m.Match(context.Background(), "What is the official Summit website?")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, got.Fuzzy)
}

func TestStageFlags(t *testing.T) {
	store := seeded(t)

	opts := baseOptions()
	opts.FuzzyEnabled = false
	m := NewMatcher(store, opts, arbor.NewLogger())
	_, ok, err := m.Match(context.Background(), "when is the digital engineering summit")
	require.NoError(t, err)
	require.False(t, ok, "fuzzy stage disabled")

	opts = baseOptions()
	opts.ExactEnabled = false
	m = NewMatcher(store, opts, arbor.NewLogger())
	got, ok, err := m.Match(context.Background(), summitQ)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Fuzzy, "exact stage disabled, identical text still wins fuzzily")

	opts.FuzzyEnabled = false
	m = NewMatcher(store, opts, arbor.NewLogger())
	require.False(t, m.Enabled())
}

func TestMatchStoreFailure(t *testing.T) {
	store := seeded(t)
	store.listErr = errors.New("db down")
	m := NewMatcher(store, baseOptions(), arbor.NewLogger())
	_, ok, err := m.Match(context.Background(), "no exact hit here")
	require.Error(t, err)
	require.False(t, ok)
}

func TestTokenSetRatio(t *testing.T) {
	require.Equal(t, 100, TokenSetRatio("digital summit", "summit digital digital"))
	require.Equal(t, 100, TokenSetRatio("digital engineering summit", "When is the Digital Engineering Summit?"))
	require.Equal(t, 0, TokenSetRatio("", "summit"))
	require.Equal(t, 0, TokenSetRatio("abc", "xyz"))
	s := TokenSetRatio("where is the summit venue", "where is summit held")
	require.Greater(t, s, 60)
	require.Less(t, s, 100)
	require.Equal(t, TokenSetRatio("a b c", "c d"), TokenSetRatio("c d", "a b c"))
}

func TestRatio(t *testing.T) {
	require.InDelta(t, 100, ratio("abc", "abc"), 1e-9)
	// LCS("abcd","abxd") = 3 -> 2*3/8
	require.InDelta(t, 75, ratio("abcd", "abxd"), 1e-9)
}

func TestSeedsAreIdempotent(t *testing.T) {
	seeds, err := LoadSeeds("")
	require.NoError(t, err)
	require.Len(t, seeds, 10)

	store := newMemStore()
	added, err := SeedStore(context.Background(), store, seeds)
	require.NoError(t, err)
	require.Equal(t, 10, added)
	added, err = SeedStore(context.Background(), store, seeds)
	require.NoError(t, err)
	require.Zero(t, added)

	for q := range store.entries {
		require.Equal(t, Normalize(q), q)
		require.False(t, strings.HasSuffix(store.entries[q].Answer, "\n"))
	}
}
