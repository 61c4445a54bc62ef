package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"dory/internal/config"
	"dory/internal/models"
	"dory/internal/util"
)

func openTestStores(t *testing.T) *Stores {
	t.Helper()
	cfg := config.Store{Backend: "badger", BadgerPath: filepath.Join(t.TempDir(), "db")}
	s, err := Open(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerFAQRepo(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()

	_, err := s.FAQ.GetFAQ(ctx, "missing?")
	require.ErrorIs(t, err, util.ErrNotFound)

	added, err := s.FAQ.InsertFAQ(ctx, models.FAQEntry{QuestionNorm: "b?", Answer: "first", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.FAQ.InsertFAQ(ctx, models.FAQEntry{QuestionNorm: "b?", Answer: "second", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.False(t, added, "insert is idempotent on the normalized question")

	require.NoError(t, s.FAQ.UpsertFAQ(ctx, models.FAQEntry{QuestionNorm: "a?", Answer: "alpha", CreatedAt: time.Now()}))
	require.NoError(t, s.FAQ.UpsertFAQ(ctx, models.FAQEntry{QuestionNorm: "b?", Answer: "replaced", CreatedAt: time.Now()}))

	e, err := s.FAQ.GetFAQ(ctx, "b?")
	require.NoError(t, err)
	require.Equal(t, "replaced", e.Answer)

	all, err := s.FAQ.ListFAQs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a?", all[0].QuestionNorm)
}

func TestBadgerChatLogRepo(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 24, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.ChatLogs.InsertChatLog(ctx, models.ChatLog{
			TS:        base.Add(time.Duration(i) * time.Minute),
			SessionID: "s1",
			UserText:  string(rune('a' + i)),
			Answer:    "ok",
			Source:    models.SourceModel,
			UsedRAG:   i%2 == 0,
			Usage:     models.TokenUsage{InputTokens: 10, OutputTokens: 2},
		}))
	}
	require.NoError(t, s.ChatLogs.InsertChatLog(ctx, models.ChatLog{
		TS: base, SessionID: "s2", UserText: "hi", Answer: "faq", Source: models.SourceFAQ,
	}))

	logs, err := s.ChatLogs.SessionLogs(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, "c", logs[0].UserText)
	require.Equal(t, "e", logs[2].UserText)
	require.NotEmpty(t, logs[0].ID)

	texts, err := s.ChatLogs.SessionUserTexts(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, texts)

	st, err := s.ChatLogs.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), st.Turns)
	require.Equal(t, int64(2), st.Sessions)
	require.Equal(t, int64(3), st.RAGTurns)
	require.Equal(t, int64(5), st.BySource[models.SourceModel])
	require.Equal(t, int64(1), st.BySource[models.SourceFAQ])
	require.Equal(t, int64(50), st.InputTokens)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Store{Backend: "sqlite"}, arbor.NewLogger())
	require.Error(t, err)
}
