package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"dory/internal/models"
)

type BadgerChatLogRepo struct {
	db *BadgerDB
}

func NewBadgerChatLogRepo(db *BadgerDB) *BadgerChatLogRepo {
	return &BadgerChatLogRepo{db: db}
}

func (r *BadgerChatLogRepo) InsertChatLog(ctx context.Context, l models.ChatLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if err := r.db.store.Insert(l.ID, l); err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

// SessionLogs returns the latest limit turns of a session, oldest first.
func (r *BadgerChatLogRepo) SessionLogs(ctx context.Context, sessionID string, limit int) ([]models.ChatLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.ChatLog
	q := badgerhold.Where("SessionID").Eq(sessionID).SortBy("TS").Reverse().Limit(limit)
	if err := r.db.store.Find(&logs, q); err != nil {
		return nil, fmt.Errorf("query session logs: %w", err)
	}
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// SessionUserTexts returns every user message of a session, oldest first.
func (r *BadgerChatLogRepo) SessionUserTexts(ctx context.Context, sessionID string) ([]string, error) {
	var logs []models.ChatLog
	if err := r.db.store.Find(&logs, badgerhold.Where("SessionID").Eq(sessionID).SortBy("TS")); err != nil {
		return nil, fmt.Errorf("query session user texts: %w", err)
	}
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.UserText)
	}
	return out, nil
}

func (r *BadgerChatLogRepo) Stats(ctx context.Context) (models.ChatStats, error) {
	var logs []models.ChatLog
	if err := r.db.store.Find(&logs, badgerhold.Where("ID").Ne("")); err != nil {
		return models.ChatStats{}, fmt.Errorf("chat stats: %w", err)
	}
	st := models.ChatStats{BySource: map[string]int64{}}
	sessions := map[string]struct{}{}
	for _, l := range logs {
		st.Turns++
		sessions[l.SessionID] = struct{}{}
		st.BySource[l.Source]++
		if l.UsedRAG {
			st.RAGTurns++
		}
		st.InputTokens += l.Usage.InputTokens
		st.OutputTokens += l.Usage.OutputTokens
		st.CachedTokens += l.Usage.CachedTokens
	}
	st.Sessions = int64(len(sessions))
	return st, nil
}
