package storage

import (
	"context"
	"fmt"

	"dory/internal/models"
)

type ChatLogRepo struct {
	db *DB
}

func NewChatLogRepo(db *DB) *ChatLogRepo {
	return &ChatLogRepo{db: db}
}

func (r *ChatLogRepo) InsertChatLog(ctx context.Context, l models.ChatLog) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO chat_logs(id, ts, session_id, user_text, answer, source, domain, used_rag, manual_override, model, input_tokens, output_tokens, cached_tokens)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.TS, l.SessionID, l.UserText, l.Answer, l.Source, string(l.Domain), l.UsedRAG, l.ManualOverride, l.Model,
		l.Usage.InputTokens, l.Usage.OutputTokens, l.Usage.CachedTokens)
	if err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

// SessionLogs returns the latest limit turns of a session, oldest first.
func (r *ChatLogRepo) SessionLogs(ctx context.Context, sessionID string, limit int) ([]models.ChatLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, ts, session_id, user_text, answer, source, domain, used_rag, manual_override, model, input_tokens, output_tokens, cached_tokens
FROM (
  SELECT * FROM chat_logs WHERE session_id = $1 ORDER BY ts DESC LIMIT $2
) recent
ORDER BY ts ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session logs: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChatLog, 0, limit)
	for rows.Next() {
		var l models.ChatLog
		var domain string
		if err := rows.Scan(&l.ID, &l.TS, &l.SessionID, &l.UserText, &l.Answer, &l.Source, &domain, &l.UsedRAG, &l.ManualOverride, &l.Model,
			&l.Usage.InputTokens, &l.Usage.OutputTokens, &l.Usage.CachedTokens); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		l.Domain = models.Domain(domain)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat logs: %w", err)
	}
	return out, nil
}

// SessionUserTexts returns every user message of a session, oldest first.
func (r *ChatLogRepo) SessionUserTexts(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT user_text FROM chat_logs WHERE session_id = $1 ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session user texts: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan session user text: %w", err)
		}
		out = append(out, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session user texts: %w", err)
	}
	return out, nil
}

func (r *ChatLogRepo) Stats(ctx context.Context) (models.ChatStats, error) {
	st := models.ChatStats{BySource: map[string]int64{}}
	err := r.db.Pool.QueryRow(ctx, `
SELECT COUNT(*), COUNT(DISTINCT session_id), COUNT(*) FILTER (WHERE used_rag),
       COALESCE(SUM(input_tokens),0), COALESCE(SUM(output_tokens),0), COALESCE(SUM(cached_tokens),0)
FROM chat_logs`).Scan(&st.Turns, &st.Sessions, &st.RAGTurns, &st.InputTokens, &st.OutputTokens, &st.CachedTokens)
	if err != nil {
		return models.ChatStats{}, fmt.Errorf("chat stats: %w", err)
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT source, COUNT(*) FROM chat_logs GROUP BY source`)
	if err != nil {
		return models.ChatStats{}, fmt.Errorf("chat stats by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int64
		if err := rows.Scan(&src, &n); err != nil {
			return models.ChatStats{}, fmt.Errorf("scan chat stats: %w", err)
		}
		st.BySource[src] = n
	}
	if err := rows.Err(); err != nil {
		return models.ChatStats{}, fmt.Errorf("iterate chat stats: %w", err)
	}
	return st, nil
}
