package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dory/internal/models"
	"dory/internal/util"
)

type FAQRepo struct {
	db *DB
}

func NewFAQRepo(db *DB) *FAQRepo {
	return &FAQRepo{db: db}
}

func (r *FAQRepo) GetFAQ(ctx context.Context, questionNorm string) (models.FAQEntry, error) {
	var e models.FAQEntry
	err := r.db.Pool.QueryRow(ctx, `SELECT question_norm, answer, created_at FROM faqs WHERE question_norm = $1`, questionNorm).
		Scan(&e.QuestionNorm, &e.Answer, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FAQEntry{}, util.ErrNotFound
		}
		return models.FAQEntry{}, fmt.Errorf("get faq: %w", err)
	}
	return e, nil
}

func (r *FAQRepo) ListFAQs(ctx context.Context) ([]models.FAQEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT question_norm, answer, created_at FROM faqs ORDER BY question_norm`)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rows.Close()

	out := make([]models.FAQEntry, 0)
	for rows.Next() {
		var e models.FAQEntry
		if err := rows.Scan(&e.QuestionNorm, &e.Answer, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faqs: %w", err)
	}
	return out, nil
}

func (r *FAQRepo) InsertFAQ(ctx context.Context, e models.FAQEntry) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
INSERT INTO faqs (question_norm, answer, created_at) VALUES ($1, $2, $3)
ON CONFLICT (question_norm) DO NOTHING`, e.QuestionNorm, e.Answer, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert faq: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *FAQRepo) UpsertFAQ(ctx context.Context, e models.FAQEntry) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO faqs (question_norm, answer, created_at) VALUES ($1, $2, $3)
ON CONFLICT (question_norm) DO UPDATE SET answer = EXCLUDED.answer`, e.QuestionNorm, e.Answer, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert faq: %w", err)
	}
	return nil
}
