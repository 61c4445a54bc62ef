package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"dory/internal/models"
	"dory/internal/util"
)

type BadgerFAQRepo struct {
	db *BadgerDB
}

func NewBadgerFAQRepo(db *BadgerDB) *BadgerFAQRepo {
	return &BadgerFAQRepo{db: db}
}

func (r *BadgerFAQRepo) GetFAQ(ctx context.Context, questionNorm string) (models.FAQEntry, error) {
	var e models.FAQEntry
	if err := r.db.store.Get(questionNorm, &e); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return models.FAQEntry{}, util.ErrNotFound
		}
		return models.FAQEntry{}, fmt.Errorf("get faq: %w", err)
	}
	e.QuestionNorm = questionNorm
	return e, nil
}

func (r *BadgerFAQRepo) ListFAQs(ctx context.Context) ([]models.FAQEntry, error) {
	var out []models.FAQEntry
	if err := r.db.store.Find(&out, badgerhold.Where("QuestionNorm").Ne("").SortBy("QuestionNorm")); err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	return out, nil
}

func (r *BadgerFAQRepo) InsertFAQ(ctx context.Context, e models.FAQEntry) (bool, error) {
	if err := r.db.store.Insert(e.QuestionNorm, e); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("insert faq: %w", err)
	}
	return true, nil
}

func (r *BadgerFAQRepo) UpsertFAQ(ctx context.Context, e models.FAQEntry) error {
	var existing models.FAQEntry
	if err := r.db.store.Get(e.QuestionNorm, &existing); err == nil && !existing.CreatedAt.IsZero() {
		e.CreatedAt = existing.CreatedAt
	}
	if err := r.db.store.Upsert(e.QuestionNorm, e); err != nil {
		return fmt.Errorf("upsert faq: %w", err)
	}
	return nil
}
