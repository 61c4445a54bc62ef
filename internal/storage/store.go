package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"dory/internal/config"
	"dory/internal/models"
)

type FAQStore interface {
	GetFAQ(ctx context.Context, questionNorm string) (models.FAQEntry, error)
	ListFAQs(ctx context.Context) ([]models.FAQEntry, error)
	InsertFAQ(ctx context.Context, e models.FAQEntry) (bool, error)
	UpsertFAQ(ctx context.Context, e models.FAQEntry) error
}

type ChatLogStore interface {
	InsertChatLog(ctx context.Context, l models.ChatLog) error
	SessionLogs(ctx context.Context, sessionID string, limit int) ([]models.ChatLog, error)
	SessionUserTexts(ctx context.Context, sessionID string) ([]string, error)
	Stats(ctx context.Context) (models.ChatStats, error)
}

type Stores struct {
	Backend  string
	FAQ      FAQStore
	ChatLogs ChatLogStore
	close    func() error
}

func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects the configured backend. Postgres schemas are created on open.
func Open(ctx context.Context, cfg config.Store, logger arbor.ILogger) (*Stores, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info().Str("backend", "postgres").Msg("stores ready")
		return &Stores{
			Backend:  "postgres",
			FAQ:      NewFAQRepo(db),
			ChatLogs: NewChatLogRepo(db),
			close:    func() error { db.Close(); return nil },
		}, nil
	case "badger", "":
		db, err := OpenBadger(cfg.BadgerPath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("backend", "badger").Str("path", cfg.BadgerPath).Msg("stores ready")
		return &Stores{
			Backend:  "badger",
			FAQ:      NewBadgerFAQRepo(db),
			ChatLogs: NewBadgerChatLogRepo(db),
			close:    db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
