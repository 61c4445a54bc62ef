package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"dory/internal/chat"
	"dory/internal/config"
	"dory/internal/faq"
	"dory/internal/index"
	"dory/internal/logging"
	"dory/internal/providers"
	"dory/internal/storage"
	"dory/internal/vector"
)

// App holds the process-wide collaborators shared by the API, the worker and the
// terminal client.
type App struct {
	Config   config.Config
	Logger   arbor.ILogger
	Stores   *storage.Stores
	Embedder providers.EmbeddingProvider
	Searcher *vector.Searcher
	FAQ      *faq.Matcher
}

// Bootstrap loads configuration and installs the process logger.
func Bootstrap() (config.Config, arbor.ILogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, logging.GetLogger(), err
	}
	return cfg, logging.Init(cfg.LogLevel, cfg.LogFile), nil
}

// New opens the stores and builds the embedding backend, searcher and FAQ matcher.
// The vector index itself is loaded on the first search.
func New(ctx context.Context, cfg config.Config, logger arbor.ILogger) (*App, error) {
	stores, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	embedder, err := providers.MakeBackend(ctx, cfg.Embedding)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("make embedding backend: %w", err)
	}
	indexDir := cfg.IndexDir
	searcher := vector.NewSearcher(embedder, func() (*index.Index, error) {
		start := time.Now()
		ix, err := index.Load(indexDir, logger)
		if err != nil {
			return nil, err
		}
		ev := logger.Info().Str("dir", indexDir).Int64("ms", time.Since(start).Milliseconds())
		for _, st := range ix.Stats() {
			ev = ev.Int(string(st.Domain)+"_rows", st.Rows)
		}
		ev.Msg("Vector index loaded")
		return ix, nil
	}, vector.ParamsFromConfig(cfg.Retrieval, cfg.Embedding), logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Stores:   stores,
		Embedder: embedder,
		Searcher: searcher,
		FAQ:      faq.NewMatcher(stores.FAQ, faq.OptionsFromConfig(cfg.FAQ), logger),
	}, nil
}

// NewChatService builds the turn handler over the shared collaborators.
func (a *App) NewChatService() (*chat.Service, error) {
	o := chat.Options{
		Chat:       a.Config.Chat,
		RAGEnabled: a.Config.Retrieval.Enabled,
		RAGTimeout: a.Config.Retrieval.Timeout,
		Logs:       a.Stores.ChatLogs,
		Logger:     a.Logger,
	}
	if a.FAQ.Enabled() {
		o.FAQ = a.FAQ
	}
	if a.Config.Retrieval.Enabled {
		o.Searcher = a.Searcher
	}
	return chat.NewService(o)
}

// SeedFAQs inserts the configured seed file (or the built-in seeds) and returns
// how many entries were new.
func (a *App) SeedFAQs(ctx context.Context) (int, error) {
	seeds, err := faq.LoadSeeds(a.Config.FAQ.SeedFile)
	if err != nil {
		return 0, err
	}
	return faq.SeedStore(ctx, a.Stores.FAQ, seeds)
}

// IndexStats reports rows and width per corpus, loading the index if needed.
func (a *App) IndexStats() ([]index.CorpusStats, error) {
	ix, err := a.Searcher.Index()
	if err != nil {
		return nil, err
	}
	return ix.Stats(), nil
}

func (a *App) Close() error {
	var errs []error
	if c, ok := a.Embedder.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.Stores.Close())
	return errors.Join(errs...)
}
