package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dory/internal/api"
	"dory/internal/app"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, logger, err := app.Bootstrap()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if cfg.FAQ.Enabled {
		if added, err := a.SeedFAQs(ctx); err != nil {
			logger.Warn().Err(err).Msg("FAQ seeding failed")
		} else if added > 0 {
			logger.Info().Int("added", added).Msg("FAQ seeds inserted")
		}
	}

	svc, err := a.NewChatService()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize chat service")
	}

	// rebuilds are optional; the API serves chat without a Temporal server
	var rebuilder api.IndexRebuilder
	if tc, err := client.Dial(client.Options{HostPort: cfg.Temporal.Address}); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Temporal.Address).Msg("Temporal unavailable; index rebuild endpoint disabled")
	} else {
		defer tc.Close()
		rebuilder = api.NewTemporalRebuilder(tc, cfg.Temporal.TaskQueue, logger, a.Searcher.Reload)
	}

	h := api.NewServer(api.Options{
		AdminToken: cfg.AdminToken,
		Chat:       svc,
		Search:     a.Searcher,
		FAQ:        a.FAQ,
		FAQWriter:  a.Stores.FAQ,
		Stats:      a.Stores.ChatLogs,
		IndexStats: a.IndexStats,
		Rebuilder:  rebuilder,
		Logger:     logger,
	})
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.APIAddr).
			Str("model", svc.CurrentModel()).
			Str("embedding", cfg.Embedding.Provider).
			Str("store", a.Stores.Backend).
			Bool("admin", cfg.AdminToken != "").
			Msg("dory api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown failed")
	}
}
