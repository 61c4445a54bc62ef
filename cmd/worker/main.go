package main

import (
	"context"

	"dory/internal/activities"
	"dory/internal/app"
	"dory/internal/providers"
	"dory/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, logger, err := app.Bootstrap()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	c, err := client.Dial(client.Options{HostPort: cfg.Temporal.Address})
	if err != nil {
		logger.Fatal().Err(err).Str("address", cfg.Temporal.Address).Msg("Failed to connect to Temporal")
	}
	defer c.Close()

	embedder, err := providers.MakeBackend(context.Background(), cfg.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build embedding backend")
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, embedder, logger))

	logger.Info().
		Str("address", cfg.Temporal.Address).
		Str("queue", cfg.Temporal.TaskQueue).
		Str("embedding", cfg.Embedding.Provider).
		Str("knowledge_root", cfg.KnowledgeRoot).
		Msg("dory worker listening")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("Worker stopped")
	}
}
