package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dory/internal/app"
	"dory/internal/models"
	"dory/internal/pipeline"
	"dory/internal/providers"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	corpus := flag.String("corpus", "all", "corpus to rebuild: de, summit or all")
	flag.Parse()

	cfg, logger, err := app.Bootstrap()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var corpora []models.Domain
	if *corpus == "all" {
		corpora = models.Domains
	} else {
		d, ok := models.ParseDomain(*corpus)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown corpus %q (want de, summit or all)\n", *corpus)
			os.Exit(2)
		}
		corpora = []models.Domain{d}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := providers.MakeBackend(ctx, cfg.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build embedding backend")
	}

	failed := false
	for _, d := range corpora {
		rep, err := pipeline.Run(ctx, cfg, embedder, d, logger)
		if err != nil {
			logger.Error().Err(err).Str("corpus", string(d)).Msg("Index build failed")
			failed = true
			continue
		}
		logger.Info().
			Str("corpus", string(d)).
			Int("files", rep.Manifest).
			Int("skipped", rep.Ingest.Skipped).
			Int("chunks", rep.Ingest.Chunks).
			Int("rows", rep.Embed.Rows).
			Int("dim", rep.Embed.Dim).
			Msg("Index built")
	}
	if failed {
		os.Exit(1)
	}
}
