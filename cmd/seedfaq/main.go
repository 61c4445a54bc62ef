package main

import (
	"context"
	"flag"
	"fmt"

	"dory/internal/config"
	"dory/internal/faq"
	"dory/internal/logging"
	"dory/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	seedsPath := flag.String("seeds", "", "YAML seed file (defaults to the built-in Summit FAQs)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFile)

	path := *seedsPath
	if path == "" {
		path = cfg.FAQ.SeedFile
	}
	seeds, err := faq.LoadSeeds(path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read FAQ seeds")
	}

	ctx := context.Background()
	stores, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	added, err := faq.SeedStore(ctx, stores.FAQ, seeds)
	if err != nil {
		logger.Fatal().Err(err).Int("added", added).Msg("FAQ seeding failed")
	}
	fmt.Printf("Seeded FAQs (added %d of %d) into %s store\n", added, len(seeds), stores.Backend)
}
