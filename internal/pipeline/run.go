package pipeline

import (
	"context"

	"dory/internal/config"
	"dory/internal/models"
	"dory/internal/providers"

	"github.com/ternarybob/arbor"
)

type CorpusReport struct {
	Manifest int          `json:"manifest_files"`
	Ingest   IngestResult `json:"ingest"`
	Embed    EmbedResult  `json:"embed"`
}

func OptionsFromConfig(e config.Embedding) EmbedOptions {
	return EmbedOptions{BatchSize: e.BatchSize, DocPrefix: e.DocPrefix, Dimension: e.Dimension}
}

// Run builds the manifest, chunks and vectors for one corpus in sequence.
func Run(ctx context.Context, cfg config.Config, embedder providers.EmbeddingProvider, corpus models.Domain, logger arbor.ILogger) (CorpusReport, error) {
	var rep CorpusReport
	m, err := BuildManifest(cfg.KnowledgeRoot, corpus, logger)
	if err != nil {
		return rep, err
	}
	rep.Manifest = len(m.Files)

	chunker, err := NewChunker(cfg.Ingest)
	if err != nil {
		return rep, err
	}
	if rep.Ingest, err = Ingest(ctx, cfg.KnowledgeRoot, cfg.IndexDir, m, chunker, logger); err != nil {
		return rep, err
	}
	rep.Embed, err = EmbedCorpus(ctx, embedder, cfg.IndexDir, corpus, OptionsFromConfig(cfg.Embedding), logger)
	return rep, err
}
