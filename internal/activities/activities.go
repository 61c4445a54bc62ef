package activities

import (
	"context"
	"fmt"
	"path/filepath"

	"dory/internal/config"
	"dory/internal/index"
	"dory/internal/models"
	"dory/internal/pipeline"
	"dory/internal/providers"
	"dory/internal/util"

	"github.com/ternarybob/arbor"
	"go.temporal.io/sdk/temporal"
)

type Activities struct {
	cfg      config.Config
	embedder providers.EmbeddingProvider
	logger   arbor.ILogger
}

func New(cfg config.Config, embedder providers.EmbeddingProvider, logger arbor.ILogger) *Activities {
	return &Activities{cfg: cfg, embedder: embedder, logger: logger}
}

// nonRetryable stops Temporal from retrying errors that a new attempt cannot fix.
func nonRetryable(err error) error {
	if err == nil || !util.IsFatal(err) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), "fatal", err)
}

func parseCorpus(name string) (models.Domain, error) {
	d, ok := models.ParseDomain(name)
	if !ok {
		return models.DomainNone, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown corpus %q", name), "config", util.ErrConfig)
	}
	return d, nil
}

func (a *Activities) BuildManifestActivity(ctx context.Context, in CorpusInput) (BuildManifestOutput, error) {
	_ = ctx
	d, err := parseCorpus(in.Corpus)
	if err != nil {
		return BuildManifestOutput{}, err
	}
	m, err := pipeline.BuildManifest(a.cfg.KnowledgeRoot, d, a.logger)
	if err != nil {
		return BuildManifestOutput{}, nonRetryable(err)
	}
	return BuildManifestOutput{Files: len(m.Files)}, nil
}

func (a *Activities) IngestCorpusActivity(ctx context.Context, in CorpusInput) (IngestCorpusOutput, error) {
	d, err := parseCorpus(in.Corpus)
	if err != nil {
		return IngestCorpusOutput{}, err
	}
	m, err := pipeline.ReadManifest(a.cfg.KnowledgeRoot, d)
	if err != nil {
		return IngestCorpusOutput{}, nonRetryable(err)
	}
	chunker, err := pipeline.NewChunker(a.cfg.Ingest)
	if err != nil {
		return IngestCorpusOutput{}, nonRetryable(err)
	}
	res, err := pipeline.Ingest(ctx, a.cfg.KnowledgeRoot, a.cfg.IndexDir, m, chunker, a.logger)
	if err != nil {
		return IngestCorpusOutput{}, nonRetryable(err)
	}
	return IngestCorpusOutput{Result: res}, nil
}

func (a *Activities) EmbedCorpusActivity(ctx context.Context, in CorpusInput) (EmbedCorpusOutput, error) {
	d, err := parseCorpus(in.Corpus)
	if err != nil {
		return EmbedCorpusOutput{}, err
	}
	res, err := pipeline.EmbedCorpus(ctx, a.embedder, a.cfg.IndexDir, d, pipeline.OptionsFromConfig(a.cfg.Embedding), a.logger)
	if err != nil {
		return EmbedCorpusOutput{}, nonRetryable(err)
	}
	return EmbedCorpusOutput{Result: res}, nil
}

// VerifyIndexActivity loads the freshly written index the way the query path does.
func (a *Activities) VerifyIndexActivity(ctx context.Context) (VerifyIndexOutput, error) {
	_ = ctx
	ix, err := index.Load(a.cfg.IndexDir, a.logger)
	if err != nil {
		return VerifyIndexOutput{}, nonRetryable(err)
	}
	var out VerifyIndexOutput
	for _, s := range ix.Stats() {
		out.Corpora = append(out.Corpora, CorpusRows{Corpus: string(s.Domain), Rows: s.Rows, Dim: s.Dim})
	}
	return out, nil
}

func (a *Activities) WriteBuildReportActivity(ctx context.Context, in WriteBuildReportInput) (WriteBuildReportOutput, error) {
	_ = ctx
	path := filepath.Join(util.SafeJoin(filepath.Join(a.cfg.IndexDir, "runs"), in.RunID), "report.json")
	if err := util.WriteJSONAtomic(path, in.Report); err != nil {
		return WriteBuildReportOutput{}, err
	}
	return WriteBuildReportOutput{Path: path}, nil
}
