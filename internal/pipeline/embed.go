package pipeline

import (
	"context"
	"fmt"
	"os"

	"dory/internal/index"
	"dory/internal/models"
	"dory/internal/providers"
	"dory/internal/util"

	"github.com/ternarybob/arbor"
)

type EmbedOptions struct {
	BatchSize int
	DocPrefix string
	Dimension int
}

type EmbedResult struct {
	Corpus models.Domain `json:"corpus"`
	Rows   int           `json:"rows"`
	Dim    int           `json:"dim"`
}

// EmbedCorpus embeds chunks_<corpus>.jsonl and writes vectors_<corpus>.npy with the
// aligned meta_<corpus>.jsonl. The document prefix is applied only to the embedded
// string; meta keeps the original text. Both files replace the previous pair only
// after every batch succeeded.
func EmbedCorpus(ctx context.Context, embedder providers.EmbeddingProvider, indexDir string, corpus models.Domain, opts EmbedOptions, logger arbor.ILogger) (EmbedResult, error) {
	res := EmbedResult{Corpus: corpus}
	records, err := index.ReadRecords(ChunksPath(indexDir, corpus))
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		logger.Info().Str("corpus", string(corpus)).Msg("[empty]")
		return res, nil
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 64
	}

	metaPath := index.MetaPath(indexDir, corpus)
	tmpMeta := metaPath + ".tmp"
	w, err := util.CreateJSONL(tmpMeta)
	if err != nil {
		return res, err
	}
	defer func() {
		_ = w.Close()
		_ = os.Remove(tmpMeta)
	}()

	rows := make([][]float32, 0, len(records))
	for start := 0; start < len(records); start += batch {
		end := start + batch
		if end > len(records) {
			end = len(records)
		}
		texts := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			texts = append(texts, opts.DocPrefix+r.Text)
		}
		vecs, _, err := embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "embed_corpus",
			Inputs:    texts,
			Dimension: opts.Dimension,
		})
		if err != nil {
			return res, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if err := providers.CheckShape(vecs, len(texts)); err != nil {
			return res, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(rows) > 0 && len(vecs[0]) != len(rows[0]) {
			return res, fmt.Errorf("%w: batch width %d, expected %d", util.ErrMalformedResult, len(vecs[0]), len(rows[0]))
		}
		for _, r := range records[start:end] {
			if err := w.Write(r); err != nil {
				return res, err
			}
		}
		rows = append(rows, vecs...)
		logger.Info().Str("corpus", string(corpus)).Msg(fmt.Sprintf("embedded %d/%d", end, len(records)))
	}

	m, err := index.Stack(rows)
	if err != nil {
		return res, err
	}
	if err := w.Close(); err != nil {
		return res, err
	}
	if err := index.SaveNPY(index.VectorsPath(indexDir, corpus), m); err != nil {
		return res, err
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		return res, fmt.Errorf("rename meta: %w", err)
	}
	res.Rows, res.Dim = m.Rows, m.Dim
	logger.Info().Str("corpus", string(corpus)).Int("rows", m.Rows).Int("dim", m.Dim).Msg("Corpus embedded")
	return res, nil
}
