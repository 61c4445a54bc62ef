package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"dory/internal/models"
	"dory/internal/util"

	"github.com/ternarybob/arbor"
)

type IngestResult struct {
	Corpus  models.Domain `json:"corpus"`
	Files   int           `json:"files"`
	Skipped int           `json:"skipped"`
	Empty   int           `json:"empty"`
	Chunks  int           `json:"chunks"`
	Path    string        `json:"path"`
}

// Ingest extracts, cleans and chunks every file listed in the corpus manifest and
// writes chunks_<corpus>.jsonl under indexDir.
func Ingest(ctx context.Context, knowledgeRoot, indexDir string, m models.Manifest, chunker Chunker, logger arbor.ILogger) (IngestResult, error) {
	out := ChunksPath(indexDir, m.Corpus)
	res := IngestResult{Corpus: m.Corpus, Path: out}
	root := m.Root
	if root == "" {
		root = LocalDir(knowledgeRoot, m.Corpus)
	}

	w, err := util.CreateJSONL(out)
	if err != nil {
		return res, err
	}
	defer w.Close()

	for _, f := range m.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path := filepath.Join(root, filepath.FromSlash(f.Path))
		ok, err := util.FileExists(path)
		if err != nil {
			return res, err
		}
		if !ok {
			logger.Warn().Str("path", path).Msg("[skip] missing file")
			res.Skipped++
			continue
		}
		raw, err := ExtractText(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("[skip] extraction failed")
			res.Skipped++
			continue
		}
		text := util.CleanText(raw)
		if text == "" {
			logger.Info().Str("path", path).Msg("[empty]")
			res.Empty++
			continue
		}
		parts, err := chunker.Split(text)
		if err != nil {
			return res, fmt.Errorf("chunk %s: %w", f.Path, err)
		}
		meta := models.ChunkMeta{SourcePath: path, SourceName: f.Name, Mime: MimeFor(path)}
		for _, p := range parts {
			if err := w.Write(models.ChunkRecord{Meta: meta, Text: p}); err != nil {
				return res, err
			}
		}
		res.Files++
	}
	res.Chunks = w.Count()
	if err := w.Close(); err != nil {
		return res, err
	}
	logger.Info().
		Str("corpus", string(m.Corpus)).
		Int("files", res.Files).
		Int("skipped", res.Skipped).
		Int("chunks", res.Chunks).
		Msg("Ingest complete")
	return res, nil
}
