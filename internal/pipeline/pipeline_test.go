package pipeline

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"dory/internal/config"
	"dory/internal/index"
	"dory/internal/models"
	"dory/internal/providers"
	"dory/internal/util"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeDOCX(t *testing.T, path string, paragraphs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		b.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	b.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(b.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestBuildManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(LocalDir(root, models.DomainDE), "b.txt"), "beta")
	writeFile(t, filepath.Join(LocalDir(root, models.DomainDE), "sub", "a.pdf"), "%PDF")

	m, err := BuildManifest(root, models.DomainDE, arbor.NewLogger())
	require.NoError(t, err)
	require.Len(t, m.Files, 2)
	require.Equal(t, "b.txt", m.Files[0].Path)
	require.Equal(t, "sub/a.pdf", m.Files[1].Path)
	require.Equal(t, "application/pdf", m.Files[1].Mime)
	require.Equal(t, int64(4), m.Files[0].Size)
	require.Len(t, m.Files[0].SHA256, 64)

	back, err := ReadManifest(root, models.DomainDE)
	require.NoError(t, err)
	require.Equal(t, m.Files, back.Files)
}

func TestBuildManifestMissingFolder(t *testing.T) {
	root := t.TempDir()
	m, err := BuildManifest(root, models.DomainSummit, arbor.NewLogger())
	require.NoError(t, err)
	require.Empty(t, m.Files)
	ok, err := util.FileExists(ManifestPath(root, models.DomainSummit))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExtractDOCX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.docx")
	writeDOCX(t, path, "First paragraph", "Second &amp; last")
	text, err := ExtractText(path)
	require.NoError(t, err)
	require.Equal(t, "First paragraph\nSecond & last", text)
}

func TestExtractTextDropsInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("ok\xff text"), 0o644))
	text, err := ExtractText(path)
	require.NoError(t, err)
	require.Equal(t, "ok text", text)
}

func TestNewChunker(t *testing.T) {
	_, err := NewChunker(config.Ingest{ChunkSize: 500, ChunkOverlap: 50, Chunker: "sentences"})
	require.ErrorIs(t, err, util.ErrConfig)

	c, err := NewChunker(config.Ingest{ChunkSize: 200, ChunkOverlap: 0, Chunker: "recursive"})
	require.NoError(t, err)
	parts, err := c.Split(strings.Repeat("word ", 100))
	require.NoError(t, err)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		require.LessOrEqual(t, len(p), 200)
	}
}

func TestIngestSkipsMissingAndEmpty(t *testing.T) {
	root := t.TempDir()
	indexDir := filepath.Join(root, "web_cache")
	local := LocalDir(root, models.DomainDE)
	writeFile(t, filepath.Join(local, "a.txt"), "Digital   engineering\r\n\n\n\nbuilds twins.")
	writeFile(t, filepath.Join(local, "blank.txt"), "  \n\t ")
	writeDOCX(t, filepath.Join(local, "c.docx"), "Summit notes")

	m, err := BuildManifest(root, models.DomainDE, arbor.NewLogger())
	require.NoError(t, err)
	m.Files = append(m.Files, models.ManifestFile{Path: "gone.txt", Name: "gone.txt"})

	chunker, err := NewChunker(config.Ingest{ChunkSize: 1000, ChunkOverlap: 150, Chunker: "paragraph"})
	require.NoError(t, err)
	res, err := Ingest(t.Context(), root, indexDir, m, chunker, arbor.NewLogger())
	require.NoError(t, err)
	require.Equal(t, 2, res.Files)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, res.Empty)
	require.Equal(t, 2, res.Chunks)

	recs, err := index.ReadRecords(ChunksPath(indexDir, models.DomainDE))
	require.NoError(t, err)
	require.Equal(t, "Digital engineering\n\nbuilds twins.", recs[0].Text)
	require.Equal(t, "a.txt", recs[0].Meta.SourceName)
	require.Equal(t, "text/plain", recs[0].Meta.Mime)
	require.Equal(t, "application/docx", recs[1].Meta.Mime)
}

type recordingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	inner   providers.EmbeddingProvider
	// breakAt returns one row too few for that batch index when >= 0.
	breakAt int
}

func (r *recordingEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	r.mu.Lock()
	n := len(r.batches)
	r.batches = append(r.batches, append([]string(nil), req.Inputs...))
	r.mu.Unlock()
	vecs, info, err := r.inner.Embed(ctx, req)
	if err == nil && n == r.breakAt {
		vecs = vecs[:len(vecs)-1]
	}
	return vecs, info, err
}

func writeChunks(t *testing.T, dir string, corpus models.Domain, n int) []models.ChunkRecord {
	t.Helper()
	w, err := util.CreateJSONL(ChunksPath(dir, corpus))
	require.NoError(t, err)
	recs := make([]models.ChunkRecord, n)
	for i := range recs {
		recs[i] = models.ChunkRecord{Meta: models.ChunkMeta{SourceName: "s.txt"}, Text: strings.Repeat("x", i+1)}
		require.NoError(t, w.Write(recs[i]))
	}
	require.NoError(t, w.Close())
	return recs
}

func TestEmbedCorpusBatchesAndPrefix(t *testing.T) {
	dir := t.TempDir()
	recs := writeChunks(t, dir, models.DomainSummit, 5)
	emb := &recordingEmbedder{inner: providers.NewMockProvider(8), breakAt: -1}

	res, err := EmbedCorpus(t.Context(), emb, dir, models.DomainSummit, EmbedOptions{BatchSize: 2, DocPrefix: "passage: "}, arbor.NewLogger())
	require.NoError(t, err)
	require.Equal(t, EmbedResult{Corpus: models.DomainSummit, Rows: 5, Dim: 8}, res)

	require.Len(t, emb.batches, 3)
	require.Equal(t, []string{"passage: x", "passage: xx"}, emb.batches[0])
	require.Len(t, emb.batches[2], 1)

	meta, err := index.ReadRecords(index.MetaPath(dir, models.DomainSummit))
	require.NoError(t, err)
	require.Equal(t, recs, meta)

	ix, err := index.Load(dir, arbor.NewLogger())
	require.NoError(t, err)
	require.Equal(t, 5, ix.Corpus(models.DomainSummit).Len())
}

func TestEmbedCorpusShapeErrorAborts(t *testing.T) {
	dir := t.TempDir()
	writeChunks(t, dir, models.DomainDE, 4)
	emb := &recordingEmbedder{inner: providers.NewMockProvider(4), breakAt: 1}

	_, err := EmbedCorpus(t.Context(), emb, dir, models.DomainDE, EmbedOptions{BatchSize: 2}, arbor.NewLogger())
	require.ErrorIs(t, err, util.ErrMalformedResult)

	for _, p := range []string{index.VectorsPath(dir, models.DomainDE), index.MetaPath(dir, models.DomainDE)} {
		ok, err := util.FileExists(p)
		require.NoError(t, err)
		require.False(t, ok, p)
	}
}

func TestEmbedCorpusEmptyInput(t *testing.T) {
	dir := t.TempDir()
	writeChunks(t, dir, models.DomainDE, 0)
	emb := &recordingEmbedder{inner: providers.NewMockProvider(4), breakAt: -1}

	res, err := EmbedCorpus(t.Context(), emb, dir, models.DomainDE, EmbedOptions{BatchSize: 64}, arbor.NewLogger())
	require.NoError(t, err)
	require.Zero(t, res.Rows)
	require.Empty(t, emb.batches)
	ok, err := util.FileExists(index.VectorsPath(dir, models.DomainDE))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.KnowledgeRoot = root
	cfg.IndexDir = filepath.Join(root, "web_cache")
	writeFile(t, filepath.Join(LocalDir(root, models.DomainDE), "de.txt"), "Model based systems engineering.")

	rep, err := Run(t.Context(), cfg, providers.NewMockProvider(16), models.DomainDE, arbor.NewLogger())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Manifest)
	require.Equal(t, 1, rep.Embed.Rows)
}
