package index

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"dory/internal/models"
	"dory/internal/util"
)

func VectorsPath(dir string, d models.Domain) string {
	return filepath.Join(dir, "vectors_"+string(d)+".npy")
}

func MetaPath(dir string, d models.Domain) string {
	return filepath.Join(dir, "meta_"+string(d)+".jsonl")
}

// Corpus holds L2-normalized row vectors aligned one-to-one with their records.
type Corpus struct {
	domain  models.Domain
	vectors Matrix
	records []models.ChunkRecord
}

// NewCorpus normalizes a copy of vectors. Row and record counts must match.
func NewCorpus(d models.Domain, vectors Matrix, records []models.ChunkRecord) (*Corpus, error) {
	if vectors.Rows != len(records) {
		return nil, fmt.Errorf("%w: corpus %s has %d vectors but %d metadata records", util.ErrIntegrity, d, vectors.Rows, len(records))
	}
	norm := Matrix{Rows: vectors.Rows, Dim: vectors.Dim, Data: make([]float32, len(vectors.Data))}
	copy(norm.Data, vectors.Data)
	for i := 0; i < norm.Rows; i++ {
		row := norm.Row(i)
		var sum float64
		for _, x := range row {
			sum += float64(x) * float64(x)
		}
		inv := 1.0 / (math.Sqrt(sum) + 1e-9)
		for j := range row {
			row[j] = float32(float64(row[j]) * inv)
		}
	}
	recs := make([]models.ChunkRecord, len(records))
	copy(recs, records)
	return &Corpus{domain: d, vectors: norm, records: recs}, nil
}

func emptyCorpus(d models.Domain) *Corpus {
	return &Corpus{domain: d}
}

func (c *Corpus) Domain() models.Domain { return c.domain }
func (c *Corpus) Len() int              { return c.vectors.Rows }
func (c *Corpus) Dim() int              { return c.vectors.Dim }

// Row returns the stored vector; callers must not modify it.
func (c *Corpus) Row(i int) []float32 { return c.vectors.Row(i) }

func (c *Corpus) Record(i int) models.ChunkRecord { return c.records[i] }

// LoadCorpus reads one corpus. A missing vectors file yields an empty corpus.
func LoadCorpus(dir string, d models.Domain, logger arbor.ILogger) (*Corpus, error) {
	vpath := VectorsPath(dir, d)
	f, err := os.Open(vpath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Str("corpus", string(d)).Str("path", vpath).Msg("vectors file missing, corpus is empty")
			return emptyCorpus(d), nil
		}
		return nil, fmt.Errorf("open vectors %s: %w", vpath, err)
	}
	m, err := ReadNPY(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("read vectors %s: %w", vpath, err)
	}

	records, err := ReadRecords(MetaPath(dir, d))
	if err != nil && !errors.Is(err, util.ErrResourceMissing) {
		return nil, err
	}
	c, err := NewCorpus(d, m, records)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("corpus", string(d)).Int("rows", c.Len()).Int("dim", c.Dim()).Msg("corpus loaded")
	return c, nil
}

// Index is the immutable pair of corpora searched by the router.
type Index struct {
	corpora map[models.Domain]*Corpus
}

func New(corpora ...*Corpus) *Index {
	ix := &Index{corpora: make(map[models.Domain]*Corpus, len(models.Domains))}
	for _, c := range corpora {
		ix.corpora[c.domain] = c
	}
	for _, d := range models.Domains {
		if _, ok := ix.corpora[d]; !ok {
			ix.corpora[d] = emptyCorpus(d)
		}
	}
	return ix
}

// Load reads both corpora from dir.
func Load(dir string, logger arbor.ILogger) (*Index, error) {
	corpora := make([]*Corpus, 0, len(models.Domains))
	for _, d := range models.Domains {
		c, err := LoadCorpus(dir, d, logger)
		if err != nil {
			return nil, err
		}
		corpora = append(corpora, c)
	}
	return New(corpora...), nil
}

// Corpus never returns nil; unknown domains map to an empty corpus.
func (ix *Index) Corpus(d models.Domain) *Corpus {
	if c, ok := ix.corpora[d]; ok {
		return c
	}
	return emptyCorpus(d)
}

type CorpusStats struct {
	Domain models.Domain `json:"domain"`
	Rows   int           `json:"rows"`
	Dim    int           `json:"dim"`
}

func (ix *Index) Stats() []CorpusStats {
	out := make([]CorpusStats, 0, len(models.Domains))
	for _, d := range models.Domains {
		c := ix.Corpus(d)
		out = append(out, CorpusStats{Domain: d, Rows: c.Len(), Dim: c.Dim()})
	}
	return out
}
