package vector

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"dory/internal/config"
	"dory/internal/index"
	"dory/internal/models"
	"dory/internal/pipeline"
	"dory/internal/providers"
	"dory/internal/util"
)

// unitAt returns a 2-D unit vector whose dot product with (1, 0) is s.
func unitAt(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
}

func corpus(t *testing.T, d models.Domain, scores ...float64) *index.Corpus {
	t.Helper()
	rows := make([][]float32, len(scores))
	recs := make([]models.ChunkRecord, len(scores))
	for i, s := range scores {
		rows[i] = unitAt(s)
		recs[i] = models.ChunkRecord{Meta: models.ChunkMeta{SourceName: string(d)}, Text: string(d) + "-chunk"}
	}
	m, err := index.Stack(rows)
	require.NoError(t, err)
	c, err := index.NewCorpus(d, m, recs)
	require.NoError(t, err)
	return c
}

var query = []float32{1, 0}

func params(minScore float64) Params {
	return Params{TopK: 5, MinScore: minScore, Margin: 0.05, TieBreak: models.DomainDE}
}

func TestEmptySummitRoutesToDE(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.6, 0.3))
	hits, domain, err := SearchIndex(ix, query, params(0.4), models.DomainNone)
	require.NoError(t, err)
	require.Equal(t, models.DomainDE, domain)
	require.Len(t, hits, 1)
	require.InDelta(t, 0.6, hits[0].Score, 1e-6)
}

func TestBothBelowMinScore(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.2), corpus(t, models.DomainSummit, 0.2))
	hits, domain, err := SearchIndex(ix, query, params(0.4), models.DomainNone)
	require.NoError(t, err)
	require.Empty(t, hits)
	require.Equal(t, models.DomainNone, domain)
}

func TestNearTieGoesToDE(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.50), corpus(t, models.DomainSummit, 0.53))
	hits, domain, err := SearchIndex(ix, query, params(0.4), models.DomainNone)
	require.NoError(t, err)
	require.Equal(t, models.DomainDE, domain)
	for _, h := range hits {
		require.Equal(t, models.DomainDE, h.Domain)
	}
}

func TestTieBreakIsConfigurable(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.53), corpus(t, models.DomainSummit, 0.50))
	p := params(0.4)
	p.TieBreak = models.DomainSummit
	_, domain, err := SearchIndex(ix, query, p, models.DomainNone)
	require.NoError(t, err)
	require.Equal(t, models.DomainSummit, domain)
}

func TestMarginWin(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.5), corpus(t, models.DomainSummit, 0.7, 0.45))
	hits, domain, err := SearchIndex(ix, query, params(0.4), models.DomainNone)
	require.NoError(t, err)
	require.Equal(t, models.DomainSummit, domain)
	require.Len(t, hits, 2)
	require.Greater(t, hits[0].Score, hits[1].Score)
}

func TestHintOverridesRouting(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.95), corpus(t, models.DomainSummit, 0.5))
	hits, domain, err := SearchIndex(ix, query, params(0.4), models.DomainSummit)
	require.NoError(t, err)
	require.Equal(t, models.DomainSummit, domain)
	for _, h := range hits {
		require.Equal(t, models.DomainSummit, h.Domain)
	}

	// a hinted corpus below min_score does not fall back to the other one
	hits, domain, err = SearchIndex(ix, query, params(0.6), models.DomainSummit)
	require.NoError(t, err)
	require.Empty(t, hits)
	require.Equal(t, models.DomainNone, domain)
}

func TestTopKOrderingWithoutDedup(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.41, 0.9, 0.9, 0.7, 0.8, 0.6, 0.1))
	p := params(0.4)
	p.TopK = 4
	hits, _, err := SearchIndex(ix, query, p, models.DomainNone)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	want := []float64{0.9, 0.9, 0.8, 0.7}
	for i, h := range hits {
		require.InDelta(t, want[i], h.Score, 1e-6)
	}
	require.Equal(t, hits[0].Text, hits[1].Text)
}

func TestHitCountMonotonicInMinScore(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.2, 0.35, 0.5, 0.65, 0.8), corpus(t, models.DomainSummit, 0.3, 0.55))
	prev := math.MaxInt
	for _, min := range []float64{0, 0.1, 0.25, 0.4, 0.55, 0.7, 0.85, 0.99} {
		p := params(min)
		p.TopK = 100
		hits, _, err := SearchIndex(ix, query, p, models.DomainNone)
		require.NoError(t, err)
		require.LessOrEqual(t, len(hits), prev, "min_score %.2f", min)
		prev = len(hits)
	}
}

func TestSelfCosine(t *testing.T) {
	v := []float32{0.3, -1.2, 4, 0.7}
	m, _ := index.Stack([][]float32{v})
	c, err := index.NewCorpus(models.DomainDE, m, []models.ChunkRecord{{Text: "self"}})
	require.NoError(t, err)
	q := providers.L2Normalize(append([]float32(nil), v...))
	hits, _, err := SearchIndex(index.New(c), q, params(0.5), models.DomainNone)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestZeroRowsAreFilteredNotFatal(t *testing.T) {
	m, _ := index.Stack([][]float32{{0, 0}, {1, 0}})
	c, err := index.NewCorpus(models.DomainDE, m, []models.ChunkRecord{{Text: "zero"}, {Text: "real"}})
	require.NoError(t, err)
	hits, _, err := SearchIndex(index.New(c), query, params(0.3), models.DomainNone)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "real", hits[0].Text)
}

func TestDimensionMismatch(t *testing.T) {
	ix := index.New(corpus(t, models.DomainDE, 0.5))
	_, _, err := SearchIndex(ix, []float32{1, 0, 0}, params(0.1), models.DomainNone)
	require.ErrorIs(t, err, util.ErrIntegrity)
}

func TestRoute(t *testing.T) {
	p := params(0.4)
	cases := []struct {
		de, summit float64
		want       models.Domain
	}{
		{0.2, 0.2, models.DomainNone},
		{0.6, 0, models.DomainDE},
		{0, 0.6, models.DomainSummit},
		{0.5, 0.52, models.DomainDE},
		{0.38, 0.42, models.DomainSummit},
		{0.42, 0.38, models.DomainDE},
		{0.5, 0.6, models.DomainSummit},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Route(tc.de, tc.summit, p), "de=%.2f summit=%.2f", tc.de, tc.summit)
	}
	p.TieBreak = models.DomainSummit
	require.Equal(t, models.DomainSummit, Route(0.52, 0.5, p))
	// tie-break corpus below min_score yields to the one that clears it
	require.Equal(t, models.DomainDE, Route(0.42, 0.39, p))
}

type fixedEmbedder struct {
	vec   []float32
	err   error
	calls atomic.Int32
	seen  []string
	mu    sync.Mutex
}

func (f *fixedEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, req.Inputs...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, providers.ProviderInfo{}, f.err
	}
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = append([]float32(nil), f.vec...)
	}
	return out, providers.ProviderInfo{Name: "fixed"}, nil
}

func TestSearcherLoadsIndexOnce(t *testing.T) {
	var loads atomic.Int32
	ix := index.New(corpus(t, models.DomainDE, 0.6))
	emb := &fixedEmbedder{vec: []float32{2, 0}}
	p := params(0.4)
	p.QueryPrefix = "query: "
	s := NewSearcher(emb, func() (*index.Index, error) {
		loads.Add(1)
		return ix, nil
	}, p, arbor.NewLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, domain, err := s.Search(context.Background(), "what is MBSE?", models.DomainNone)
			assert.NoError(t, err)
			assert.Equal(t, models.DomainDE, domain)
			assert.Len(t, hits, 1)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), loads.Load())
	require.Equal(t, "query: what is MBSE?", emb.seen[0])
}

func TestSearcherPropagatesFailures(t *testing.T) {
	emb := &fixedEmbedder{err: util.ErrTransient}
	s := NewSearcher(emb, func() (*index.Index, error) { return index.New(), nil }, params(0.4), arbor.NewLogger())
	_, domain, err := s.Search(context.Background(), "q", models.DomainNone)
	require.True(t, errors.Is(err, util.ErrTransient))
	require.Equal(t, models.DomainNone, domain)

	broken := NewSearcher(&fixedEmbedder{vec: query}, func() (*index.Index, error) {
		return nil, util.ErrIntegrity
	}, params(0.4), arbor.NewLogger())
	_, _, err = broken.Search(context.Background(), "q", models.DomainNone)
	require.ErrorIs(t, err, util.ErrIntegrity)
}

func TestSearcherRejectsWrongShape(t *testing.T) {
	emb := &fixedEmbedder{vec: []float32{}}
	s := NewSearcher(emb, func() (*index.Index, error) { return index.New(), nil }, params(0.4), arbor.NewLogger())
	_, _, err := s.Search(context.Background(), "q", models.DomainNone)
	require.ErrorIs(t, err, util.ErrMalformedResult)
}

func TestHintScoresOnlyHintedCorpus(t *testing.T) {
	wide, err := index.Stack([][]float32{{1, 0, 0}})
	require.NoError(t, err)
	de, err := index.NewCorpus(models.DomainDE, wide, []models.ChunkRecord{{Text: "de-chunk"}})
	require.NoError(t, err)
	ix := index.New(de, corpus(t, models.DomainSummit, 0.7))

	hits, domain, err := SearchIndex(ix, query, params(0.4), models.DomainSummit)
	require.NoError(t, err)
	require.Equal(t, models.DomainSummit, domain)
	require.Len(t, hits, 1)

	_, _, err = SearchIndex(ix, query, params(0.4), models.DomainNone)
	require.ErrorIs(t, err, util.ErrIntegrity)
}

func TestSearchUsesConfiguredDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5,0.5,0.5,0.1,0.1,0.1,0.1]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	w, err := util.CreateJSONL(pipeline.ChunksPath(dir, models.DomainDE))
	require.NoError(t, err)
	require.NoError(t, w.Write(models.ChunkRecord{Meta: models.ChunkMeta{SourceName: "mbse.txt"}, Text: "model-based systems engineering"}))
	require.NoError(t, w.Close())

	emb := providers.NewOllamaEmbeddingProvider(srv.URL, "nomic-embed-text", time.Second, 0)
	ecfg := config.Embedding{Provider: "ollama", Dimension: 4}
	logger := arbor.NewLogger()
	res, err := pipeline.EmbedCorpus(context.Background(), emb, dir, models.DomainDE, pipeline.EmbedOptions{BatchSize: 8, Dimension: ecfg.Dimension}, logger)
	require.NoError(t, err)
	require.Equal(t, 4, res.Dim)

	p := ParamsFromConfig(config.Retrieval{TopK: 3, MinScore: 0.3, Margin: 0.05, TieBreak: "de"}, ecfg)
	require.Equal(t, 4, p.Dimension)
	s := NewSearcher(emb, func() (*index.Index, error) { return index.Load(dir, logger) }, p, logger)
	hits, domain, err := s.Search(context.Background(), "model-based systems engineering", models.DomainNone)
	require.NoError(t, err)
	require.Equal(t, models.DomainDE, domain)
	require.Len(t, hits, 1)
	require.Equal(t, "mbse.txt", hits[0].Meta.SourceName)
}

func TestSearcherReloadReadsIndexAgain(t *testing.T) {
	var loads atomic.Int32
	s := NewSearcher(&fixedEmbedder{vec: query}, func() (*index.Index, error) {
		if loads.Add(1) == 1 {
			return nil, util.ErrIntegrity
		}
		return index.New(corpus(t, models.DomainSummit, 0.8)), nil
	}, params(0.4), arbor.NewLogger())

	_, _, err := s.Search(context.Background(), "venue", models.DomainNone)
	require.ErrorIs(t, err, util.ErrIntegrity)
	_, _, err = s.Search(context.Background(), "venue", models.DomainNone)
	require.ErrorIs(t, err, util.ErrIntegrity)
	require.Equal(t, int32(1), loads.Load())

	s.Reload()
	hits, domain, err := s.Search(context.Background(), "venue", models.DomainNone)
	require.NoError(t, err)
	require.Equal(t, models.DomainSummit, domain)
	require.Len(t, hits, 1)
	require.Equal(t, int32(2), loads.Load())
}
