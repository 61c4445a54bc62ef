package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"dory/internal/config"
	"dory/internal/index"
	"dory/internal/models"
	"dory/internal/providers"
	"dory/internal/util"
)

type Params struct {
	TopK        int
	MinScore    float64
	Margin      float64
	TieBreak    models.Domain
	QueryPrefix string
	// Dimension is passed to the backend with every query so that query vectors
	// match the width the pipeline wrote. Zero keeps the model's native width.
	Dimension int
}

func ParamsFromConfig(r config.Retrieval, e config.Embedding) Params {
	tb, ok := models.ParseDomain(r.TieBreak)
	if !ok {
		tb = models.DomainDE
	}
	return Params{
		TopK:        r.TopK,
		MinScore:    r.MinScore,
		Margin:      r.Margin,
		TieBreak:    tb,
		QueryPrefix: e.QueryPrefix,
		Dimension:   e.Dimension,
	}
}

// Searcher embeds queries and routes them to one of the two corpora. The index is
// loaded on the first search and shared until Reload drops it.
type Searcher struct {
	embedder  providers.EmbeddingProvider
	loadIndex func() (*index.Index, error)
	params    Params
	logger    arbor.ILogger

	mu    sync.RWMutex
	index *util.Lazy[*index.Index]
}

func NewSearcher(embedder providers.EmbeddingProvider, loadIndex func() (*index.Index, error), p Params, logger arbor.ILogger) *Searcher {
	return &Searcher{
		embedder:  embedder,
		loadIndex: loadIndex,
		index:     util.NewLazy(loadIndex),
		params:    p,
		logger:    logger,
	}
}

func (s *Searcher) Params() Params { return s.params }

func (s *Searcher) Index() (*index.Index, error) {
	s.mu.RLock()
	l := s.index
	s.mu.RUnlock()
	return l.Get()
}

// Reload discards the cached index, or a cached load error, so the next search
// reads the files again. Searches already holding the old index finish on it.
func (s *Searcher) Reload() {
	s.mu.Lock()
	s.index = util.NewLazy(s.loadIndex)
	s.mu.Unlock()
	s.logger.Info().Msg("Vector index will be reloaded on next search")
}

// Search returns up to TopK hits from the chosen corpus and that corpus's name.
// No qualifying corpus yields (nil, DomainNone, nil).
func (s *Searcher) Search(ctx context.Context, query string, hint models.Domain) ([]models.Hit, models.Domain, error) {
	ix, err := s.Index()
	if err != nil {
		return nil, models.DomainNone, fmt.Errorf("load index: %w", err)
	}
	vecs, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "query",
		Inputs:    []string{s.params.QueryPrefix + query},
		Dimension: s.params.Dimension,
	})
	if err != nil {
		return nil, models.DomainNone, fmt.Errorf("embed query: %w", err)
	}
	if err := providers.CheckShape(vecs, 1); err != nil {
		return nil, models.DomainNone, fmt.Errorf("embed query: %w", err)
	}
	hits, domain, err := SearchIndex(ix, providers.L2Normalize(vecs[0]), s.params, hint)
	if err != nil {
		return nil, models.DomainNone, err
	}
	s.logger.Debug().Str("domain", string(domain)).Str("hint", string(hint)).Int("hits", len(hits)).Msg("retrieval")
	return hits, domain, nil
}

type scored struct {
	row   int
	score float64
}

// score computes dot products of q against every row; q must already be normalized.
func score(c *index.Corpus, q []float32) ([]scored, float64, error) {
	if c.Len() == 0 {
		return nil, 0, nil
	}
	if c.Dim() != len(q) {
		return nil, 0, fmt.Errorf("%w: corpus %s has dimension %d, query has %d", util.ErrIntegrity, c.Domain(), c.Dim(), len(q))
	}
	out := make([]scored, c.Len())
	best := 0.0
	for i := range out {
		row := c.Row(i)
		var dot float64
		for j, x := range row {
			dot += float64(x) * float64(q[j])
		}
		out[i] = scored{row: i, score: dot}
		if i == 0 || dot > best {
			best = dot
		}
	}
	return out, best, nil
}

// SearchIndex runs retrieval for an already embedded and normalized query. With a
// hint only the hinted corpus is scored.
func SearchIndex(ix *index.Index, q []float32, p Params, hint models.Domain) ([]models.Hit, models.Domain, error) {
	domains := models.Domains
	if hint != models.DomainNone {
		domains = []models.Domain{hint}
	}
	scores := make(map[models.Domain][]scored, len(domains))
	best := make(map[models.Domain]float64, len(domains))
	for _, d := range domains {
		sc, b, err := score(ix.Corpus(d), q)
		if err != nil {
			return nil, models.DomainNone, err
		}
		scores[d], best[d] = sc, b
	}

	chosen := hint
	if hint != models.DomainNone {
		if best[hint] < p.MinScore {
			return nil, models.DomainNone, nil
		}
	} else {
		chosen = Route(best[models.DomainDE], best[models.DomainSummit], p)
		if chosen == models.DomainNone {
			return nil, models.DomainNone, nil
		}
	}
	hits := topK(ix.Corpus(chosen), scores[chosen], p)
	if len(hits) == 0 {
		return nil, models.DomainNone, nil
	}
	return hits, chosen, nil
}

// Route picks the corpus to trust from each corpus's best score. A corpus wins
// outright when it clears MinScore and beats the other by at least Margin; near
// ties go to TieBreak when it clears MinScore, otherwise to the corpus that does.
func Route(bestDE, bestSummit float64, p Params) models.Domain {
	deOK := bestDE >= p.MinScore
	summitOK := bestSummit >= p.MinScore
	switch {
	case !deOK && !summitOK:
		return models.DomainNone
	case deOK && bestDE-bestSummit >= p.Margin:
		return models.DomainDE
	case summitOK && bestSummit-bestDE >= p.Margin:
		return models.DomainSummit
	}
	tie := p.TieBreak
	if tie == models.DomainNone {
		tie = models.DomainDE
	}
	if tie == models.DomainSummit {
		if summitOK {
			return models.DomainSummit
		}
		return models.DomainDE
	}
	if deOK {
		return models.DomainDE
	}
	return models.DomainSummit
}

func topK(c *index.Corpus, sc []scored, p Params) []models.Hit {
	kept := make([]scored, 0, len(sc))
	for _, s := range sc {
		if s.score >= p.MinScore {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	k := p.TopK
	if k <= 0 {
		k = 5
	}
	if len(kept) > k {
		kept = kept[:k]
	}
	hits := make([]models.Hit, 0, len(kept))
	for _, s := range kept {
		r := c.Record(s.row)
		hits = append(hits, models.Hit{Score: s.score, Text: r.Text, Meta: r.Meta, Domain: c.Domain()})
	}
	return hits
}
