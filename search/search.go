// Package search runs a query against each selected modality index.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/index"
	"github.com/tmc/langchaingo/embeddings"
)

const (
	DefaultK       = 3
	DefaultTimeout = 3 * time.Second
)

func New(log *slog.Logger, embedder embeddings.Embedder, indexes index.Provider, timeout time.Duration) *Searcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Searcher{
		log:      log,
		embedder: embedder,
		indexes:  indexes,
		timeout:  timeout,
	}
}

type Searcher struct {
	log      *slog.Logger
	embedder embeddings.Embedder
	indexes  index.Provider
	timeout  time.Duration
}

type Args struct {
	Partition string
	Query     string
	Decision  content.Decision
	// K is the number of hits per modality, defaults to DefaultK.
	K int
}

// Search returns the top hits of each modality in the decision. A modality
// whose index is missing, fails, or doesn't respond within the timeout
// contributes an empty list.
func (s *Searcher) Search(ctx context.Context, args Args) map[content.Modality][]content.Hit {
	modalities := args.Decision.Modalities()
	results := make(map[content.Modality][]content.Hit, len(modalities))
	for _, m := range modalities {
		results[m] = []content.Hit{}
	}
	k := args.K
	if k <= 0 {
		k = DefaultK
	}

	vector, err := s.embedder.EmbedQuery(ctx, args.Query)
	if err != nil {
		s.log.Warn("failed to embed query, no context will be used", slog.Any("error", err))
		return results
	}

	outputs := make([][]content.Hit, len(modalities))
	var wg sync.WaitGroup
	wg.Add(len(modalities))
	for i, m := range modalities {
		go func(i int, m content.Modality) {
			defer wg.Done()
			outputs[i] = s.searchModality(ctx, args.Partition, m, vector, k)
		}(i, m)
	}
	wg.Wait()

	for i, m := range modalities {
		if outputs[i] != nil {
			results[m] = outputs[i]
		}
	}
	return results
}

type searchResult struct {
	hits []content.Hit
	err  error
}

func (s *Searcher) searchModality(ctx context.Context, partition string, m content.Modality, vector []float32, k int) []content.Hit {
	log := s.log.With(slog.String("partition", partition), slog.String("modality", string(m)))
	idx := s.indexes.Index(partition, m)
	if idx == nil {
		log.Debug("no index for modality")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan searchResult, 1)
	go func() {
		hits, err := idx.Search(ctx, vector, k)
		done <- searchResult{hits: hits, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Warn("modality search abandoned", slog.Duration("elapsed", time.Since(start)), slog.Any("error", ctx.Err()))
		return nil
	case r := <-done:
		if r.err != nil {
			log.Warn("modality search failed", slog.Any("error", r.err))
			return nil
		}
		log.Debug("modality searched", slog.Int("hits", len(r.hits)), slog.Duration("elapsed", time.Since(start)))
		for i := range r.hits {
			r.hits[i].Modality = m
		}
		return r.hits
	}
}
