// Package pipeline answers queries: route, search each selected modality,
// merge the results, then generate.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/fusion"
	"github.com/a-h/ragrouter/generate"
	"github.com/a-h/ragrouter/search"
)

var ErrEmptyQuery = errors.New("pipeline: query is empty")

type Router interface {
	Route(ctx context.Context, query string, history []content.Message) content.Decision
}

type Searcher interface {
	Search(ctx context.Context, args search.Args) map[content.Modality][]content.Hit
}

type Generator interface {
	Generate(ctx context.Context, req generate.Request) (generate.Answer, error)
}

type Options struct {
	// K is the number of hits taken from each modality.
	K      int
	Fusion fusion.Options
}

func New(log *slog.Logger, router Router, searcher Searcher, generator Generator, opts Options) *Pipeline {
	return &Pipeline{
		log:       log,
		router:    router,
		searcher:  searcher,
		generator: generator,
		opts:      opts,
	}
}

type Pipeline struct {
	log       *slog.Logger
	router    Router
	searcher  Searcher
	generator Generator
	opts      Options
}

type Query struct {
	Partition string
	Text      string
	History   []content.Message
	// Modalities overrides the router when set.
	Modalities []content.Modality
}

type Retrieval struct {
	Decision content.Decision
	Context  []fusion.Ranked
}

type Result struct {
	Retrieval
	Answer generate.Answer
}

// Retrieve routes the query and returns the merged context. It only fails if
// the query is empty.
func (p *Pipeline) Retrieve(ctx context.Context, q Query) (r Retrieval, err error) {
	if strings.TrimSpace(q.Text) == "" {
		return r, ErrEmptyQuery
	}
	start := time.Now()
	if len(q.Modalities) > 0 {
		r.Decision = content.NewDecision(q.Modalities...)
	} else {
		r.Decision = p.router.Route(ctx, q.Text, q.History)
	}
	results := p.searcher.Search(ctx, search.Args{
		Partition: q.Partition,
		Query:     q.Text,
		Decision:  r.Decision,
		K:         p.opts.K,
	})
	r.Context = fusion.Merge(results, p.opts.Fusion)
	p.log.Info("context retrieved",
		slog.String("partition", q.Partition),
		slog.String("modalities", r.Decision.String()),
		slog.Int("items", len(r.Context)),
		slog.Duration("elapsed", time.Since(start)))
	return r, nil
}

// Answer retrieves context for the query and generates an answer from it.
// Search failures degrade the context; generation failures are returned.
func (p *Pipeline) Answer(ctx context.Context, q Query, stream func(ctx context.Context, chunk []byte) error) (r Result, err error) {
	r.Retrieval, err = p.Retrieve(ctx, q)
	if err != nil {
		return r, err
	}
	if len(r.Context) == 0 {
		p.log.Warn("no context found for query", slog.String("partition", q.Partition), slog.String("modalities", r.Decision.String()))
	}
	r.Answer, err = p.generator.Generate(ctx, generate.Request{
		Query:   q.Text,
		History: q.History,
		Sources: generate.SourcesFromHits(fusion.Hits(r.Context)),
		Stream:  stream,
	})
	if err != nil {
		return r, err
	}
	return r, nil
}
