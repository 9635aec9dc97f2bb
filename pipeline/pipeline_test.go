package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/fusion"
	"github.com/a-h/ragrouter/generate"
	"github.com/a-h/ragrouter/index"
	"github.com/a-h/ragrouter/llmtest"
	"github.com/a-h/ragrouter/pipeline"
	"github.com/a-h/ragrouter/router"
	"github.com/a-h/ragrouter/search"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type store struct {
	items []content.Item
}

func (s store) ItemsPut(ctx context.Context, args index.ItemsPutArgs) error { return nil }
func (s store) ItemsDelete(ctx context.Context, partition, url string) error { return nil }
func (s store) ItemsList(ctx context.Context, partition string) ([]content.Item, error) {
	return s.items, nil
}
func (s store) ItemsNearest(ctx context.Context, args index.NearestArgs) ([]content.Hit, error) {
	return nil, nil
}

func textItem(id string, seq int64, surrogate string, embedding ...float32) content.Item {
	return content.Item{
		ID:            id,
		Partition:     "kb",
		DocumentURL:   "/report",
		DocumentTitle: "Report",
		Location:      "page 1",
		Modality:      content.ModalityText,
		Seq:           seq,
		Surrogate:     surrogate,
		Raw:           surrogate,
		Embedding:     embedding,
	}
}

// newPipeline builds a pipeline over a knowledge base that has text but no
// images or tables.
func newPipeline(t *testing.T, classifier, generator *llmtest.Model) *pipeline.Pipeline {
	t.Helper()
	catalog := index.NewCatalog(discard, store{items: []content.Item{
		textItem("a", 1, "The company was founded in 1999.", 1, 0),
		textItem("b", 2, "Headcount doubled.", 0, 1),
	}})
	if err := catalog.Load(context.Background(), "kb"); err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	embedder := llmtest.Embedder{Default: []float32{1, 0}}
	return pipeline.New(discard,
		router.New(discard, classifier),
		search.New(discard, embedder, catalog, time.Second),
		generate.New(discard, generator, generate.DefaultSystemPrompt, nil),
		pipeline.Options{K: 3, Fusion: fusion.Options{MaxItems: 6}},
	)
}

func echoContext(prompt string) (string, error) {
	if strings.Contains(prompt, generate.NoContext) {
		return generate.NoContext, nil
	}
	return "The company was founded in 1999 [1].", nil
}

func TestAnswer(t *testing.T) {
	p := newPipeline(t, &llmtest.Model{Response: `{"types": ["TEXT"]}`}, &llmtest.Model{Respond: echoContext})
	r, err := p.Answer(context.Background(), pipeline.Query{Partition: "kb", Text: "When was the company founded?"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Context) != 2 {
		t.Fatalf("expected 2 context items, got %d", len(r.Context))
	}
	if r.Context[0].Item.ID != "a" {
		t.Errorf("expected most similar item first, got %q", r.Context[0].Item.ID)
	}
	if r.Answer.NoContext {
		t.Error("expected context to be used")
	}
	if len(r.Answer.Citations) != 1 || r.Answer.Citations[0].DocumentURL != "/report" {
		t.Errorf("unexpected citations: %v", r.Answer.Citations)
	}
}

func TestAnswerImageOnlyQueryWithNoImages(t *testing.T) {
	generator := &llmtest.Model{Respond: echoContext}
	p := newPipeline(t, &llmtest.Model{Response: `{"types": ["IMAGE"]}`}, generator)
	r, err := p.Answer(context.Background(), pipeline.Query{Partition: "kb", Text: "What does the chart on page 3 show?"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Decision.Has(content.ModalityImage) {
		t.Errorf("expected image routing, got %v", r.Decision.Modalities())
	}
	if len(r.Context) != 0 {
		t.Errorf("expected empty context, got %d items", len(r.Context))
	}
	if !r.Answer.NoContext {
		t.Error("expected answer to report no context")
	}
	if r.Answer.Text != generate.NoContext {
		t.Errorf("expected %q, got %q", generate.NoContext, r.Answer.Text)
	}
}

func TestAnswerUnknownPartition(t *testing.T) {
	p := newPipeline(t, &llmtest.Model{Err: errors.New("classifier down")}, &llmtest.Model{Respond: echoContext})
	r, err := p.Answer(context.Background(), pipeline.Query{Partition: "empty", Text: "Anything?"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Decision.Modalities()) != 3 {
		t.Errorf("expected classifier failure to route to all modalities, got %v", r.Decision.Modalities())
	}
	if !r.Answer.NoContext {
		t.Error("expected answer to report no context")
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	p := newPipeline(t, &llmtest.Model{Response: `{"types": ["TEXT"]}`}, &llmtest.Model{Err: errors.New("timeout")})
	_, err := p.Answer(context.Background(), pipeline.Query{Partition: "kb", Text: "When?"}, nil)
	if !errors.Is(err, generate.ErrGeneration) {
		t.Errorf("expected generation error, got %v", err)
	}
}

func TestRetrieve(t *testing.T) {
	classifier := &llmtest.Model{Response: `{"types": ["IMAGE"]}`}
	p := newPipeline(t, classifier, &llmtest.Model{})

	t.Run("empty queries are rejected", func(t *testing.T) {
		if _, err := p.Retrieve(context.Background(), pipeline.Query{Partition: "kb", Text: "  "}); !errors.Is(err, pipeline.ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
	})
	t.Run("explicit modalities skip the router", func(t *testing.T) {
		calls := classifier.Calls()
		r, err := p.Retrieve(context.Background(), pipeline.Query{
			Partition:  "kb",
			Text:       "founded",
			Modalities: []content.Modality{content.ModalityText},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if classifier.Calls() != calls {
			t.Error("expected router not to be called")
		}
		if len(r.Context) != 2 {
			t.Errorf("expected 2 items, got %d", len(r.Context))
		}
	})
}
