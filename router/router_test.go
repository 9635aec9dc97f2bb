package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/llmtest"
	"github.com/google/go-cmp/cmp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var all = []content.Modality{content.ModalityText, content.ModalityImage, content.ModalityTable}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []content.Modality
		err      bool
	}{
		{
			name:     "single type",
			raw:      `{"types": ["IMAGE"]}`,
			expected: []content.Modality{content.ModalityImage},
		},
		{
			name:     "multiple types are returned in rank order",
			raw:      `{"types": ["TABLE", "TEXT"]}`,
			expected: []content.Modality{content.ModalityText, content.ModalityTable},
		},
		{
			name:     "ALL expands to every modality",
			raw:      `{"types": ["TEXT", "ALL"]}`,
			expected: all,
		},
		{
			name:     "synonyms are accepted",
			raw:      `{"types": ["visual", "Tabular"]}`,
			expected: []content.Modality{content.ModalityImage, content.ModalityTable},
		},
		{
			name:     "combination selects every modality",
			raw:      `{"types": ["combination"]}`,
			expected: all,
		},
		{
			name:     "JSON wrapped in a markdown fence is found",
			raw:      "Sure!\n```json\n{\"types\": [\"TABLE\"]}\n```",
			expected: []content.Modality{content.ModalityTable},
		},
		{
			name:     "an empty list selects text",
			raw:      `{"types": []}`,
			expected: []content.Modality{content.ModalityText},
		},
		{
			name:     "unknown labels are skipped, leaving text",
			raw:      `{"types": ["AUDIO"]}`,
			expected: []content.Modality{content.ModalityText},
		},
		{
			name: "no JSON is an error",
			raw:  "IMAGE",
			err:  true,
		},
		{
			name: "invalid JSON is an error",
			raw:  `{"types": [IMAGE]}`,
			err:  true,
		},
		{
			name: "missing types key is an error",
			raw:  `{"modalities": ["IMAGE"]}`,
			err:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.raw)
			if tt.err {
				if !errors.Is(err, ErrUnparseable) {
					t.Fatalf("expected ErrUnparseable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, d.Modalities()); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	classifier := func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "chart on page 3"):
			return `{"types": ["IMAGE"]}`, nil
		case strings.Contains(prompt, "Q3 revenue"):
			return `{"types": ["TABLE", "TEXT"]}`, nil
		}
		return "I'm not sure.", nil
	}
	tests := []struct {
		name     string
		llm      *llmtest.Model
		query    string
		includes content.Modality
		expected []content.Modality
	}{
		{
			name:     "chart questions are routed to images",
			llm:      &llmtest.Model{Respond: classifier},
			query:    "What does the chart on page 3 show?",
			includes: content.ModalityImage,
		},
		{
			name:     "revenue questions are routed to tables",
			llm:      &llmtest.Model{Respond: classifier},
			query:    "What was Q3 revenue?",
			includes: content.ModalityTable,
		},
		{
			name:     "unparseable responses fail open",
			llm:      &llmtest.Model{Respond: classifier},
			query:    "Summarise the findings.",
			expected: all,
		},
		{
			name:     "classifier errors fail open",
			llm:      &llmtest.Model{Err: errors.New("rate limited")},
			query:    "What does the chart on page 3 show?",
			includes: content.ModalityImage,
			expected: all,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(discard, tt.llm)
			d := r.Route(context.Background(), tt.query, nil)
			if len(d.Modalities()) == 0 {
				t.Fatal("expected a non-empty decision")
			}
			if tt.includes != "" && !d.Has(tt.includes) {
				t.Errorf("expected %q in %v", tt.includes, d.Modalities())
			}
			if tt.expected != nil {
				if diff := cmp.Diff(tt.expected, d.Modalities()); diff != "" {
					t.Error(diff)
				}
			}
		})
	}
}

func TestRouteIncludesRecentHistory(t *testing.T) {
	llm := &llmtest.Model{Response: `{"types": ["TEXT"]}`}
	r := New(discard, llm)
	var history []content.Message
	for i := 0; i < 6; i++ {
		history = append(history, content.Message{Role: content.RoleHuman, Content: "message"})
	}
	r.Route(context.Background(), "and then?", history)
	if llm.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", llm.Calls())
	}
	if got := len(llm.Requests[0]); got != MaxHistory+1 {
		t.Errorf("expected %d messages, got %d", MaxHistory+1, got)
	}
}
