package fusion

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/a-h/ragrouter/content"
	"github.com/google/go-cmp/cmp"
)

func hit(id string, m content.Modality, seq int64, score float64) content.Hit {
	return content.Hit{
		Item:     content.Item{ID: id, Modality: m, Seq: seq},
		Score:    score,
		Modality: m,
	}
}

type summary struct {
	ID       string
	Modality content.Modality
	Score    float64
}

func summarise(ranked []Ranked) (s []summary) {
	for _, r := range ranked {
		s = append(s, summary{ID: r.Item.ID, Modality: r.Modality, Score: r.Score})
	}
	return s
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		results  map[content.Modality][]content.Hit
		opts     Options
		expected []summary
	}{
		{
			name:     "no results produce an empty context",
			results:  map[content.Modality][]content.Hit{content.ModalityImage: {}},
			expected: nil,
		},
		{
			name: "hits are ranked by score across modalities",
			results: map[content.Modality][]content.Hit{
				content.ModalityText:  {hit("t1", content.ModalityText, 1, 0.7), hit("t2", content.ModalityText, 2, 0.5)},
				content.ModalityImage: {hit("i1", content.ModalityImage, 3, 0.9)},
				content.ModalityTable: {hit("b1", content.ModalityTable, 4, 0.6)},
			},
			expected: []summary{
				{"i1", content.ModalityImage, 0.9},
				{"t1", content.ModalityText, 0.7},
				{"b1", content.ModalityTable, 0.6},
				{"t2", content.ModalityText, 0.5},
			},
		},
		{
			name: "duplicate items keep the higher score",
			results: map[content.Modality][]content.Hit{
				content.ModalityText:  {hit("chunk", content.ModalityText, 1, 0.74)},
				content.ModalityTable: {hit("chunk", content.ModalityTable, 1, 0.81)},
			},
			expected: []summary{
				{"chunk", content.ModalityTable, 0.81},
			},
		},
		{
			name: "duplicate items keep the higher similarity when scores are normalised",
			results: map[content.Modality][]content.Hit{
				content.ModalityText:  {hit("other", content.ModalityText, 1, 0.95), hit("chunk", content.ModalityText, 2, 0.81)},
				content.ModalityTable: {hit("chunk", content.ModalityTable, 3, 0.74), hit("low", content.ModalityTable, 4, 0.10)},
			},
			opts: Options{Strategy: MinMax},
			expected: []summary{
				{"other", content.ModalityText, 0.95},
				{"chunk", content.ModalityText, 0.81},
				{"low", content.ModalityTable, 0.10},
			},
		},
		{
			name: "interleave takes one hit from each modality in turn",
			results: map[content.Modality][]content.Hit{
				content.ModalityText:  {hit("t1", content.ModalityText, 1, 0.9), hit("t2", content.ModalityText, 2, 0.8), hit("t3", content.ModalityText, 3, 0.7)},
				content.ModalityImage: {hit("i1", content.ModalityImage, 4, 0.3)},
				content.ModalityTable: {hit("b2", content.ModalityTable, 6, 0.1), hit("b1", content.ModalityTable, 5, 0.2)},
			},
			opts: Options{Strategy: Interleave, MaxItems: 5},
			expected: []summary{
				{"t1", content.ModalityText, 0.9},
				{"i1", content.ModalityImage, 0.3},
				{"b1", content.ModalityTable, 0.2},
				{"t2", content.ModalityText, 0.8},
				{"b2", content.ModalityTable, 0.1},
			},
		},
		{
			name: "equal scores are ordered by modality, then ingestion order",
			results: map[content.Modality][]content.Hit{
				content.ModalityTable: {hit("b1", content.ModalityTable, 1, 0.5)},
				content.ModalityText:  {hit("t2", content.ModalityText, 9, 0.5), hit("t1", content.ModalityText, 2, 0.5)},
			},
			expected: []summary{
				{"t1", content.ModalityText, 0.5},
				{"t2", content.ModalityText, 0.5},
				{"b1", content.ModalityTable, 0.5},
			},
		},
		{
			name: "the context is truncated to the maximum",
			results: map[content.Modality][]content.Hit{
				content.ModalityText: {hit("t1", content.ModalityText, 1, 0.9), hit("t2", content.ModalityText, 2, 0.8), hit("t3", content.ModalityText, 3, 0.7)},
			},
			opts: Options{MaxItems: 2},
			expected: []summary{
				{"t1", content.ModalityText, 0.9},
				{"t2", content.ModalityText, 0.8},
			},
		},
		{
			name: "min-max normalisation ranks each modality's best hit equally",
			results: map[content.Modality][]content.Hit{
				content.ModalityText:  {hit("t1", content.ModalityText, 1, 0.9), hit("t2", content.ModalityText, 2, 0.8)},
				content.ModalityImage: {hit("i1", content.ModalityImage, 3, 0.3), hit("i2", content.ModalityImage, 4, 0.2)},
			},
			opts: Options{Strategy: MinMax},
			expected: []summary{
				{"t1", content.ModalityText, 0.9},
				{"i1", content.ModalityImage, 0.3},
				{"t2", content.ModalityText, 0.8},
				{"i2", content.ModalityImage, 0.2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := summarise(Merge(tt.results, tt.opts))
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestMergeProperties(t *testing.T) {
	for _, strategy := range []Strategy{Raw, MinMax, Interleave} {
		t.Run(string(strategy), func(t *testing.T) {
			testMergeProperties(t, strategy)
		})
	}
}

func testMergeProperties(t *testing.T, strategy Strategy) {
	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 100; run++ {
		results := map[content.Modality][]content.Hit{}
		var seq int64
		for _, m := range content.Modalities {
			for i := rng.Intn(8); i > 0; i-- {
				seq++
				// A small ID space forces duplicates across modalities.
				id := fmt.Sprintf("item-%d", rng.Intn(10))
				results[m] = append(results[m], hit(id, m, seq, float64(rng.Intn(5))/4))
			}
		}
		maxItems := rng.Intn(8) + 1
		opts := Options{MaxItems: maxItems, Strategy: strategy}
		expected := Merge(results, opts)

		t.Run(fmt.Sprintf("run %d", run), func(t *testing.T) {
			if len(expected) > maxItems {
				t.Errorf("expected at most %d items, got %d", maxItems, len(expected))
			}
			seen := map[string]bool{}
			for _, r := range expected {
				if seen[r.Item.ID] {
					t.Errorf("item %s appears twice", r.Item.ID)
				}
				seen[r.Item.ID] = true
				for _, hits := range results {
					for _, h := range hits {
						if h.Item.ID == r.Item.ID && h.Score > r.Score {
							t.Errorf("item %s kept score %v, but %v was available", r.Item.ID, r.Score, h.Score)
						}
					}
				}
			}

			shuffled := map[content.Modality][]content.Hit{}
			for _, m := range []content.Modality{content.ModalityTable, content.ModalityText, content.ModalityImage} {
				hits := append([]content.Hit(nil), results[m]...)
				rng.Shuffle(len(hits), func(i, j int) { hits[i], hits[j] = hits[j], hits[i] })
				shuffled[m] = hits
			}
			if diff := cmp.Diff(summarise(expected), summarise(Merge(shuffled, opts))); diff != "" {
				t.Errorf("merge depends on input order: %s", diff)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for input, expected := range map[string]Strategy{"": Raw, "raw": Raw, "minmax": MinMax, "interleave": Interleave} {
		actual, err := ParseStrategy(input)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", input, err)
		}
		if actual != expected {
			t.Errorf("%q: expected %q, got %q", input, expected, actual)
		}
	}
	if _, err := ParseStrategy("average"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
