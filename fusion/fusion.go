// Package fusion merges per-modality hit lists into one ranked context.
//
// Similarity scores from different indexes are not calibrated against each
// other. The Strategy option makes the comparison explicit: Raw compares
// cosine similarities directly, MinMax rescales each modality's scores to
// [0, 1] before comparing them, and Interleave takes the best remaining hit
// of each modality in turn so that every modality is represented.
package fusion

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/a-h/ragrouter/content"
)

const DefaultMaxItems = 6

type Strategy string

const (
	Raw        Strategy = "raw"
	MinMax     Strategy = "minmax"
	Interleave Strategy = "interleave"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", Raw:
		return Raw, nil
	case MinMax:
		return MinMax, nil
	case Interleave:
		return Interleave, nil
	}
	return "", fmt.Errorf("fusion: unknown strategy %q", s)
}

type Options struct {
	// MaxItems caps the merged context, defaults to DefaultMaxItems.
	MaxItems int
	Strategy Strategy
}

// Ranked is a hit with the score used to order the merged context.
type Ranked struct {
	content.Hit
	RankScore float64
}

// Merge combines the hits, keeping the copy of each item with the highest
// similarity, and returns at most MaxItems hits in rank order. The result doesn't depend on
// map iteration order or on the order of hits within each list.
func Merge(results map[content.Modality][]content.Hit, opts Options) []Ranked {
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	best := make(map[string]Ranked)
	for _, m := range content.Modalities {
		hits := results[m]
		scores := rankScores(hits, opts.Strategy)
		for i, h := range hits {
			h.Modality = m
			r := Ranked{Hit: h, RankScore: scores[i]}
			if existing, ok := best[h.Item.ID]; ok && preferred(existing, r) <= 0 {
				continue
			}
			best[h.Item.ID] = r
		}
	}

	merged := make([]Ranked, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	slices.SortFunc(merged, compare)
	if opts.Strategy == Interleave {
		merged = interleave(merged)
	}
	if len(merged) > maxItems {
		merged = merged[:maxItems]
	}
	return merged
}

// preferred orders copies of the same item by similarity, then rank order.
func preferred(a, b Ranked) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return compare(a, b)
}

// interleave takes one hit from each modality in turn. The input must
// already be in rank order.
func interleave(ranked []Ranked) []Ranked {
	buckets := make([][]Ranked, len(content.Modalities))
	for _, r := range ranked {
		buckets[r.Modality.Order()] = append(buckets[r.Modality.Order()], r)
	}
	out := make([]Ranked, 0, len(ranked))
	for i := 0; len(out) < len(ranked); i++ {
		for _, b := range buckets {
			if i < len(b) {
				out = append(out, b[i])
			}
		}
	}
	return out
}

// compare orders by rank score descending, then modality, ingestion order
// and ID.
func compare(a, b Ranked) int {
	if c := cmp.Compare(b.RankScore, a.RankScore); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Modality.Order(), b.Modality.Order()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Item.Seq, b.Item.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.Item.ID, b.Item.ID)
}

func rankScores(hits []content.Hit, strategy Strategy) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	if strategy != MinMax || len(hits) == 0 {
		return scores
	}
	lo, hi := slices.Min(scores), slices.Max(scores)
	for i, s := range scores {
		if hi == lo {
			scores[i] = 1
			continue
		}
		scores[i] = (s - lo) / (hi - lo)
	}
	return scores
}

// Hits strips the rank scores.
func Hits(ranked []Ranked) []content.Hit {
	hits := make([]content.Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = r.Hit
	}
	return hits
}
