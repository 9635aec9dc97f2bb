// Package index holds the per-modality similarity indexes and their
// lifecycle.
package index

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/a-h/ragrouter/content"
)

// Index returns the k items most similar to the query vector.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]content.Hit, error)
}

// Provider returns the index for a partition and modality, or nil if there
// isn't one.
type Provider interface {
	Index(partition string, m content.Modality) Index
}

// Store persists content items.
type Store interface {
	ItemsPut(ctx context.Context, args ItemsPutArgs) error
	ItemsDelete(ctx context.Context, partition, documentURL string) error
	ItemsList(ctx context.Context, partition string) ([]content.Item, error)
	ItemsNearest(ctx context.Context, args NearestArgs) ([]content.Hit, error)
}

type ItemsPutArgs struct {
	Partition     string
	DocumentURL   string
	DocumentTitle string
	// Items replace any items previously stored for the document.
	Items []content.Item
}

type NearestArgs struct {
	Partition string
	Modality  content.Modality
	Embedding []float32
	Limit     int
}

// NewMemory creates an index over the given items, which must all be of the
// given modality.
func NewMemory(m content.Modality, items []content.Item) *Memory {
	idx := &Memory{
		modality: m,
		items:    make([]memoryItem, 0, len(items)),
	}
	for _, item := range items {
		if item.Modality != m {
			continue
		}
		idx.items = append(idx.items, memoryItem{Item: item, norm: norm(item.Embedding)})
	}
	slices.SortStableFunc(idx.items, func(a, b memoryItem) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return idx
}

// Memory is a brute-force cosine similarity index. It is read-only once
// created.
type Memory struct {
	modality content.Modality
	items    []memoryItem
}

type memoryItem struct {
	content.Item
	norm float64
}

func (idx *Memory) Len() int {
	return len(idx.items)
}

func (idx *Memory) Search(ctx context.Context, query []float32, k int) (hits []content.Hit, err error) {
	if k <= 0 || len(idx.items) == 0 {
		return nil, nil
	}
	queryNorm := norm(query)
	hits = make([]content.Hit, 0, len(idx.items))
	for i, item := range idx.items {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(item.Embedding) != len(query) {
			continue
		}
		hits = append(hits, content.Hit{
			Item:     item.Item,
			Score:    cosineSimilarity(query, item.Embedding, queryNorm, item.norm),
			Modality: idx.modality,
		})
	}
	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// SortHits orders hits by descending score, then by ingestion order.
func SortHits(hits []content.Hit) {
	slices.SortStableFunc(hits, func(a, b content.Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.Seq, b.Item.Seq)
	})
}

func cosineSimilarity(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
