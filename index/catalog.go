package index

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/a-h/ragrouter/content"
)

// Snapshot is an immutable set of in-memory indexes, keyed by partition and
// modality.
type Snapshot map[string]map[content.Modality]*Memory

// NewCatalog creates an empty catalog. Call Load at startup to populate it
// from the store.
func NewCatalog(log *slog.Logger, store Store) *Catalog {
	c := &Catalog{
		log:   log,
		store: store,
	}
	c.current.Store(&Snapshot{})
	return c
}

// Catalog serves queries from the current snapshot. Rebuilds run one at a
// time and publish a new snapshot when complete, so queries never see a
// partially built index.
type Catalog struct {
	log     *slog.Logger
	store   Store
	rebuild sync.Mutex
	current atomic.Pointer[Snapshot]
}

func (c *Catalog) Snapshot() Snapshot {
	return *c.current.Load()
}

func (c *Catalog) Index(partition string, m content.Modality) Index {
	idx, ok := c.Snapshot()[partition][m]
	if !ok || idx == nil {
		return nil
	}
	return idx
}

// Load rebuilds the indexes of each partition.
func (c *Catalog) Load(ctx context.Context, partitions ...string) (err error) {
	for _, p := range partitions {
		if err = c.RebuildPartition(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RebuildPartition reads every item in the partition from the store and
// replaces the partition's indexes.
func (c *Catalog) RebuildPartition(ctx context.Context, partition string) error {
	c.rebuild.Lock()
	defer c.rebuild.Unlock()

	items, err := c.store.ItemsList(ctx, partition)
	if err != nil {
		return fmt.Errorf("index: failed to list items for partition %q: %w", partition, err)
	}
	byModality := make(map[content.Modality][]content.Item, len(content.Modalities))
	for _, item := range items {
		byModality[item.Modality] = append(byModality[item.Modality], item)
	}
	indexes := make(map[content.Modality]*Memory, len(content.Modalities))
	for _, m := range content.Modalities {
		indexes[m] = NewMemory(m, byModality[m])
	}

	next := maps.Clone(c.Snapshot())
	if next == nil {
		next = Snapshot{}
	}
	next[partition] = indexes
	c.current.Store(&next)

	c.log.Info("index rebuilt", slog.String("partition", partition),
		slog.Int("text", indexes[content.ModalityText].Len()),
		slog.Int("image", indexes[content.ModalityImage].Len()),
		slog.Int("table", indexes[content.ModalityTable].Len()))
	return nil
}

// NewStoreProvider returns a provider that searches the store directly.
func NewStoreProvider(store Store) StoreProvider {
	return StoreProvider{store: store}
}

type StoreProvider struct {
	store Store
}

func (sp StoreProvider) Index(partition string, m content.Modality) Index {
	return storeIndex{store: sp.store, partition: partition, modality: m}
}

type storeIndex struct {
	store     Store
	partition string
	modality  content.Modality
}

func (si storeIndex) Search(ctx context.Context, query []float32, k int) ([]content.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	hits, err := si.store.ItemsNearest(ctx, NearestArgs{
		Partition: si.partition,
		Modality:  si.modality,
		Embedding: query,
		Limit:     k,
	})
	if err != nil {
		return nil, err
	}
	SortHits(hits)
	return hits, nil
}

// RebuildPartition does nothing, since the store is always current.
func (sp StoreProvider) RebuildPartition(ctx context.Context, partition string) error {
	return nil
}
