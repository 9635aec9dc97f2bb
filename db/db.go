package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/index"
	"github.com/rqlite/gorqlite"
)

func New(conn *gorqlite.Connection) *Queries {
	return &Queries{
		conn: conn,
		now:  time.Now,
	}
}

// Queries stores content items in rqlite, with embeddings held in a
// sqlite-vec table.
type Queries struct {
	conn *gorqlite.Connection
	now  func() time.Time
}

var _ index.Store = (*Queries)(nil)

type DocumentID struct {
	Partition string
	URL       string
}

func (d DocumentID) String() string {
	return fmt.Sprintf("%s:%s", d.Partition, d.URL)
}

func (q *Queries) documentUpsertRowID(ctx context.Context, id DocumentID, title string, now time.Time) (rowID int64, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query: `insert into document (id, partition, url, title, created_at, last_updated_at)
values (?, ?, ?, ?, ?, ?)
on conflict(id) do update
set
    title = excluded.title,
    last_updated_at = excluded.last_updated_at
`,
		Arguments: []any{id.String(), id.Partition, id.URL, title, now, now},
	}
	_, err = q.conn.WriteOneParameterizedContext(ctx, stmt)
	if err != nil {
		return 0, err
	}

	// Read the row ID.
	stmt = gorqlite.ParameterizedStatement{
		Query:     `select rowid from document where id = ?`,
		Arguments: []any{id.String()},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	if !result.Next() {
		return 0, fmt.Errorf("expected a row ID")
	}
	err = result.Scan(&rowID)
	return rowID, err
}

func (q *Queries) ItemsPut(ctx context.Context, args index.ItemsPutArgs) (err error) {
	id := DocumentID{Partition: args.Partition, URL: args.DocumentURL}
	rowID, err := q.documentUpsertRowID(ctx, id, args.DocumentTitle, q.now())
	if err != nil {
		return fmt.Errorf("db: failed to upsert document row id: %w", err)
	}
	if rowID == 0 {
		return fmt.Errorf("db: expected a non-zero row ID")
	}

	statements := []gorqlite.ParameterizedStatement{
		{
			Query:     `delete from content_item_vec where rowid in (select rowid from content_item where document_rowid = ?)`,
			Arguments: []any{rowID},
		},
		{
			Query:     `delete from content_item where document_rowid = ?`,
			Arguments: []any{rowID},
		},
	}
	for i, item := range args.Items {
		embeddingJSON, err := json.Marshal(item.Embedding)
		if err != nil {
			return fmt.Errorf("db: failed to marshal embedding: %w", err)
		}
		statements = append(statements,
			gorqlite.ParameterizedStatement{
				Query: `insert into content_item (document_rowid, partition, modality, idx, item_id, seq, location, surrogate, raw, kind)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				Arguments: []any{rowID, args.Partition, string(item.Modality), i, item.ID, item.Seq, item.Location, item.Surrogate, item.Raw, item.Kind},
			},
			gorqlite.ParameterizedStatement{
				Query:     `insert into content_item_vec (rowid, partition, modality, embedding) values ((select rowid from content_item where document_rowid = ? and idx = ?), ?, ?, ?)`,
				Arguments: []any{rowID, i, args.Partition, string(item.Modality), string(embeddingJSON)},
			},
		)
	}
	if _, err = q.conn.WriteParameterizedContext(ctx, statements); err != nil {
		return fmt.Errorf("db: failed to write items: %w", err)
	}
	return nil
}

func (q *Queries) ItemsDelete(ctx context.Context, partition, documentURL string) (err error) {
	statements := []gorqlite.ParameterizedStatement{
		{
			Query:     `delete from content_item_vec where rowid in (select ci.rowid from content_item ci inner join document d on d.rowid = ci.document_rowid where d.partition = ? and d.url = ?)`,
			Arguments: []any{partition, documentURL},
		},
		{
			Query:     `delete from content_item where document_rowid in (select rowid from document where partition = ? and url = ?)`,
			Arguments: []any{partition, documentURL},
		},
		{
			Query:     `delete from document where partition = ? and url = ?`,
			Arguments: []any{partition, documentURL},
		},
	}
	if _, err = q.conn.WriteParameterizedContext(ctx, statements); err != nil {
		return fmt.Errorf("db: failed to delete items: %w", err)
	}
	return nil
}

// ItemsList returns every item in the partition, including embeddings.
func (q *Queries) ItemsList(ctx context.Context, partition string) (items []content.Item, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query: `select
  ci.item_id,
  ci.partition,
  ci.modality,
  ci.seq,
  ci.location,
  ci.surrogate,
  ci.raw,
  ci.kind,
  d.url,
  d.title,
  vec_to_json(v.embedding)
from content_item ci
inner join document d on d.rowid = ci.document_rowid
inner join content_item_vec v on v.rowid = ci.rowid
where ci.partition = ?
order by ci.seq asc`,
		Arguments: []any{partition},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("db: failed to list items: %w", err)
	}
	for result.Next() {
		var item content.Item
		var modality, embeddingJSON string
		if err = result.Scan(&item.ID, &item.Partition, &modality, &item.Seq, &item.Location, &item.Surrogate, &item.Raw, &item.Kind, &item.DocumentURL, &item.DocumentTitle, &embeddingJSON); err != nil {
			return nil, err
		}
		item.Modality = content.Modality(modality)
		if err = json.Unmarshal([]byte(embeddingJSON), &item.Embedding); err != nil {
			return nil, fmt.Errorf("db: failed to unmarshal embedding: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ItemsNearest returns the items closest to the embedding. The score is the
// cosine similarity.
func (q *Queries) ItemsNearest(ctx context.Context, args index.NearestArgs) (hits []content.Hit, err error) {
	inputEmbeddingJSON, err := json.Marshal(args.Embedding)
	if err != nil {
		return nil, fmt.Errorf("db: failed to marshal input embedding: %w", err)
	}
	stmt := gorqlite.ParameterizedStatement{
		Query: `with knn as (
  select rowid, distance
  from content_item_vec
  where embedding match ? and k = ? and partition = ? and modality = ?
)
select
  ci.item_id,
  ci.partition,
  ci.modality,
  ci.seq,
  ci.location,
  ci.surrogate,
  ci.raw,
  ci.kind,
  d.url,
  d.title,
  knn.distance
from knn
inner join content_item ci on ci.rowid = knn.rowid
inner join document d on d.rowid = ci.document_rowid
order by knn.distance asc, ci.seq asc`,
		Arguments: []any{string(inputEmbeddingJSON), args.Limit, args.Partition, string(args.Modality)},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("db: failed to query nearest items: %w", err)
	}
	for result.Next() {
		var item content.Item
		var modality string
		var distance float64
		if err = result.Scan(&item.ID, &item.Partition, &modality, &item.Seq, &item.Location, &item.Surrogate, &item.Raw, &item.Kind, &item.DocumentURL, &item.DocumentTitle, &distance); err != nil {
			return nil, err
		}
		item.Modality = content.Modality(modality)
		hits = append(hits, content.Hit{Item: item, Score: 1 - distance, Modality: item.Modality})
	}
	return hits, nil
}
