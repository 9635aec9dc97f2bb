// Package pgstore stores content items in Postgres using pgvector.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/index"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/mod/semver"
)

type Store struct {
	db *sql.DB
	// iterativeScan is set when pgvector can keep scanning the HNSW index
	// until the partition and modality filters have matched enough rows.
	iterativeScan bool
}

var _ index.Store = (*Store)(nil)

// New connects to Postgres and creates the schema if required. Embeddings
// must have the given number of dimensions.
func New(ctx context.Context, conn string, dimensions int) (*Store, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to open database: %w", err)
	}
	if err = ensureSchema(ctx, db, dimensions); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: failed to create schema: %w", err)
	}
	var version string
	if err = db.QueryRowContext(ctx, `SELECT extversion FROM pg_extension WHERE extname = 'vector'`).Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: failed to get pgvector version: %w", err)
	}
	return &Store{db: db, iterativeScan: supportsIterativeScan(version)}, nil
}

// supportsIterativeScan reports whether the pgvector extension version has
// the hnsw.iterative_scan setting, added in 0.8.0.
func supportsIterativeScan(version string) bool {
	v := "v" + version
	return semver.IsValid(v) && semver.Compare(v, "v0.8.0") >= 0
}

func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchema(ctx context.Context, db *sql.DB, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS content_item (
			partition TEXT NOT NULL,
			document_url TEXT NOT NULL,
			document_title TEXT NOT NULL,
			idx INTEGER NOT NULL,
			item_id TEXT NOT NULL,
			modality TEXT NOT NULL,
			seq BIGINT NOT NULL,
			location TEXT NOT NULL,
			surrogate TEXT NOT NULL,
			raw TEXT NOT NULL,
			kind TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (partition, document_url, idx)
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS content_item_partition_modality_idx ON content_item (partition, modality)`,
		`CREATE INDEX IF NOT EXISTS content_item_embedding_hnsw_idx ON content_item USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ItemsPut(ctx context.Context, args index.ItemsPutArgs) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM content_item WHERE partition = $1 AND document_url = $2`, args.Partition, args.DocumentURL); err != nil {
		return fmt.Errorf("pgstore: failed to delete previous items: %w", err)
	}
	for i, item := range args.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO content_item (partition, document_url, document_title, idx, item_id, modality, seq, location, surrogate, raw, kind, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, args.Partition, args.DocumentURL, args.DocumentTitle, i, item.ID, string(item.Modality), item.Seq, item.Location, item.Surrogate, item.Raw, item.Kind, pgvector.NewVector(item.Embedding))
		if err != nil {
			return fmt.Errorf("pgstore: failed to insert item %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: failed to commit items: %w", err)
	}
	return nil
}

func (s *Store) ItemsDelete(ctx context.Context, partition, documentURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_item WHERE partition = $1 AND document_url = $2`, partition, documentURL); err != nil {
		return fmt.Errorf("pgstore: failed to delete items: %w", err)
	}
	return nil
}

func (s *Store) ItemsList(ctx context.Context, partition string) (items []content.Item, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, partition, document_url, document_title, location, modality, seq, surrogate, raw, kind, embedding
		FROM content_item
		WHERE partition = $1
		ORDER BY seq ASC
	`, partition)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item content.Item
		var modality string
		var embedding pgvector.Vector
		if err = rows.Scan(&item.ID, &item.Partition, &item.DocumentURL, &item.DocumentTitle, &item.Location, &modality, &item.Seq, &item.Surrogate, &item.Raw, &item.Kind, &embedding); err != nil {
			return nil, err
		}
		item.Modality = content.Modality(modality)
		item.Embedding = embedding.Slice()
		items = append(items, item)
	}
	return items, rows.Err()
}

// ItemsNearest orders by cosine distance. The score is the cosine
// similarity.
//
// Without iterative scans, the HNSW index returns its candidates before the
// partition and modality filters are applied, so a sparse modality can
// return fewer than Limit rows.
func (s *Store) ItemsNearest(ctx context.Context, args index.NearestArgs) (hits []content.Hit, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if s.iterativeScan {
		if _, err = tx.ExecContext(ctx, `SET LOCAL hnsw.iterative_scan = strict_order`); err != nil {
			return nil, fmt.Errorf("pgstore: failed to enable iterative scan: %w", err)
		}
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT item_id, partition, document_url, document_title, location, modality, seq, surrogate, raw, kind, 1 - (embedding <=> $1) AS score
		FROM content_item
		WHERE partition = $2 AND modality = $3
		ORDER BY embedding <=> $1, seq ASC
		LIMIT $4
	`, pgvector.NewVector(args.Embedding), args.Partition, string(args.Modality), args.Limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to query nearest items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hit content.Hit
		var modality string
		if err = rows.Scan(&hit.Item.ID, &hit.Item.Partition, &hit.Item.DocumentURL, &hit.Item.DocumentTitle, &hit.Item.Location, &modality, &hit.Item.Seq, &hit.Item.Surrogate, &hit.Item.Raw, &hit.Item.Kind, &hit.Score); err != nil {
			return nil, err
		}
		hit.Item.Modality = content.Modality(modality)
		hit.Modality = hit.Item.Modality
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
