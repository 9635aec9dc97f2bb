// Package ingest turns documents into content items for each modality,
// stores them, and rebuilds the indexes.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/a-h/ragrouter/caption"
	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/index"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/textsplitter"
)

var ErrEmptyDocument = errors.New("ingest: document has no content")

// Document is a parsed document. Page numbers start at 1; zero means the
// page is unknown.
type Document struct {
	URL    string
	Title  string
	Pages  []Page
	Images []Image
	Tables []Table
}

type Page struct {
	Number int
	Text   string
}

type Image struct {
	Name     string
	Page     int
	MIMEType string
	Data     []byte
}

type Table struct {
	Page int
	Rows [][]string
}

// Rebuilder rebuilds the indexes of a partition after its items change.
type Rebuilder interface {
	RebuildPartition(ctx context.Context, partition string) error
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// ImagesDir and TablesDir receive the image files and table CSVs that
	// items reference.
	ImagesDir  string
	TablesDir  string
	SkipImages bool
	SkipTables bool
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:    500,
		ChunkOverlap: 50,
		ImagesDir:    "data/extracted/images",
		TablesDir:    "data/extracted/tables",
	}
}

const TablePrompt = `Convert this table to a natural language description for search purposes. Describe what data the table contains, its structure, and key values.

Table:
%s`

func New(log *slog.Logger, embedder embeddings.Embedder, llm llms.Model, captioner caption.Captioner, store index.Store, rebuilder Rebuilder, opts Options) *Ingester {
	defaults := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.ImagesDir == "" {
		opts.ImagesDir = defaults.ImagesDir
	}
	if opts.TablesDir == "" {
		opts.TablesDir = defaults.TablesDir
	}
	return &Ingester{
		log:       log,
		splitter:  textsplitter.NewRecursiveCharacter(textsplitter.WithChunkSize(opts.ChunkSize), textsplitter.WithChunkOverlap(opts.ChunkOverlap)),
		embedder:  embedder,
		llm:       llm,
		captioner: captioner,
		store:     store,
		rebuilder: rebuilder,
		opts:      opts,
		now:       time.Now,
	}
}

type Ingester struct {
	log       *slog.Logger
	splitter  textsplitter.TextSplitter
	embedder  embeddings.Embedder
	llm       llms.Model
	captioner caption.Captioner
	store     index.Store
	rebuilder Rebuilder
	opts      Options
	now       func() time.Time
	// m serializes ingestion so that sequence numbers are allocated in order.
	m sync.Mutex
}

type Result struct {
	Text   int
	Images int
	Tables int
}

// Ingest replaces the stored items of the document and rebuilds the
// partition's indexes.
func (in *Ingester) Ingest(ctx context.Context, partition string, doc Document) (r Result, err error) {
	in.m.Lock()
	defer in.m.Unlock()

	log := in.log.With(slog.String("partition", partition), slog.String("url", doc.URL))

	items, err := in.textItems(doc)
	if err != nil {
		return r, err
	}
	r.Text = len(items)

	if !in.opts.SkipImages && in.captioner != nil {
		images, err := in.imageItems(ctx, log, doc)
		if err != nil {
			return r, err
		}
		r.Images = len(images)
		items = append(items, images...)
	}
	if !in.opts.SkipTables {
		tables, err := in.tableItems(ctx, log, doc)
		if err != nil {
			return r, err
		}
		r.Tables = len(tables)
		items = append(items, tables...)
	}
	if len(items) == 0 {
		return r, ErrEmptyDocument
	}

	surrogates := make([]string, len(items))
	for i, item := range items {
		surrogates[i] = item.Surrogate
	}
	vectors, err := in.embedder.EmbedDocuments(ctx, surrogates)
	if err != nil {
		return r, fmt.Errorf("ingest: failed to embed items: %w", err)
	}
	if len(vectors) != len(items) {
		return r, fmt.Errorf("ingest: embedded %d items, but got %d vectors", len(items), len(vectors))
	}

	// Nanosecond timestamps keep ingestion order across restarts.
	base := in.now().UnixNano()
	for i := range items {
		items[i].ID = content.Fingerprint(items[i].Surrogate)
		items[i].Partition = partition
		items[i].DocumentURL = doc.URL
		items[i].DocumentTitle = doc.Title
		items[i].Seq = base + int64(i)
		items[i].Embedding = vectors[i]
	}

	err = in.store.ItemsPut(ctx, index.ItemsPutArgs{
		Partition:     partition,
		DocumentURL:   doc.URL,
		DocumentTitle: doc.Title,
		Items:         items,
	})
	if err != nil {
		return r, fmt.Errorf("ingest: failed to store items: %w", err)
	}
	log.Info("document ingested", slog.Int("text", r.Text), slog.Int("images", r.Images), slog.Int("tables", r.Tables))

	if err = in.rebuilder.RebuildPartition(ctx, partition); err != nil {
		return r, fmt.Errorf("ingest: failed to rebuild indexes: %w", err)
	}
	return r, nil
}

// Delete removes the document's items and rebuilds the partition's indexes.
func (in *Ingester) Delete(ctx context.Context, partition, url string) error {
	in.m.Lock()
	defer in.m.Unlock()
	if err := in.store.ItemsDelete(ctx, partition, url); err != nil {
		return fmt.Errorf("ingest: failed to delete items: %w", err)
	}
	if err := in.rebuilder.RebuildPartition(ctx, partition); err != nil {
		return fmt.Errorf("ingest: failed to rebuild indexes: %w", err)
	}
	return nil
}

func (in *Ingester) textItems(doc Document) (items []content.Item, err error) {
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		chunks, err := in.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("ingest: failed to split text: %w", err)
		}
		for _, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			items = append(items, content.Item{
				Location:  location(page.Number, len(items)),
				Modality:  content.ModalityText,
				Surrogate: chunk,
				Raw:       chunk,
			})
		}
	}
	return items, nil
}

func location(page, chunk int) string {
	if page > 0 {
		return fmt.Sprintf("page %d", page)
	}
	return fmt.Sprintf("chunk %d", chunk)
}

func (in *Ingester) imageItems(ctx context.Context, log *slog.Logger, doc Document) (items []content.Item, err error) {
	for i, img := range doc.Images {
		path, err := writeFile(in.opts.ImagesDir, fileName(doc.URL, img.Page, i, imageExt(img)), img.Data)
		if err != nil {
			return nil, fmt.Errorf("ingest: failed to save image: %w", err)
		}
		log.Info("captioning image", slog.Int("image", i+1), slog.Int("of", len(doc.Images)), slog.String("path", path))
		text, kind := in.caption(ctx, log, path, img)
		items = append(items, content.Item{
			Location:  imageLocation(img, i),
			Modality:  content.ModalityImage,
			Surrogate: text,
			Raw:       path,
			Kind:      kind,
		})
	}
	return items, nil
}

// caption never fails: an image that can't be captioned is still indexed
// with a placeholder so that it appears in the document's items.
func (in *Ingester) caption(ctx context.Context, log *slog.Logger, path string, img Image) (text, kind string) {
	text, err := in.captioner.Caption(ctx, caption.Image{MIMEType: img.MIMEType, Data: img.Data})
	if err != nil || text == "" {
		log.Warn("image caption unavailable", slog.String("path", path), slog.Any("error", err))
		return fmt.Sprintf("[Image caption unavailable: %s]", path), "unknown"
	}
	return text, caption.Kind(text)
}

func imageLocation(img Image, i int) string {
	if img.Page > 0 {
		return fmt.Sprintf("page %d", img.Page)
	}
	if img.Name != "" {
		return img.Name
	}
	return fmt.Sprintf("image %d", i)
}

func imageExt(img Image) string {
	if ext := filepath.Ext(img.Name); ext != "" {
		return ext
	}
	switch img.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}

func (in *Ingester) tableItems(ctx context.Context, log *slog.Logger, doc Document) (items []content.Item, err error) {
	for i, table := range doc.Tables {
		if len(table.Rows) == 0 {
			continue
		}
		path, err := in.saveCSV(fileName(doc.URL, table.Page, i, ".csv"), table.Rows)
		if err != nil {
			return nil, fmt.Errorf("ingest: failed to save table: %w", err)
		}
		log.Info("describing table", slog.Int("table", i+1), slog.Int("of", len(doc.Tables)), slog.String("path", path))
		loc := fmt.Sprintf("table %d", i)
		if table.Page > 0 {
			loc = fmt.Sprintf("page %d", table.Page)
		}
		items = append(items, content.Item{
			Location:  loc,
			Modality:  content.ModalityTable,
			Surrogate: in.describeTable(ctx, log, table.Rows),
			Raw:       path,
		})
	}
	return items, nil
}

// describeTable falls back to the raw table text if the LLM is unavailable.
func (in *Ingester) describeTable(ctx context.Context, log *slog.Logger, rows [][]string) string {
	grid := FormatTable(rows)
	if in.llm == nil {
		return "Table data:\n" + grid
	}
	resp, err := in.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(TablePrompt, grid)),
	})
	if err != nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		log.Warn("table description unavailable, using table text", slog.Any("error", err))
		return "Table data:\n" + grid
	}
	return strings.TrimSpace(resp.Choices[0].Content)
}

// FormatTable renders rows as a pipe separated grid.
func FormatTable(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
		}
		lines[i] = strings.Join(cells, " | ")
	}
	return strings.Join(lines, "\n")
}

func (in *Ingester) saveCSV(name string, rows [][]string) (path string, err error) {
	if err = os.MkdirAll(in.opts.TablesDir, 0o755); err != nil {
		return "", err
	}
	path = filepath.Join(in.opts.TablesDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err = w.WriteAll(rows); err != nil {
		return "", err
	}
	return path, f.Close()
}

func writeFile(dir, name string, data []byte) (path string, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path = filepath.Join(dir, name)
	return path, os.WriteFile(path, data, 0o644)
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func fileName(url string, page, i int, ext string) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(url, "_"), "_")
	if base == "" {
		base = "document"
	}
	return fmt.Sprintf("%s_p%d_%d%s", base, page, i, ext)
}
