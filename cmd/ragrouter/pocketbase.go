package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/ragrouter/client"
	"github.com/a-h/ragrouter/models"
	"github.com/pluja/pocketbase"
	"github.com/tmc/langchaingo/documentloaders"
	"gopkg.in/yaml.v3"
)

type ImportPocketbaseCommand struct {
	RAGServerURL    string `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	PocketbaseURL   string `help:"The URL of the Pocketbase server." env:"POCKETBASE_URL" default:"http://localhost:8080"`
	ID              string `help:"The ID of the document to import if you just want to import a single doc." env:"ID" default:""`
	Collection      string `help:"The name of the collection to export from." env:"COLLECTION" default:"entities"`
	Expand          string `help:"The fields to expand." env:"EXPAND" default:""`
	Files           string `help:"Comma separated list of fields that contain Pocketbase file references. PDFs and images are imported." env:"FILES" default:""`
	DryRun          bool   `help:"Do not actually import the documents." env:"DRY_RUN" default:"false"`
	LogLevel        string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ImportPocketbaseCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)

	pbe := NewPocketbaseExporter(c.PocketbaseURL, pocketbase.NewClient(c.PocketbaseURL), c.Collection, c.Expand, c.Files)
	for doc := range pbe.Export(ctx) {
		if c.ID != "" && doc.ID != c.ID {
			continue
		}
		log.Info("importing document", slog.String("url", doc.Document.URL), slog.Int("pages", len(doc.Document.Pages)), slog.Int("images", len(doc.Document.Images)))
		if c.DryRun {
			log.Info("skipping document import in dry run mode", slog.String("url", doc.Document.URL))
			continue
		}
		resp, err := rsc.DocumentsPost(ctx, models.DocumentsPostRequest{
			Document: doc.Document,
		})
		if err != nil {
			return fmt.Errorf("failed to post document: %w", err)
		}
		log.Info("document imported", slog.String("url", doc.Document.URL), slog.Int("text", resp.Text), slog.Int("images", resp.Images))
	}
	return pbe.Error
}

func NewPocketbaseExporter(baseURL string, client *pocketbase.Client, collection, expand, files string) *PocketbaseExporter {
	return &PocketbaseExporter{
		baseURL:    baseURL,
		client:     client,
		collection: collection,
		expand:     expand,
		files:      strings.Split(files, ","),
		PageSize:   10,
		Error:      nil,
	}
}

type PocketbaseExporter struct {
	// baseURL for downloading files, e.g. http://localhost:8090
	baseURL    string
	client     *pocketbase.Client
	collection string
	expand     string
	files      []string
	PageSize   int
	Error      error
}

func (p *PocketbaseExporter) Export(ctx context.Context) iter.Seq[ExportedDocument] {
	var page int
	return func(yield func(ExportedDocument) bool) {
		for {
			if ctx.Err() != nil {
				return
			}
			if p.Error != nil {
				return
			}
			page++
			response, err := p.client.List(p.collection, pocketbase.ParamsList{
				Page:   page,
				Size:   p.PageSize,
				Sort:   "-created",
				Expand: p.expand,
			})
			if err != nil {
				p.Error = err
				return
			}
			if len(response.Items) == 0 {
				return
			}
			for _, item := range response.Items {
				if !yield(p.createDocument(ctx, item)) {
					return
				}
			}
		}
	}
}

func useItemOrDefault(item map[string]any, keys []string, defaultValue string) string {
	for _, key := range keys {
		if value, ok := item[key].(string); ok {
			return value
		}
	}
	return defaultValue
}

type ExportedDocument struct {
	ID       string
	Document models.Document
}

// createDocument renders the record's fields as YAML on the first page, then
// adds the pages of attached PDFs and the attached images.
func (p *PocketbaseExporter) createDocument(ctx context.Context, item map[string]any) (ed ExportedDocument) {
	ed.ID = item["id"].(string)
	ed.Document.URL = useItemOrDefault(item, []string{"url"}, fmt.Sprintf("%s/%s", url.PathEscape(p.collection), url.PathEscape(ed.ID)))
	ed.Document.Title = useItemOrDefault(item, []string{"title", "name"}, "Untitled")
	recursivelyApplyExpandedFields(item)
	recursivelyRemoveKeys(item, []string{"id", "collectionId", "collectionName", "created", "updated"})

	sb := new(strings.Builder)
	_ = yaml.NewEncoder(sb).Encode(item)
	ed.Document.Text = sb.String()

	for _, fileFieldName := range p.files {
		if ctx.Err() != nil {
			return
		}
		fileNames, fileNamesFieldExists := item[fileFieldName].([]any)
		if !fileNamesFieldExists || len(fileNames) == 0 {
			continue
		}
		for _, fileName := range fileNames {
			// Check if the file name is a string.
			fileName, ok := fileName.(string)
			if !ok {
				p.Error = fmt.Errorf("file name is not a string")
				continue
			}
			ext := strings.ToLower(filepath.Ext(fileName))
			switch ext {
			case ".pdf":
				pages, err := p.getPDFPages(ctx, p.collection, ed.ID, fileName)
				if err != nil {
					p.Error = fmt.Errorf("failed to get file text: %w", err)
					continue
				}
				ed.Document.Pages = append(ed.Document.Pages, pages...)
			case ".png", ".jpg", ".jpeg", ".gif", ".webp":
				data, err := p.download(ctx, p.collection, ed.ID, fileName)
				if err != nil {
					p.Error = fmt.Errorf("failed to get image: %w", err)
					continue
				}
				ed.Document.Images = append(ed.Document.Images, models.Image{
					Name:     fileName,
					MIMEType: mime.TypeByExtension(ext),
					Data:     data,
				})
			}
		}
	}

	return
}

func (p *PocketbaseExporter) fileURL(collection, id, filename string) (string, error) {
	return createURL(p.baseURL, "api", "files", collection, id, filename)
}

func (p *PocketbaseExporter) download(ctx context.Context, collection, id, filename string) ([]byte, error) {
	downloadURL, err := p.fileURL(collection, id, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create download URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *PocketbaseExporter) getPDFPages(ctx context.Context, collection, id, filename string) (pages []models.Page, err error) {
	data, err := p.download(ctx, collection, id, filename)
	if err != nil {
		return nil, err
	}

	// Create temp file.
	pdfFile, err := os.CreateTemp("", "rag-import-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer pdfFile.Close()
	defer os.Remove(pdfFile.Name())
	if _, err = pdfFile.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	// Read the PDF text.
	pdf := documentloaders.NewPDF(pdfFile, int64(len(data)))
	docs, err := pdf.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load PDF: %w", err)
	}
	for i, doc := range docs {
		pages = append(pages, models.Page{Number: i + 1, Text: doc.PageContent})
	}
	return pages, nil
}

func createURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse baseURL: %w", err)
	}
	u.Path = strings.Join(pathSegments, "/")
	return u.String(), nil
}

func applyExpandedFields(data map[string]any) (changed bool) {
	for key, value := range data {
		if key == "expand" {
			expandMap, ok := value.(map[string]any)
			if !ok {
				continue
			}

			// Check parent keys for matches in expand.
			for parentKey := range data {
				if parentKey == "expand" {
					continue
				}
				if expandedValue, found := expandMap[parentKey]; found {
					data[parentKey] = expandedValue
					changed = true
				}
			}

			delete(data, "expand")
			changed = true
		} else if nestedMap, ok := value.(map[string]any); ok {
			if applyExpandedFields(nestedMap) {
				changed = true
			}
		} else if nestedSlice, ok := value.([]any); ok {
			for _, item := range nestedSlice {
				if itemMap, isMap := item.(map[string]any); isMap {
					if applyExpandedFields(itemMap) {
						changed = true
					}
				}
			}
		}
	}

	return changed
}

func recursivelyApplyExpandedFields(data map[string]any) {
	for {
		if changesMade := applyExpandedFields(data); !changesMade {
			return
		}
	}
}

func recursivelyRemoveKeys(item any, keys []string) {
	switch item := item.(type) {
	case map[string]any:
		for _, key := range keys {
			delete(item, key)
		}
		var emptyKeys []string
		for k, v := range item {
			switch v := v.(type) {
			case map[string]any:
				if len(v) == 0 {
					emptyKeys = append(emptyKeys, k)
				}
			case []any:
				if len(v) == 0 {
					emptyKeys = append(emptyKeys, k)
				}
			case string:
				if v == "" {
					emptyKeys = append(emptyKeys, k)
				}
			}
			recursivelyRemoveKeys(v, keys)
		}
		for _, key := range emptyKeys {
			delete(item, key)
		}
	case []any:
		for _, value := range item {
			recursivelyRemoveKeys(value, keys)
		}
	}
}
