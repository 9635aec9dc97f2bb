package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/ragrouter/client"
	"github.com/a-h/ragrouter/models"
	"github.com/tmc/langchaingo/documentloaders"
)

type ImportCommand struct {
	Files      ImportFilesCommand      `cmd:"files" help:"Import local PDF, Markdown, text, image and CSV files."`
	Pocketbase ImportPocketbaseCommand `cmd:"pocketbase" help:"Import the records of a Pocketbase collection."`
}

type ImportFilesCommand struct {
	RAGServerURL    string   `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string   `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	Paths           []string `arg:"" help:"The files to import." type:"existingfile"`
	DryRun          bool     `help:"Do not actually import the documents." env:"DRY_RUN" default:"false"`
	LogLevel        string   `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ImportFilesCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)

	for _, path := range c.Paths {
		doc, err := loadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to load %q: %w", path, err)
		}
		log.Info("importing document", slog.String("url", doc.URL), slog.Int("pages", len(doc.Pages)), slog.Int("images", len(doc.Images)), slog.Int("tables", len(doc.Tables)))
		if c.DryRun {
			log.Info("skipping document import in dry run mode", slog.String("url", doc.URL))
			continue
		}
		resp, err := rsc.DocumentsPost(ctx, models.DocumentsPostRequest{
			Document: doc,
		})
		if err != nil {
			return fmt.Errorf("failed to post document: %w", err)
		}
		log.Info("document imported", slog.String("url", doc.URL), slog.Int("text", resp.Text), slog.Int("images", resp.Images), slog.Int("tables", resp.Tables))
	}
	return nil
}

// loadFile reads a local file into a document. The document's URL is the
// slash separated path.
func loadFile(ctx context.Context, path string) (doc models.Document, err error) {
	doc.URL = filepath.ToSlash(path)
	doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return doc, err
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		stat, err := f.Stat()
		if err != nil {
			return doc, err
		}
		pages, err := documentloaders.NewPDF(f, stat.Size()).Load(ctx)
		if err != nil {
			return doc, fmt.Errorf("failed to load PDF: %w", err)
		}
		for i, page := range pages {
			doc.Pages = append(doc.Pages, models.Page{Number: i + 1, Text: page.PageContent})
		}
	case ".md", ".markdown", ".txt":
		texts, err := documentloaders.NewText(f).Load(ctx)
		if err != nil {
			return doc, fmt.Errorf("failed to load text: %w", err)
		}
		for _, t := range texts {
			doc.Pages = append(doc.Pages, models.Page{Text: t.PageContent})
		}
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, err
		}
		doc.Images = append(doc.Images, models.Image{
			Name:     filepath.Base(path),
			MIMEType: mime.TypeByExtension(ext),
			Data:     data,
		})
	case ".csv":
		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			return doc, fmt.Errorf("failed to read CSV: %w", err)
		}
		doc.Tables = append(doc.Tables, models.Table{Rows: rows})
	default:
		return doc, fmt.Errorf("unsupported file type %q", ext)
	}
	return doc, nil
}
