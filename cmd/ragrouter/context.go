package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/a-h/ragrouter/client"
	"github.com/a-h/ragrouter/models"
)

type ContextCommand struct {
	RAGServerURL    string   `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string   `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	Text            string   `help:"The text to send." required:""`
	Modalities      []string `help:"The content types to search (text, image, table). If not set, the router decides." default:""`
	Pretty          bool     `help:"Pretty print the JSON output." default:"true"`
}

func (c ContextCommand) Run(ctx context.Context) (err error) {
	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)
	resp, err := rsc.ContextPost(ctx, models.ContextPostRequest{
		Text:       c.Text,
		Modalities: nonEmpty(c.Modalities),
	})
	if err != nil {
		return fmt.Errorf("failed to get context: %w", err)
	}
	return writeJSON(resp, c.Pretty)
}

type RouteCommand struct {
	RAGServerURL    string `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	Text            string `help:"The query to classify." required:""`
	Pretty          bool   `help:"Pretty print the JSON output." default:"true"`
}

func (c RouteCommand) Run(ctx context.Context) (err error) {
	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)
	resp, err := rsc.RoutePost(ctx, models.RoutePostRequest{
		Text: c.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to route query: %w", err)
	}
	return writeJSON(resp, c.Pretty)
}

type DeleteCommand struct {
	RAGServerURL    string `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	URL             string `help:"The URL of the document to delete." required:""`
}

func (c DeleteCommand) Run(ctx context.Context) (err error) {
	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)
	if _, err = rsc.DocumentsDelete(ctx, c.URL); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func writeJSON(v any, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// nonEmpty removes the empty value that kong gives a slice flag with an
// empty default.
func nonEmpty(values []string) (filtered []string) {
	for _, v := range values {
		if v != "" {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
