package main

import (
	"context"
	"fmt"
	"os"

	"github.com/a-h/ragrouter/client"
	"github.com/a-h/ragrouter/models"
)

type QueryCommand struct {
	RAGServerURL    string   `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string   `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	Text            string   `arg:"" help:"The query to send."`
	Modalities      []string `help:"The content types to search (text, image, table). If not set, the router decides." default:""`
	JSON            bool     `help:"Print the full JSON response, including context and citations." default:"false"`
}

func (c QueryCommand) Run(ctx context.Context) (err error) {
	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)
	req := models.QueryPostRequest{
		Text:       c.Text,
		Modalities: nonEmpty(c.Modalities),
	}
	if c.JSON {
		resp, err := rsc.QueryPost(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to query: %w", err)
		}
		return writeJSON(resp, true)
	}
	f := func(ctx context.Context, chunk []byte) error {
		_, err := os.Stdout.Write(chunk)
		return err
	}
	if err = rsc.QueryStream(ctx, req, f); err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	fmt.Println()
	return nil
}
