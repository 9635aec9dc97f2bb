package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Serve   ServeCommand   `cmd:"serve" help:"Start the RAG router server."`
	Import  ImportCommand  `cmd:"import" help:"Import documents into a RAG router server."`
	Delete  DeleteCommand  `cmd:"delete" help:"Delete a document from a RAG router server."`
	Route   RouteCommand   `cmd:"route" help:"Show which content types a query would search."`
	Context ContextCommand `cmd:"context" help:"Get the merged context for a piece of text."`
	Query   QueryCommand   `cmd:"query" help:"Query the knowledge base and LLM."`
	Chat    ChatCommand    `cmd:"chat" help:"Chat with the knowledge base."`
	Version VersionCommand `cmd:"version" help:"Print the version of the RAG router."`
}

func main() {
	var cli CLI
	ctx := context.Background()
	kctx := kong.Parse(&cli, kong.UsageOnError(), kong.BindTo(ctx, (*context.Context)(nil)))
	if err := kctx.Run(); err != nil {
		log := getLogger("error")
		log.Error("error", slog.Any("error", err))
		os.Exit(1)
	}
}

func getLogger(level string) *slog.Logger {
	ll := slog.LevelInfo
	switch level {
	case "debug":
		ll = slog.LevelDebug
	case "info":
		ll = slog.LevelInfo
	case "warn":
		ll = slog.LevelWarn
	case "error":
		ll = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: ll,
	}))
}
