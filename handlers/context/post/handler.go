package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/ragrouter/auth"
	"github.com/a-h/ragrouter/handlers"
	"github.com/a-h/ragrouter/models"
	"github.com/a-h/ragrouter/pipeline"
	"github.com/a-h/respond"
)

type Retriever interface {
	Retrieve(ctx context.Context, q pipeline.Query) (pipeline.Retrieval, error)
}

func New(log *slog.Logger, retriever Retriever) Handler {
	return Handler{
		log:       log,
		retriever: retriever,
	}
}

type Handler struct {
	log       *slog.Logger
	retriever Retriever
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partition, ok := auth.GetPartition(r)
	if !ok {
		http.Error(w, "authentication not provided", http.StatusUnauthorized)
		return
	}

	var req models.ContextPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}
	modalities, err := handlers.Modalities(req.Modalities)
	if err != nil {
		respond.WithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	retrieval, err := h.retriever.Retrieve(r.Context(), pipeline.Query{
		Partition:  partition,
		Text:       req.Text,
		History:    handlers.History(req.History),
		Modalities: modalities,
	})
	if errors.Is(err, pipeline.ErrEmptyQuery) {
		respond.WithError(w, "text is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("failed to retrieve context", slog.Any("error", err))
		respond.WithError(w, "failed to retrieve context", http.StatusInternalServerError)
		return
	}

	respond.WithJSON(w, models.ContextPostResponse{
		Modalities: handlers.DecisionNames(retrieval.Decision),
		Results:    handlers.ContextItems(retrieval.Context),
	}, http.StatusOK)
}
