package delete

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/a-h/ragrouter/auth"
	"github.com/a-h/ragrouter/models"
	"github.com/a-h/respond"
)

type Deleter interface {
	Delete(ctx context.Context, partition, url string) error
}

func New(log *slog.Logger, deleter Deleter) Handler {
	return Handler{
		log:     log,
		deleter: deleter,
	}
}

type Handler struct {
	log     *slog.Logger
	deleter Deleter
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partition, ok := auth.GetPartition(r)
	if !ok {
		http.Error(w, "authentication not provided", http.StatusUnauthorized)
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		respond.WithError(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := h.deleter.Delete(r.Context(), partition, url); err != nil {
		h.log.Error("document delete failed", slog.String("url", url), slog.Any("error", err))
		respond.WithError(w, "document delete failed", http.StatusInternalServerError)
		return
	}

	respond.WithJSON(w, models.DocumentsDeleteResponse{URL: url}, http.StatusOK)
}
