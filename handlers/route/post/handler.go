package post

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/ragrouter/auth"
	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/handlers"
	"github.com/a-h/ragrouter/models"
	"github.com/a-h/respond"
)

type Router interface {
	Route(ctx context.Context, query string, history []content.Message) content.Decision
}

func New(log *slog.Logger, router Router) Handler {
	return Handler{
		log:    log,
		router: router,
	}
}

type Handler struct {
	log    *slog.Logger
	router Router
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetPartition(r); !ok {
		http.Error(w, "authentication not provided", http.StatusUnauthorized)
		return
	}

	var req models.RoutePostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.WithError(w, "text is required", http.StatusBadRequest)
		return
	}

	d := h.router.Route(r.Context(), req.Text, handlers.History(req.History))
	respond.WithJSON(w, models.RoutePostResponse{Modalities: handlers.DecisionNames(d)}, http.StatusOK)
}
