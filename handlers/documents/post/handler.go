package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/ragrouter/auth"
	"github.com/a-h/ragrouter/ingest"
	"github.com/a-h/ragrouter/models"
	"github.com/a-h/respond"
)

type Ingester interface {
	Ingest(ctx context.Context, partition string, doc ingest.Document) (ingest.Result, error)
}

func New(log *slog.Logger, ingester Ingester) Handler {
	return Handler{
		log:      log,
		ingester: ingester,
	}
}

type Handler struct {
	log      *slog.Logger
	ingester Ingester
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partition, ok := auth.GetPartition(r)
	if !ok {
		http.Error(w, "authentication not provided", http.StatusUnauthorized)
		return
	}

	var req models.DocumentsPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Document.URL) == "" {
		respond.WithError(w, "document URL is required", http.StatusBadRequest)
		return
	}

	result, err := h.ingester.Ingest(r.Context(), partition, NewDocument(req.Document))
	if errors.Is(err, ingest.ErrEmptyDocument) {
		respond.WithError(w, "document has no content", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("document ingest failed", slog.String("url", req.Document.URL), slog.Any("error", err))
		respond.WithError(w, "document ingest failed", http.StatusInternalServerError)
		return
	}

	respond.WithJSON(w, models.DocumentsPostResponse{
		Text:   result.Text,
		Images: result.Images,
		Tables: result.Tables,
	}, http.StatusOK)
}

func NewDocument(d models.Document) (doc ingest.Document) {
	doc.URL = d.URL
	doc.Title = d.Title
	if strings.TrimSpace(d.Text) != "" {
		doc.Pages = append(doc.Pages, ingest.Page{Text: d.Text})
	}
	for _, p := range d.Pages {
		doc.Pages = append(doc.Pages, ingest.Page{Number: p.Number, Text: p.Text})
	}
	for _, img := range d.Images {
		doc.Images = append(doc.Images, ingest.Image{Name: img.Name, Page: img.Page, MIMEType: img.MIMEType, Data: img.Data})
	}
	for _, t := range d.Tables {
		doc.Tables = append(doc.Tables, ingest.Table{Page: t.Page, Rows: t.Rows})
	}
	return doc
}
