package post

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/ragrouter/auth"
	"github.com/a-h/ragrouter/generate"
	"github.com/a-h/ragrouter/handlers"
	"github.com/a-h/ragrouter/models"
	"github.com/a-h/ragrouter/pipeline"
	"github.com/a-h/respond"
)

type Answerer interface {
	Answer(ctx context.Context, q pipeline.Query, stream func(ctx context.Context, chunk []byte) error) (pipeline.Result, error)
}

func New(log *slog.Logger, answerer Answerer) Handler {
	return Handler{
		log:      log,
		answerer: answerer,
	}
}

type Handler struct {
	log      *slog.Logger
	answerer Answerer
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partition, ok := auth.GetPartition(r)
	if !ok {
		http.Error(w, "authentication not provided", http.StatusUnauthorized)
		return
	}

	var req models.QueryPostRequest
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
	q := pipeline.Query{
		Partition:  partition,
		Text:       req.Text,
		History:    handlers.History(req.History),
		Modalities: modalities,
	}

	var streamed bool
	var stream func(ctx context.Context, chunk []byte) error
	if req.Stream {
		stream = func(ctx context.Context, chunk []byte) error {
			select {
			case <-ctx.Done():
				return nil
			default:
				streamed = true
				if _, err := w.Write(chunk); err != nil {
					return err
				}
				if flusher, canFlush := w.(http.Flusher); canFlush {
					flusher.Flush()
				}
				return nil
			}
		}
	}

	result, err := h.answerer.Answer(r.Context(), q, stream)
	if err != nil {
		h.log.Error("failed to answer query", slog.String("partition", partition), slog.Any("error", err))
		if streamed {
			// The status has already been sent.
			return
		}
		switch {
		case errors.Is(err, pipeline.ErrEmptyQuery):
			respond.WithError(w, "text is required", http.StatusBadRequest)
		case errors.Is(err, generate.ErrGeneration):
			respond.WithError(w, "failed to generate answer", http.StatusBadGateway)
		default:
			respond.WithError(w, "failed to answer query", http.StatusInternalServerError)
		}
		return
	}

	if req.Stream {
		if !streamed {
			io.WriteString(w, result.Answer.Text)
		} else if len(result.Answer.ImageRefs) > 0 {
			io.WriteString(w, "\n\n"+strings.Join(result.Answer.ImageRefs, "\n"))
		}
		writeSources(w, result.Answer)
		return
	}

	respond.WithJSON(w, models.QueryPostResponse{
		Answer:     result.Answer.Text,
		Citations:  handlers.Citations(result.Answer.Citations),
		Modalities: handlers.DecisionNames(result.Decision),
		NoContext:  result.Answer.NoContext,
		Context:    handlers.ContextItems(result.Context),
	}, http.StatusOK)
}

// writeSources follows a streamed answer with the documents it cites.
func writeSources(w io.Writer, answer generate.Answer) {
	if answer.NoContext || len(answer.Citations) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString("\n\nSources:\n")
	for i, c := range answer.Citations {
		fmt.Fprintf(&sb, "[%d] %s (%s, %s) - %s\n", i+1, c.DocumentTitle, c.Location, c.Modality, c.DocumentURL)
	}
	io.WriteString(w, sb.String())
}
