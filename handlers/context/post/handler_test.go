package post

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/ragrouter/auth"
	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/models"
	"github.com/a-h/ragrouter/pipeline"
	"github.com/google/go-cmp/cmp"
)

type retriever struct {
	query pipeline.Query
}

func (r *retriever) Retrieve(ctx context.Context, q pipeline.Query) (pipeline.Retrieval, error) {
	r.query = q
	if strings.TrimSpace(q.Text) == "" {
		return pipeline.Retrieval{}, pipeline.ErrEmptyQuery
	}
	return pipeline.Retrieval{Decision: content.NewDecision(q.Modalities...)}, nil
}

func TestHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expected       models.ContextPostResponse
	}{
		{
			name:           "an empty index returns an empty list",
			body:           `{"text": "revenue", "modalities": ["table", "text"]}`,
			expectedStatus: http.StatusOK,
			expected:       models.ContextPostResponse{Modalities: []string{"text", "table"}, Results: []models.ContextItem{}},
		},
		{
			name:           "empty queries are rejected",
			body:           `{"text": ""}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown modalities are rejected",
			body:           `{"text": "q", "modalities": ["video"]}`,
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &retriever{}
			r := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(tt.body))
			r.Header.Set("Authorization", "key")
			w := httptest.NewRecorder()
			auth.New(map[string]string{"key": "kb"}, New(log, rt)).ServeHTTP(w, r)
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var actual models.ContextPostResponse
			if err := json.Unmarshal(w.Body.Bytes(), &actual); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
			if rt.query.Partition != "kb" {
				t.Errorf("expected partition kb, got %q", rt.query.Partition)
			}
		})
	}
}
