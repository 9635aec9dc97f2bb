package delete

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/ragrouter/auth"
)

type deleter struct {
	deleted []string
	err     error
}

func (d *deleter) Delete(ctx context.Context, partition, url string) error {
	d.deleted = append(d.deleted, partition+":"+url)
	return d.err
}

func TestHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name           string
		target         string
		err            error
		expectedStatus int
		expectedDelete string
	}{
		{name: "deletes from the key's partition", target: "/documents?url=%2Freport", expectedStatus: http.StatusOK, expectedDelete: "kb:/report"},
		{name: "url is required", target: "/documents", expectedStatus: http.StatusBadRequest},
		{name: "store failures are reported", target: "/documents?url=x", err: errors.New("unavailable"), expectedStatus: http.StatusInternalServerError, expectedDelete: "kb:x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &deleter{err: tt.err}
			r := httptest.NewRequest(http.MethodDelete, tt.target, nil)
			r.Header.Set("Authorization", "key")
			w := httptest.NewRecorder()
			auth.New(map[string]string{"key": "kb"}, New(log, d)).ServeHTTP(w, r)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var actual string
			if len(d.deleted) > 0 {
				actual = d.deleted[0]
			}
			if actual != tt.expectedDelete {
				t.Errorf("expected delete %q, got %q", tt.expectedDelete, actual)
			}
		})
	}
}
