package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/ragrouter/models"
	"github.com/google/go-cmp/cmp"
)

func TestClient(t *testing.T) {
	var method, target, authorization string
	var body map[string]any
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, target, authorization = r.Method, r.URL.String(), r.Header.Get("Authorization")
		body = nil
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/documents":
			_, _ = w.Write([]byte(`{"url": "/a b"}`))
		case "/query":
			if body["stream"] == true {
				_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
				return
			}
			_, _ = w.Write([]byte(`{"answer": "42", "no-context": true}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer s.Close()
	c := New(s.URL, "key")
	ctx := context.Background()

	t.Run("documents can be deleted by URL", func(t *testing.T) {
		resp, err := c.DocumentsDelete(ctx, "/a b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if method != http.MethodDelete || target != "/documents?url=%2Fa+b" || authorization != "key" {
			t.Errorf("unexpected request: %s %s (%s)", method, target, authorization)
		}
		if resp.URL != "/a b" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})
	t.Run("queries can return JSON", func(t *testing.T) {
		resp, err := c.QueryPost(ctx, models.QueryPostRequest{Text: "q", Stream: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(models.QueryPostResponse{Answer: "42", NoContext: true}, resp); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("queries can be streamed", func(t *testing.T) {
		var sb strings.Builder
		err := c.QueryStream(ctx, models.QueryPostRequest{Text: "q"}, func(ctx context.Context, chunk []byte) error {
			sb.Write(chunk)
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sb.Len() != 2000 {
			t.Errorf("expected 2000 bytes, got %d", sb.Len())
		}
	})
	t.Run("unsuccessful status codes are errors", func(t *testing.T) {
		if _, err := c.RoutePost(ctx, models.RoutePostRequest{Text: "q"}); err == nil {
			t.Error("expected error")
		}
	})
}
