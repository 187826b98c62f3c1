package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

func newTestStore(t *testing.T, h http.HandlerFunc) VectorStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	pc, err := newClient(logger.NewNop(), ClientConfig{APIKey: "pc-key", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	s, err := NewVectorStore(logger.NewNop(), pc, Config{IndexHost: srv.URL, NamespacePrefix: "docs"})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	return s
}

func TestUpsertSendsNamespacedVectors(t *testing.T) {
	var got UpsertRequest
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if r.Header.Get("Api-Key") != "pc-key" {
			t.Fatalf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	})

	err := s.Upsert(context.Background(), "kb", []Vector{{ID: "c1", Values: []float32{1, 0}, Metadata: map[string]any{"source": "a.md"}}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.Namespace != "docs:kb" || len(got.Vectors) != 1 || got.Vectors[0].ID != "c1" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestQueryMatchesReturnsMetadata(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.IncludeMetadata || req.TopK != 2 {
			t.Fatalf("unexpected query: %+v", req)
		}
		_, _ = w.Write([]byte(`{"matches":[{"id":"c1","score":0.9,"metadata":{"source":"a.md","page":0}},{"id":"","score":0.1}]}`))
	})

	matches, err := s.QueryMatches(context.Background(), "kb", []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata["source"] != "a.md" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestDeleteIDsAndUpstreamErrors(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/vectors/delete" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if err := s.DeleteIDs(context.Background(), "kb", nil); err != nil {
		t.Fatalf("empty delete should be a no-op: %v", err)
	}
	if calls != 0 {
		t.Fatalf("empty delete should not call pinecone")
	}
	err := s.DeleteIDs(context.Background(), "kb", []string{"c1"})
	if !errors.Is(err, apierr.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got=%v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(logger.NewNop(), ClientConfig{})
	if !errors.Is(err, apierr.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got=%v", err)
	}
}
