package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

func newEmulatorBucket(t *testing.T, h http.Handler) BucketService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	bs, err := NewBucketServiceWithConfig(logger.NewNop(), ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: srv.URL,
		Bucket:       "docs",
		Prefix:       "kb/",
	})
	if err != nil {
		t.Fatalf("NewBucketServiceWithConfig: %v", err)
	}
	return bs
}

func TestEmulatorListKeysFollowsPages(t *testing.T) {
	bs := newEmulatorBucket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/b/docs/o" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if r.URL.Query().Get("prefix") != "kb/" {
			t.Fatalf("prefix: got=%q", r.URL.Query().Get("prefix"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pageToken") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items":         []map[string]any{{"name": "kb/a.md"}, {"name": "kb/"}},
				"nextPageToken": "p2",
			})
		case "p2":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"name": "kb/b.pdf"}},
			})
		default:
			t.Fatalf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))

	keys, err := bs.ListKeys(context.Background(), bs.Prefix())
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if strings.Join(keys, ",") != "kb/a.md,kb/b.pdf" {
		t.Fatalf("keys: got=%v", keys)
	}
}

func TestEmulatorDownloadFile(t *testing.T) {
	bs := newEmulatorBucket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Fatalf("alt: got=%q", r.URL.Query().Get("alt"))
		}
		if r.URL.EscapedPath() != "/storage/v1/b/docs/o/kb%2Fa.md" {
			t.Fatalf("path: got=%q", r.URL.EscapedPath())
		}
		_, _ = io.WriteString(w, "# hello")
	}))

	rc, err := bs.DownloadFile(context.Background(), "kb/a.md")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "# hello" {
		t.Fatalf("body: got=%q", body)
	}
}

func TestEmulatorDownloadMissingIsUpstream(t *testing.T) {
	bs := newEmulatorBucket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	_, err := bs.DownloadFile(context.Background(), "kb/missing.md")
	if !errors.Is(err, apierr.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got=%v", err)
	}
}

func TestEmulatorSignedURL(t *testing.T) {
	bs := newEmulatorBucket(t, http.NotFoundHandler())
	u, err := bs.SignedURL("kb/a b.pdf")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasSuffix(u, "/storage/v1/b/docs/o/kb%2Fa%20b.pdf?alt=media") {
		t.Fatalf("url: got=%q", u)
	}
	if _, err := bs.SignedURL("  "); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestNewBucketServiceRequiresBucket(t *testing.T) {
	_, err := NewBucketServiceWithConfig(logger.NewNop(), ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorMissingBucket {
		t.Fatalf("expected missing bucket error, got=%v", err)
	}
}
