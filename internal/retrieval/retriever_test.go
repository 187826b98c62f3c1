package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

type stubSearcher struct {
	matches []pinecone.VectorMatch
	err     error
	gotK    int
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int) ([]pinecone.VectorMatch, error) {
	s.gotK = k
	return s.matches, s.err
}

type stubSigner struct{ fail bool }

func (s stubSigner) SignedURL(key string) (string, error) {
	if s.fail {
		return "", errors.New("no credentials")
	}
	return "https://signed.example/" + key, nil
}

func TestRetrieveMapsPayloads(t *testing.T) {
	long := strings.Repeat("é", 300)
	s := &stubSearcher{matches: []pinecone.VectorMatch{
		{ID: "1", Metadata: map[string]any{"text": "short text", "source": "a.pdf", "page": float64(0), "storage_key": "docs/a.pdf"}},
		{ID: "2", Metadata: map[string]any{"text": long, "source": "b.md"}},
		{ID: "3", Metadata: map[string]any{"text": "x", "page": "not-a-number"}},
	}}
	r := New(logger.NewNop(), s, stubSigner{}, 4)

	got, err := r.Retrieve(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if s.gotK != 4 {
		t.Fatalf("k<=0 should fall back to default, got %d", s.gotK)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(got))
	}
	if got[0].Page == nil || *got[0].Page != 1 {
		t.Fatalf("page 0 should display as 1, got %v", got[0].Page)
	}
	if got[0].URL != "https://signed.example/docs/a.pdf" {
		t.Fatalf("unexpected url: %q", got[0].URL)
	}
	if got[0].Snippet != "short text" {
		t.Fatalf("short snippet should be untouched: %q", got[0].Snippet)
	}
	if got[1].Page != nil || got[1].URL != "" {
		t.Fatalf("markdown hit should have no page or url: %+v", got[1])
	}
	if want := strings.Repeat("é", SnippetRunes) + "…"; got[1].Snippet != want {
		t.Fatalf("snippet not truncated on runes: len=%d", len([]rune(got[1].Snippet)))
	}
	if got[1].Text != long {
		t.Fatalf("text must stay complete")
	}
	if got[2].Source != UnknownSource || got[2].Page != nil {
		t.Fatalf("unexpected fallback source: %+v", got[2])
	}
}

func TestRetrieveCapsAtK(t *testing.T) {
	s := &stubSearcher{matches: []pinecone.VectorMatch{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	got, err := New(logger.NewNop(), s, nil, 4).Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 || s.gotK != 2 {
		t.Fatalf("expected 2 results with k=2, got len=%d k=%d", len(got), s.gotK)
	}
}

func TestRetrieveSignFailureLeavesURLEmpty(t *testing.T) {
	s := &stubSearcher{matches: []pinecone.VectorMatch{{ID: "1", Metadata: map[string]any{"source": "a.pdf", "storage_key": "k"}}}}
	got, err := New(logger.NewNop(), s, stubSigner{fail: true}, 4).Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got[0].URL != "" {
		t.Fatalf("expected empty url, got %q", got[0].URL)
	}
}

func TestRetrievePropagatesUpstream(t *testing.T) {
	s := &stubSearcher{err: apierr.Upstream("vector query", errors.New("503"))}
	_, err := New(logger.NewNop(), s, nil, 4).Retrieve(context.Background(), "q", 1)
	if !errors.Is(err, apierr.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestDisplayPage(t *testing.T) {
	cases := []struct {
		in      any
		want    int
		wantNil bool
	}{
		{in: 0, want: 1},
		{in: int64(4), want: 5},
		{in: float64(2), want: 3},
		{in: "7", want: 8},
		{in: 1.5, wantNil: true},
		{in: -1, wantNil: true},
		{in: nil, wantNil: true},
		{in: true, wantNil: true},
	}
	for _, tc := range cases {
		got := displayPage(tc.in)
		if tc.wantNil {
			if got != nil {
				t.Fatalf("displayPage(%v): expected nil, got %d", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Fatalf("displayPage(%v): got %v want %d", tc.in, got, tc.want)
		}
	}
}
