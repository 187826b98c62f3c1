package mock

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/docchat-backend/internal/inference/engine"
)

func TestEmbedDeterministic(t *testing.T) {
	e := New(16)
	a, err := e.Embed(context.Background(), "m", []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := e.Embed(context.Background(), "m", []string{"hello"})
	if len(a) != 2 || len(a[0]) != 16 {
		t.Fatalf("shape: got=%dx%d", len(a), len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
}

func TestGenerateAndStream(t *testing.T) {
	e := New(0)
	msgs := []engine.Message{{Role: "system", Content: "be nice"}, {Role: "user", Content: "context\nQuestion: what is go"}}
	c, err := e.GenerateText(context.Background(), "m", msgs, engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if c.Text() != "mock: Question: what is go" {
		t.Fatalf("Text: got=%q", c.Text())
	}

	var sb strings.Builder
	full, err := e.StreamText(context.Background(), "m", msgs, engine.GenerateOptions{}, func(d string) { sb.WriteString(d) })
	if err != nil {
		t.Fatalf("StreamText: %v", err)
	}
	if full != c.Text() || sb.String() != full {
		t.Fatalf("stream mismatch: full=%q deltas=%q", full, sb.String())
	}
}
