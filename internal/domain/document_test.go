package domain

import "testing"

func TestDocMetaKeyPrefersStorageKey(t *testing.T) {
	m := DocMeta{Source: "a.pdf"}
	if got := m.Key(); got != "a.pdf" {
		t.Fatalf("Key: got=%q", got)
	}
	m.StorageKey = StringPtr("docs/a.pdf")
	if got := m.Key(); got != "docs/a.pdf" {
		t.Fatalf("Key: got=%q", got)
	}
	m.StorageKey = StringPtr("  ")
	if got := m.Key(); got != "a.pdf" {
		t.Fatalf("blank storage key should fall back to source, got=%q", got)
	}
}

func TestChunkIDStableAndDistinct(t *testing.T) {
	meta := DocMeta{Source: "a.pdf", Page: IntPtr(0)}
	a := ChunkID(meta, 0, "hello")
	if a != ChunkID(meta, 0, "hello") {
		t.Fatalf("chunk id not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got len=%d", len(a))
	}
	cases := []string{
		ChunkID(meta, 1, "hello"),
		ChunkID(meta, 0, "hello!"),
		ChunkID(DocMeta{Source: "a.pdf", Page: IntPtr(1)}, 0, "hello"),
		ChunkID(DocMeta{Source: "a.pdf"}, 0, "hello"),
		ChunkID(DocMeta{Source: "b.pdf", Page: IntPtr(0)}, 0, "hello"),
	}
	for i, id := range cases {
		if id == a {
			t.Fatalf("case %d collided with base id", i)
		}
	}
}

func TestChunkPayload(t *testing.T) {
	c := Chunk{ID: "x", Text: "t", Metadata: DocMeta{Source: "s.md"}}
	p := c.Payload()
	if _, ok := p["page"]; ok {
		t.Fatalf("page should be absent for markdown")
	}
	if _, ok := p["storage_key"]; ok {
		t.Fatalf("storage_key should be absent")
	}
	c.Metadata.Page = IntPtr(3)
	c.Metadata.StorageKey = StringPtr("k/s.pdf")
	p = c.Payload()
	if p["page"] != 3 || p["storage_key"] != "k/s.pdf" || p["chunk_id"] != "x" {
		t.Fatalf("unexpected payload: %#v", p)
	}
}

func TestSessionID(t *testing.T) {
	if got := SessionID("u1", "c1"); got != "user:u1:chat:c1" {
		t.Fatalf("SessionID: got=%q", got)
	}
}
