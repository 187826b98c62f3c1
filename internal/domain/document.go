package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// DocMeta is carried from a loaded document onto each of its chunks and
// into the vector payload.
type DocMeta struct {
	Source     string  `json:"source"`
	Page       *int    `json:"page,omitempty"` // 0-based; nil for txt/md
	StorageKey *string `json:"storage_key,omitempty"`
}

// Key identifies the origin of a document: the object key when it came
// from a bucket, otherwise its source path.
func (m DocMeta) Key() string {
	if m.StorageKey != nil && strings.TrimSpace(*m.StorageKey) != "" {
		return *m.StorageKey
	}
	return m.Source
}

func (m DocMeta) pageLabel() string {
	if m.Page == nil {
		return "-"
	}
	return strconv.Itoa(*m.Page)
}

type Document struct {
	Text     string
	Metadata DocMeta
}

type Chunk struct {
	ID       string
	Text     string
	Start    int // rune offset into the parent document
	Metadata DocMeta
}

// ChunkID is stable across runs for identical input, so re-ingesting an
// unchanged document overwrites the same points.
func ChunkID(meta DocMeta, ordinal int, text string) string {
	textSum := sha256.Sum256([]byte(text))
	h := sha256.New()
	h.Write([]byte(meta.Key()))
	h.Write([]byte("|"))
	h.Write([]byte(meta.pageLabel()))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(ordinal)))
	h.Write([]byte("|"))
	h.Write([]byte(hex.EncodeToString(textSum[:])))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash is the sha256 of a chunk's text, hex encoded.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Payload is what gets stored next to each vector.
func (c Chunk) Payload() map[string]any {
	out := map[string]any{
		"text":     c.Text,
		"source":   c.Metadata.Source,
		"chunk_id": c.ID,
	}
	if c.Metadata.Page != nil {
		out["page"] = *c.Metadata.Page
	}
	if c.Metadata.StorageKey != nil {
		out["storage_key"] = *c.Metadata.StorageKey
	}
	return out
}

// Source is a single retrieval hit as shown to callers.
type Source struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	Page    *int   `json:"page"` // 1-based
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
}

func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
