package ingestion

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 150
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

type ChunkerConfig struct {
	Size    int
	Overlap int
}

// Chunker splits documents recursively on paragraph, line, word and finally
// rune boundaries. Separators stay attached to the piece before them, so the
// chunks of a document, with their overlap removed, concatenate back to the
// original text.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", apierr.ErrConfiguration, cfg.Size)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", apierr.ErrConfiguration, cfg.Size, cfg.Overlap)
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap, separators: defaultSeparators}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. Blank documents produce nothing.
func (c *Chunker) Split(docs []domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for _, d := range docs {
		out = append(out, c.SplitDocument(d)...)
	}
	return out
}

func (c *Chunker) SplitDocument(doc domain.Document) []domain.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	pieces := c.splitPieces(doc.Text, c.separators)
	windows := c.merge(pieces)

	out := make([]domain.Chunk, 0, len(windows))
	for i, w := range windows {
		out = append(out, domain.Chunk{
			ID:       domain.ChunkID(doc.Metadata, i, w.text),
			Text:     w.text,
			Start:    w.start,
			Metadata: doc.Metadata,
		})
	}
	return out
}

// splitPieces breaks text into pieces no longer than the chunk size whose
// concatenation equals text.
func (c *Chunker) splitPieces(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}
	}

	sep := ""
	rest := []string{}
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return splitRunes(text, c.size)
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= c.size {
			out = append(out, part)
			continue
		}
		out = append(out, c.splitPieces(part, rest)...)
	}
	return out
}

func splitRunes(text string, n int) []string {
	var out []string
	for text != "" {
		cut := 0
		for i := 0; i < n && cut < len(text); i++ {
			_, w := utf8.DecodeRuneInString(text[cut:])
			cut += w
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

type window struct {
	text  string
	start int
}

type piece struct {
	text  string
	runes int
	start int
}

// merge packs pieces greedily into windows of at most size runes. When a
// window is emitted, its trailing pieces totalling at most overlap runes
// seed the next one.
func (c *Chunker) merge(parts []string) []window {
	var (
		out    []window
		cur    []piece
		total  int
		offset int
	)
	emit := func() {
		if len(cur) == 0 {
			return
		}
		var b strings.Builder
		for _, p := range cur {
			b.WriteString(p.text)
		}
		out = append(out, window{text: b.String(), start: cur[0].start})
	}

	for _, s := range parts {
		p := piece{text: s, runes: utf8.RuneCountInString(s), start: offset}
		offset += p.runes

		if total+p.runes > c.size && len(cur) > 0 {
			emit()
			for len(cur) > 0 && (total > c.overlap || total+p.runes > c.size) {
				total -= cur[0].runes
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += p.runes
	}
	emit()
	return out
}
