package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

const (
	DefaultK       = 4
	SnippetRunes   = 220
	UnknownSource  = "unknown"
	snippetEllipse = "…"
)

// Searcher is the slice of the indexer the retriever depends on.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]pinecone.VectorMatch, error)
}

// URLSigner attaches a download link to hits that came from object storage.
type URLSigner interface {
	SignedURL(key string) (string, error)
}

type Retriever struct {
	log      *logger.Logger
	search   Searcher
	signer   URLSigner
	defaultK int
}

// New builds a retriever. signer may be nil when object storage is not
// configured.
func New(log *logger.Logger, search Searcher, signer URLSigner, defaultK int) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &Retriever{
		log:      log.With("component", "Retriever"),
		search:   search,
		signer:   signer,
		defaultK: defaultK,
	}
}

func (r *Retriever) DefaultK() int { return r.defaultK }

// Retrieve returns at most k sources in provider order. k <= 0 uses the
// configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Source, error) {
	if k <= 0 {
		k = r.defaultK
	}
	matches, err := r.search.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]domain.Source, 0, len(matches))
	for _, m := range matches {
		out = append(out, r.toSource(ctx, m.Metadata))
	}
	return out, nil
}

func (r *Retriever) toSource(ctx context.Context, payload map[string]any) domain.Source {
	text := stringField(payload, "text")
	src := stringField(payload, "source")
	if src == "" {
		src = UnknownSource
	}
	s := domain.Source{
		Text:    text,
		Source:  src,
		Page:    displayPage(payload["page"]),
		Snippet: Snippet(text),
	}
	if key := stringField(payload, "storage_key"); key != "" && r.signer != nil {
		u, err := r.signer.SignedURL(key)
		if err != nil {
			r.log.Warn("sign source url failed", append(ctxutil.LogFields(ctx), "storage_key", key, "error", err)...)
		} else {
			s.URL = u
		}
	}
	return s
}

// Snippet is the first SnippetRunes runes of text, with an ellipsis when
// something was cut.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= SnippetRunes {
		return text
	}
	r := []rune(text)
	return string(r[:SnippetRunes]) + snippetEllipse
}

func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}

// displayPage converts a stored 0-based page into the 1-based number shown
// to users. Anything that is not a whole number yields nil.
func displayPage(v any) *int {
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return nil
		}
		n = int64(t)
	case float32:
		if float64(t) != math.Trunc(float64(t)) {
			return nil
		}
		n = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	if n < 0 {
		return nil
	}
	return domain.IntPtr(int(n) + 1)
}
