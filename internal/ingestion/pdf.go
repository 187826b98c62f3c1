package ingestion

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/yungbote/docchat-backend/internal/domain"
)

// pdfPages returns one document per page; Page is 0-based.
func pdfPages(data []byte, meta domain.DocMeta) ([]domain.Document, error) {
	if !isPDF(data) {
		return nil, fmt.Errorf("%s: missing %%PDF header", meta.Source)
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: pdf reader: %w", meta.Source, err)
	}
	n := r.NumPage()
	out := make([]domain.Document, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		text := ""
		if !p.V.IsNull() {
			text, err = p.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("%s: page %d: %w", meta.Source, i, err)
			}
		}
		m := meta
		m.Page = domain.IntPtr(i - 1)
		out = append(out, domain.Document{Text: strings.ToValidUTF8(text, replacementChar), Metadata: m})
	}
	return out, nil
}

func readPDF(r io.Reader, meta domain.DocMeta) ([]domain.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read: %w", meta.Source, err)
	}
	return pdfPages(data, meta)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}
