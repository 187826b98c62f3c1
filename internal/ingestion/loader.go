package ingestion

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/gcp"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

const replacementChar = "\uFFFD"

// Loader produces the documents of one ingestion source.
type Loader interface {
	Load(ctx context.Context) ([]domain.Document, error)
}

func supportedExt(name string) (string, bool) {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".txt", ".md", ".pdf":
		return ext, true
	}
	return ext, false
}

func decode(r io.Reader, ext string, meta domain.DocMeta) ([]domain.Document, error) {
	if ext == ".pdf" {
		return readPDF(r, meta)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read: %w", meta.Source, err)
	}
	return []domain.Document{{Text: strings.ToValidUTF8(string(b), replacementChar), Metadata: meta}}, nil
}

type localLoader struct {
	log  *logger.Logger
	root string
}

// NewLocalLoader walks root recursively. Sources are root-relative,
// slash-separated paths.
func NewLocalLoader(log *logger.Logger, root string) Loader {
	return &localLoader{log: log.With("loader", "local"), root: root}
}

func (l *localLoader) Load(ctx context.Context) ([]domain.Document, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("docs dir %q: %w", l.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs dir %q is not a directory", l.root)
	}

	var out []domain.Document
	err = filepath.WalkDir(l.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext, ok := supportedExt(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		meta := domain.DocMeta{Source: filepath.ToSlash(rel)}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		docs, err := decode(f, ext, meta)
		if err != nil {
			return err
		}
		l.log.Debug("loaded file", "source", meta.Source, "documents", len(docs))
		out = append(out, docs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type bucketLoader struct {
	log         *logger.Logger
	bucket      gcp.BucketService
	prefix      string
	concurrency int
}

// NewBucketLoader downloads every supported object under prefix. Sources
// are object base names; StorageKey carries the full key.
func NewBucketLoader(log *logger.Logger, bucket gcp.BucketService, prefix string, concurrency int) Loader {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &bucketLoader{log: log.With("loader", "bucket"), bucket: bucket, prefix: prefix, concurrency: concurrency}
}

func (l *bucketLoader) Load(ctx context.Context) ([]domain.Document, error) {
	if l.bucket == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", apierr.ErrConfiguration)
	}
	keys, err := l.bucket.ListKeys(ctx, l.prefix)
	if err != nil {
		return nil, err
	}
	var wanted []string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") {
			continue
		}
		if _, ok := supportedExt(k); ok {
			wanted = append(wanted, k)
		}
	}
	sort.Strings(wanted)

	perKey := make([][]domain.Document, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, key := range wanted {
		i, key := i, key
		g.Go(func() error {
			docs, err := l.loadKey(gctx, key)
			if err != nil {
				return err
			}
			perKey[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Document
	for _, docs := range perKey {
		out = append(out, docs...)
	}
	l.log.Info("loaded bucket objects", "bucket", l.bucket.Bucket(), "prefix", l.prefix, "objects", len(wanted), "documents", len(out))
	return out, nil
}

func (l *bucketLoader) loadKey(ctx context.Context, key string) ([]domain.Document, error) {
	ext, _ := supportedExt(key)
	rc, err := l.bucket.DownloadFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	meta := domain.DocMeta{Source: path.Base(key), StorageKey: domain.StringPtr(key)}
	docs, err := decode(rc, ext, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return docs, nil
}
