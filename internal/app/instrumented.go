package app

import (
	"context"
	"io"
	"time"

	"github.com/yungbote/docchat-backend/internal/inference/engine"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/envutil"
	"github.com/yungbote/docchat-backend/internal/platform/gcp"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

func envString(name string) string { return envutil.String(name, "") }

type instrumentedVectorStore struct {
	provider string
	inner    pinecone.VectorStore
}

func instrumentVectorStore(provider string, inner pinecone.VectorStore) pinecone.VectorStore {
	if inner == nil || observability.Current() == nil {
		return inner
	}
	return &instrumentedVectorStore{provider: provider, inner: inner}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, namespace, vectors)
	observability.Current().ObserveProvider(s.provider, "upsert", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	start := time.Now()
	out, err := s.inner.QueryMatches(ctx, namespace, q, topK, filter)
	observability.Current().ObserveProvider(s.provider, "query_matches", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
	start := time.Now()
	out, err := s.inner.QueryIDs(ctx, namespace, q, topK, filter)
	observability.Current().ObserveProvider(s.provider, "query_ids", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteIDs(ctx, namespace, ids)
	observability.Current().ObserveProvider(s.provider, "delete_ids", err, time.Since(start))
	return err
}

type instrumentedEngine struct {
	provider string
	inner    engine.Engine
}

func instrumentEngine(provider string, inner engine.Engine) engine.Engine {
	if inner == nil || observability.Current() == nil {
		return inner
	}
	return &instrumentedEngine{provider: provider, inner: inner}
}

func (e *instrumentedEngine) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	start := time.Now()
	out, err := e.inner.Embed(ctx, model, inputs)
	observability.Current().ObserveProvider(e.provider, "embed", err, time.Since(start))
	return out, err
}

func (e *instrumentedEngine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (engine.Completion, error) {
	start := time.Now()
	out, err := e.inner.GenerateText(ctx, model, messages, opts)
	observability.Current().ObserveProvider(e.provider, "generate", err, time.Since(start))
	return out, err
}

func (e *instrumentedEngine) StreamText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions, onDelta func(delta string)) (string, error) {
	start := time.Now()
	out, err := e.inner.StreamText(ctx, model, messages, opts, onDelta)
	observability.Current().ObserveProvider(e.provider, "stream", err, time.Since(start))
	return out, err
}

type instrumentedBucket struct {
	gcp.BucketService
}

func instrumentBucket(inner gcp.BucketService) gcp.BucketService {
	if inner == nil || observability.Current() == nil {
		return inner
	}
	return &instrumentedBucket{BucketService: inner}
}

func (b *instrumentedBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	out, err := b.BucketService.ListKeys(ctx, prefix)
	observability.Current().ObserveProvider("gcs", "list", err, time.Since(start))
	return out, err
}

func (b *instrumentedBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	out, err := b.BucketService.DownloadFile(ctx, key)
	observability.Current().ObserveProvider("gcs", "download", err, time.Since(start))
	return out, err
}
