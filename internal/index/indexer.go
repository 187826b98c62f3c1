package index

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/inference/engine"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

const (
	DefaultBatchSize = 64
	DefaultNamespace = "default"
)

type Config struct {
	EmbedModel string
	BatchSize  int
	// RPS caps embedding requests per second; <= 0 means unlimited.
	RPS       float64
	Namespace string
}

// Indexer turns chunks into vectors and keeps them in the vector store.
type Indexer struct {
	log     *logger.Logger
	eng     engine.Engine
	store   pinecone.VectorStore
	cfg     Config
	limiter *rate.Limiter
}

func New(log *logger.Logger, eng engine.Engine, store pinecone.VectorStore, cfg Config) (*Indexer, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: embedding engine required", apierr.ErrConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store required", apierr.ErrConfiguration)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Indexer{
		log:     log.With("component", "Indexer"),
		eng:     eng,
		store:   store,
		cfg:     cfg,
		limiter: lim,
	}, nil
}

// Upsert embeds every chunk before writing anything, then upserts in
// batches keyed by chunk id. Re-running with identical chunks overwrites
// the same points.
func (ix *Indexer) Upsert(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	vectors := make([]pinecone.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = pinecone.Vector{ID: c.ID, Values: vecs[i], Metadata: c.Payload()}
	}
	for start := 0; start < len(vectors); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(vectors))
		if err := ix.store.Upsert(ctx, ix.cfg.Namespace, vectors[start:end]); err != nil {
			return start, apierr.Upstream("vector upsert", err)
		}
	}
	ix.log.Info("upserted vectors", append(ctxutil.LogFields(ctx), "count", len(vectors))...)
	return len(vectors), nil
}

func (ix *Indexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for start := 0; start < len(ids); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(ids))
		if err := ix.store.DeleteIDs(ctx, ix.cfg.Namespace, ids[start:end]); err != nil {
			return apierr.Upstream("vector delete", err)
		}
	}
	return nil
}

// Search embeds query and returns at most k matches in provider order.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]pinecone.VectorMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", apierr.ErrInvalidArgument)
	}
	vecs, err := ix.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	matches, err := ix.store.QueryMatches(ctx, ix.cfg.Namespace, vecs[0], k, nil)
	if err != nil {
		return nil, apierr.Upstream("vector query", err)
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(texts))
		if err := ix.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := ix.eng.Embed(ctx, ix.cfg.EmbedModel, texts[start:end])
		if err != nil {
			return nil, apierr.Upstream("embed", err)
		}
		if len(vecs) != end-start {
			return nil, apierr.Upstream("embed", fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs)))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, apierr.Upstream("embed", fmt.Errorf("empty embedding at %d", start+i))
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
