package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/docchat-backend/internal/data/repos/ledger"
	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

type Source string

const (
	SourceLocal  Source = "local"
	SourceBucket Source = "bucket"
)

// ErrNoDocuments is returned when a source yields nothing to ingest.
var ErrNoDocuments = errors.New("no documents found")

// VectorIndex is the write side of the indexer.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) (int, error)
	Delete(ctx context.Context, ids []string) error
}

type PipelineDeps struct {
	Log     *logger.Logger
	Loaders map[Source]Loader
	Chunker *Chunker
	Index   VectorIndex
	// Ledger is optional; without it stale chunks are never pruned.
	Ledger ledger.IngestedChunkRepo
}

type Report struct {
	RunID     string        `json:"run_id"`
	Source    Source        `json:"source"`
	Files     int           `json:"files"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Upserted  int           `json:"upserted"`
	Pruned    int           `json:"pruned"`
	Duration  time.Duration `json:"duration"`
}

type Pipeline struct {
	log     *logger.Logger
	loaders map[Source]Loader
	chunker *Chunker
	index   VectorIndex
	ledger  ledger.IngestedChunkRepo
}

func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("%w: chunker required", apierr.ErrConfiguration)
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("%w: vector index required", apierr.ErrConfiguration)
	}
	return &Pipeline{
		log:     deps.Log.With("component", "IngestionPipeline"),
		loaders: deps.Loaders,
		chunker: deps.Chunker,
		index:   deps.Index,
		ledger:  deps.Ledger,
	}, nil
}

// Run loads, chunks, embeds and upserts one source. Nothing is written to
// the vector index until loading and chunking have succeeded, and the
// ledger is only updated after every upsert succeeded.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Report, error) {
	rep, err := p.run(ctx, src)
	if rep != nil {
		observability.Current().ObserveIngest(string(src), err, rep.Upserted, rep.Pruned)
	} else {
		observability.Current().ObserveIngest(string(src), err, 0, 0)
	}
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, src Source) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.New().String(), Source: src}
	log := p.log.With("run_id", rep.RunID, "source", string(src))

	loader, ok := p.loaders[src]
	if !ok || loader == nil {
		return nil, fmt.Errorf("%w: ingestion source %q is not configured", apierr.ErrConfiguration, src)
	}
	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", src, ErrNoDocuments)
	}
	keys := sourceKeys(docs)
	rep.Files = len(keys)
	rep.Documents = len(docs)

	chunks := p.chunker.Split(docs)
	rep.Chunks = len(chunks)
	log.Info("chunked documents", "files", rep.Files, "documents", rep.Documents, "chunks", rep.Chunks)

	var previous []*domain.IngestedChunk
	if p.ledger != nil {
		previous, err = p.ledger.GetBySourceKeys(ctx, nil, keys)
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
	}

	rep.Upserted, err = p.index.Upsert(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if p.ledger != nil {
		stale := staleIDs(previous, chunks)
		if err := p.index.Delete(ctx, stale); err != nil {
			return nil, fmt.Errorf("prune stale chunks: %w", err)
		}
		rep.Pruned = len(stale)
		if err := p.ledger.ReplaceForSources(ctx, nil, keys, ledgerRows(rep.RunID, chunks)); err != nil {
			return nil, fmt.Errorf("write ledger: %w", err)
		}
	}

	rep.Duration = time.Since(start)
	log.Info("ingestion complete",
		"upserted", rep.Upserted,
		"pruned", rep.Pruned,
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

// IngestedSources lists the source keys recorded in the ledger.
func (p *Pipeline) IngestedSources(ctx context.Context) ([]string, error) {
	if p.ledger == nil {
		return nil, fmt.Errorf("%w: ingestion ledger is not configured", apierr.ErrConfiguration)
	}
	return p.ledger.ListSourceKeys(ctx, nil)
}

// Forget removes every recorded chunk of the given source keys from the
// vector index, then drops their ledger rows. It is how deleted files are
// pruned, since a normal run only sees sources that still exist.
func (p *Pipeline) Forget(ctx context.Context, keys []string) (int, error) {
	if p.ledger == nil {
		return 0, fmt.Errorf("%w: ingestion ledger is not configured", apierr.ErrConfiguration)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	rows, err := p.ledger.GetBySourceKeys(ctx, nil, keys)
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ChunkID)
	}
	if err := p.index.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	if err := p.ledger.FullDeleteBySourceKeys(ctx, nil, keys); err != nil {
		return 0, fmt.Errorf("write ledger: %w", err)
	}
	p.log.Info("forgot sources", "sources", len(keys), "deleted", len(ids))
	observability.Current().ObserveIngest("forget", nil, 0, len(ids))
	return len(ids), nil
}

func sourceKeys(docs []domain.Document) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range docs {
		k := d.Metadata.Key()
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func staleIDs(previous []*domain.IngestedChunk, current []domain.Chunk) []string {
	live := make(map[string]bool, len(current))
	for _, c := range current {
		live[c.ID] = true
	}
	var out []string
	for _, row := range previous {
		if !live[row.ChunkID] {
			out = append(out, row.ChunkID)
		}
	}
	return out
}

func ledgerRows(runID string, chunks []domain.Chunk) []*domain.IngestedChunk {
	now := time.Now().UTC()
	out := make([]*domain.IngestedChunk, 0, len(chunks))
	for _, c := range chunks {
		meta, _ := json.Marshal(c.Metadata)
		out = append(out, &domain.IngestedChunk{
			SourceKey:   c.Metadata.Key(),
			ChunkID:     c.ID,
			ContentHash: domain.ContentHash(c.Text),
			RunID:       runID,
			Metadata:    datatypes.JSON(meta),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out
}
