package app

import (
	"context"
	"fmt"

	"github.com/yungbote/docchat-backend/internal/data/db"
	"github.com/yungbote/docchat-backend/internal/data/repos/ledger"
	"github.com/yungbote/docchat-backend/internal/ingestion"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/envutil"
	"github.com/yungbote/docchat-backend/internal/platform/gcp"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

// Ingest is the ingestion CLI process.
type Ingest struct {
	Log      *logger.Logger
	Cfg      Config
	Pipeline *ingestion.Pipeline

	ledgerDB *db.Service
	bucket   gcp.BucketService
}

// NewIngest wires loaders, chunker, indexer and the ledger. The ledger is
// on unless LEDGER_ENABLED=false.
func NewIngest(ctx context.Context, log *logger.Logger) (*Ingest, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	in := &Ingest{Log: log, Cfg: cfg}
	observability.Init(log)

	embedEng, err := newEngine(cfg, cfg.EmbedProvider)
	if err != nil {
		return nil, fmt.Errorf("init embedding engine: %w", err)
	}
	vs, err := resolveVectorStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	ix, err := newIndexer(log, cfg, instrumentEngine(cfg.EmbedProvider, embedEng), vs)
	if err != nil {
		return nil, err
	}
	chunker, err := ingestion.NewChunker(ingestion.ChunkerConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		return nil, err
	}

	loaders := map[ingestion.Source]ingestion.Loader{
		ingestion.SourceLocal: ingestion.NewLocalLoader(log, cfg.DocsDir),
	}
	in.bucket, err = resolveBucket(log)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	if in.bucket != nil {
		loaders[ingestion.SourceBucket] = ingestion.NewBucketLoader(log, in.bucket, in.bucket.Prefix(), cfg.BucketConcurrency)
	}

	var repo ledger.IngestedChunkRepo
	if envutil.Bool("LEDGER_ENABLED", true) {
		in.ledgerDB, err = db.NewService(log, db.ResolveConfigFromEnv())
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		repo = ledger.NewIngestedChunkRepo(in.ledgerDB.DB(), log)
	} else {
		log.Warn("Ingestion ledger disabled; stale chunks will not be pruned")
	}

	in.Pipeline, err = ingestion.NewPipeline(ingestion.PipelineDeps{
		Log:     log,
		Loaders: loaders,
		Chunker: chunker,
		Index:   ix,
		Ledger:  repo,
	})
	if err != nil {
		in.Close()
		return nil, err
	}
	return in, nil
}

// Watch re-runs local ingestion whenever DOCS_DIR changes.
func (in *Ingest) Watch(ctx context.Context) error {
	w := ingestion.NewWatcher(in.Log, in.Cfg.DocsDir, in.Cfg.WatchDebounce, func(ctx context.Context) error {
		_, err := in.Pipeline.Run(ctx, ingestion.SourceLocal)
		return err
	})
	return w.Run(ctx)
}

func (in *Ingest) Close() {
	if in == nil {
		return
	}
	if in.ledgerDB != nil {
		if err := in.ledgerDB.Close(); err != nil {
			in.Log.Warn("ledger close failed", "error", err)
		}
	}
	if in.bucket != nil {
		if err := in.bucket.Close(); err != nil {
			in.Log.Warn("bucket close failed", "error", err)
		}
	}
	in.Log.Sync()
}
