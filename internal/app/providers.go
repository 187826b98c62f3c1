package app

import (
	"context"
	"fmt"

	"github.com/yungbote/docchat-backend/internal/index"
	"github.com/yungbote/docchat-backend/internal/inference/engine"
	"github.com/yungbote/docchat-backend/internal/inference/engine/mock"
	"github.com/yungbote/docchat-backend/internal/inference/engine/oaihttp"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/gcp"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
	"github.com/yungbote/docchat-backend/internal/platform/qdrant"
)

var (
	newQdrantVectorStore   = qdrant.NewVectorStore
	newPineconeClient      = pinecone.NewClient
	newPineconeVectorStore = pinecone.NewVectorStore
)

// newEngine builds the engine for one provider. Chat and embeddings may use
// different providers, so this is called once per role.
func newEngine(cfg Config, provider string) (engine.Engine, error) {
	if provider == ProviderMock {
		return mock.New(cfg.MockEmbedDims), nil
	}
	oc, err := oaihttp.ProviderConfig(provider, cfg.APIKey(provider), cfg.BaseURL(provider))
	if err != nil {
		return nil, err
	}
	oc.Timeout = cfg.LLMTimeout
	eng, err := oaihttp.New(oc)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (pinecone.VectorStore, error) {
	provider := cfg.VectorProvider
	log.Info("Selecting vector store provider", "provider", provider, "namespace", cfg.VectorNamespace)

	var (
		vs  pinecone.VectorStore
		err error
	)
	switch provider {
	case VectorProviderQdrant:
		var qc qdrant.Config
		qc, err = qdrant.ResolveConfigFromEnv()
		if err == nil {
			vs, err = newQdrantVectorStore(ctx, log, qc)
		}
	case VectorProviderPinecone:
		var pc pinecone.Client
		pc, err = newPineconeClient(log, pinecone.ClientConfig{
			APIKey:     envString("PINECONE_API_KEY"),
			APIVersion: envString("PINECONE_API_VERSION"),
			BaseURL:    envString("PINECONE_BASE_URL"),
		})
		if err == nil {
			var pcfg pinecone.Config
			pcfg, err = pinecone.ResolveConfigFromEnv()
			if err == nil {
				vs, err = newPineconeVectorStore(log, pc, pcfg)
			}
		}
	case VectorProviderMemory:
		log.Warn("Using in-process vector store; vectors are lost on exit")
		vs = index.NewMemoryStore()
	default:
		err = &ConfigError{Field: "VECTOR_STORE_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", provider)}
	}
	if err != nil {
		log.Error("Vector store provider bootstrap failed", "provider", provider, "error", err)
		return nil, fmt.Errorf("vector store %s: %w", provider, err)
	}
	return instrumentVectorStore(provider, vs), nil
}

// resolveBucket returns nil when no bucket is configured; only bucket
// ingestion and signed source URLs need one.
func resolveBucket(log *logger.Logger) (gcp.BucketService, error) {
	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if !storageCfg.Enabled() {
		log.Info("Object storage not configured; bucket ingestion and signed URLs disabled")
		return nil, nil
	}
	bs, err := gcp.NewBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		return nil, err
	}
	return instrumentBucket(bs), nil
}

func newIndexer(log *logger.Logger, cfg Config, eng engine.Engine, vs pinecone.VectorStore) (*index.Indexer, error) {
	if eng == nil || vs == nil {
		return nil, fmt.Errorf("%w: indexer needs an embedding engine and a vector store", apierr.ErrConfiguration)
	}
	return index.New(log, eng, vs, index.Config{
		EmbedModel: cfg.EmbedModel,
		BatchSize:  cfg.EmbedBatchSize,
		RPS:        cfg.EmbedRPS,
		Namespace:  cfg.VectorNamespace,
	})
}
