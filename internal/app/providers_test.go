package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/docchat-backend/internal/index"
	"github.com/yungbote/docchat-backend/internal/inference/engine/mock"
	"github.com/yungbote/docchat-backend/internal/inference/engine/oaihttp"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

func TestNewEngine(t *testing.T) {
	cfg := defaultConfig()
	cfg.MockEmbedDims = 12

	eng, err := newEngine(cfg, ProviderMock)
	require.NoError(t, err)
	require.IsType(t, &mock.Engine{}, eng)
	vecs, err := eng.Embed(context.Background(), "", []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs[0], 12)

	_, err = newEngine(cfg, ProviderOpenAI)
	require.True(t, errors.Is(err, apierr.ErrConfiguration), "missing key must be a configuration error: %v", err)

	cfg.GoogleAPIKey = "g-key"
	eng, err = newEngine(cfg, ProviderGoogle)
	require.NoError(t, err)
	require.IsType(t, &oaihttp.Engine{}, eng)
}

func TestResolveVectorStoreMemory(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorProvider = VectorProviderMemory
	vs, err := resolveVectorStore(context.Background(), logger.NewNop(), cfg)
	require.NoError(t, err)
	require.NotNil(t, vs)
	if observability.Current() == nil {
		require.IsType(t, &index.MemoryStore{}, vs)
	}
}

func TestResolveVectorStoreErrors(t *testing.T) {
	log := logger.NewNop()

	cfg := defaultConfig()
	cfg.VectorProvider = "faiss"
	_, err := resolveVectorStore(context.Background(), log, cfg)
	require.ErrorIs(t, err, apierr.ErrConfiguration)

	t.Setenv("QDRANT_URL", "")
	t.Setenv("QDRANT_VECTOR_DIM", "")
	cfg.VectorProvider = VectorProviderQdrant
	_, err = resolveVectorStore(context.Background(), log, cfg)
	require.ErrorIs(t, err, apierr.ErrConfiguration)

	t.Setenv("PINECONE_API_KEY", "")
	cfg.VectorProvider = VectorProviderPinecone
	_, err = resolveVectorStore(context.Background(), log, cfg)
	require.ErrorIs(t, err, apierr.ErrConfiguration)
}

func TestInstrumentedVectorStoreDelegates(t *testing.T) {
	inner := index.NewMemoryStore()
	vs := &instrumentedVectorStore{provider: "memory", inner: inner}

	ctx := context.Background()
	require.NoError(t, vs.Upsert(ctx, "ns", []pinecone.Vector{{ID: "a", Values: []float32{1, 0}}}))
	matches, err := vs.QueryMatches(ctx, "ns", []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NoError(t, vs.DeleteIDs(ctx, "ns", []string{"a"}))
	require.Zero(t, inner.Len("ns"))
}

func TestResolveBucketDisabledWithoutBucket(t *testing.T) {
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	bs, err := resolveBucket(logger.NewNop())
	require.NoError(t, err)
	require.Nil(t, bs)
}
