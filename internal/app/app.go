package app

import (
	"context"
	"fmt"
	"net"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docchat-backend/internal/chat"
	redisclient "github.com/yungbote/docchat-backend/internal/clients/redis"
	apphttp "github.com/yungbote/docchat-backend/internal/http"
	httpH "github.com/yungbote/docchat-backend/internal/http/handlers"
	"github.com/yungbote/docchat-backend/internal/inference/engine"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/gcp"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
	"github.com/yungbote/docchat-backend/internal/retrieval"
	"github.com/yungbote/docchat-backend/internal/sessions"
)

// App is the chat API process: config, providers, session store and the
// HTTP server.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	Redis    *goredis.Client
	Sessions *sessions.Store
	Chat     *chat.Service
	Bucket   gcp.BucketService
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

// New wires every dependency. Configuration problems surface as errors
// matching apierr.ErrConfiguration; callers abort startup on them.
func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading configuration...")
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	a.Metrics = observability.Init(log)

	chatEng, err := newEngine(cfg, cfg.LLMProvider)
	if err != nil {
		return nil, fmt.Errorf("init chat engine: %w", err)
	}
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
	a.Bucket, err = resolveBucket(log)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	a.Redis, err = redisclient.NewClient(ctx, log, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.Sessions = sessions.NewStore(log, a.Redis, cfg.HistoryTTL)

	var signer retrieval.URLSigner
	if a.Bucket != nil {
		signer = a.Bucket
	}
	retriever := retrieval.New(log, ix, signer, cfg.RetrievalK)
	a.Chat = chat.NewService(log, retriever, a.Sessions, instrumentEngine(cfg.LLMProvider, chatEng), chat.Config{
		Model: cfg.LLMModel,
		Options: engine.GenerateOptions{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
		},
		Persona: cfg.Persona,
		K:       cfg.RetrievalK,
	})

	a.Server = apphttp.NewServer(net.JoinHostPort("", cfg.Port), a.routerConfig())
	log.Info("App wired",
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"embedding_provider", cfg.EmbedProvider,
		"vector_provider", cfg.VectorProvider,
		"retrieval_k", cfg.RetrievalK,
	)
	return a, nil
}

func (a *App) routerConfig() apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:            a.Log,
		Metrics:        a.Metrics,
		ServiceName:    a.Cfg.ServiceName,
		AllowedOrigins: a.Cfg.AllowedOrigins,
		HealthHandler:  httpH.NewHealthHandler(),
		ChatHandler:    httpH.NewChatHandler(a.Log, a.Chat, a.Sessions),
		SourcesHandler: httpH.NewSourcesHandler(a.Chat),
		ChatsHandler:   httpH.NewChatsHandler(a.Sessions),
		FilesHandler:   httpH.NewFilesHandler(a.Cfg.DocsDir),
	}
}

// Run serves HTTP until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("Server listening", "addr", a.Server.Addr())
		return a.Server.Run(gctx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("redis close failed", "error", err)
		}
	}
	if a.Bucket != nil {
		if err := a.Bucket.Close(); err != nil {
			a.Log.Warn("bucket close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
