package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docchat-backend/internal/http/middleware"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string

	HealthHandler  *httpH.HealthHandler
	ChatHandler    *httpH.ChatHandler
	SourcesHandler *httpH.SourcesHandler
	ChatsHandler   *httpH.ChatsHandler
	FilesHandler   *httpH.FilesHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Chat
	if cfg.ChatHandler != nil {
		r.POST("/chat", cfg.ChatHandler.Invoke)
		r.POST("/chat/invoke", cfg.ChatHandler.Invoke)
		r.POST("/chat/stream", cfg.ChatHandler.Stream)
		r.POST("/chat/clear", cfg.ChatHandler.Clear)
	}

	// Sources
	if cfg.SourcesHandler != nil {
		r.GET("/sources", cfg.SourcesHandler.Get)
		r.POST("/sources", cfg.SourcesHandler.Invoke)
		r.POST("/sources/invoke", cfg.SourcesHandler.Invoke)
	}

	// Chats
	if cfg.ChatsHandler != nil {
		r.POST("/chats", cfg.ChatsHandler.Create)
		r.GET("/chats", cfg.ChatsHandler.List)
		r.DELETE("/chats", cfg.ChatsHandler.Delete)
		r.GET("/chats/messages", cfg.ChatsHandler.Messages)
		r.POST("/chats/rename", cfg.ChatsHandler.Rename)
	}

	// Files
	if cfg.FilesHandler != nil {
		r.GET("/files", cfg.FilesHandler.Get)
	}

	return r
}
