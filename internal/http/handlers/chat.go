package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docchat-backend/internal/chat"
	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/http/response"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

type ChatService interface {
	Answer(ctx context.Context, req chat.AnswerRequest) (*chat.Package, error)
	Stream(ctx context.Context, req chat.AnswerRequest, onDelta func(string)) (*chat.Package, error)
	Sources(ctx context.Context, query string, k int) ([]domain.Source, error)
}

type HistoryClearer interface {
	ClearMessages(ctx context.Context, sessionID string) error
}

type ChatHandler struct {
	log     *logger.Logger
	chat    ChatService
	history HistoryClearer
}

func NewChatHandler(log *logger.Logger, svc ChatService, history HistoryClearer) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: svc, history: history}
}

func bindInvoke(c *gin.Context) (chat.AnswerRequest, bool) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%w: %v", apierr.ErrInvalidArgument, err))
		return chat.AnswerRequest{}, false
	}
	ar, err := req.answerRequest()
	if err != nil {
		response.RespondErr(c, err)
		return chat.AnswerRequest{}, false
	}
	return ar, true
}

// POST /chat and /chat/invoke
func (h *ChatHandler) Invoke(c *gin.Context) {
	req, ok := bindInvoke(c)
	if !ok {
		return
	}
	pkg, err := h.chat.Answer(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, pkg)
}

// POST /chat/stream
// Emits {"content": delta} data events, then "sources" and "done" events.
// Errors after the first byte are reported as an "error" event.
func (h *ChatHandler) Stream(c *gin.Context) {
	req, ok := bindInvoke(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("streaming unsupported"))
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	pkg, err := h.chat.Stream(c.Request.Context(), req, func(delta string) {
		start()
		_ = response.WriteSSE(c.Writer, "", gin.H{"content": delta})
		flusher.Flush()
	})
	if err != nil {
		if !started {
			response.RespondErr(c, err)
			return
		}
		h.log.Warn("stream aborted", append(ctxutil.LogFields(c.Request.Context()), "error", err)...)
		e := apierr.FromError(err)
		_ = response.WriteSSE(c.Writer, "error", gin.H{"message": e.Error(), "code": e.Code})
		flusher.Flush()
		return
	}
	start()
	_ = response.WriteSSE(c.Writer, "sources", gin.H{"sources": pkg.Sources})
	_ = response.WriteSSE(c.Writer, "done", pkg)
	flusher.Flush()
}

type clearRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
}

// POST /chat/clear
func (h *ChatHandler) Clear(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%w: %v", apierr.ErrInvalidArgument, err))
		return
	}
	sessionID, _, _, err := chat.ResolveSession(chat.AnswerRequest{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		ChatID:    req.ChatID,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.history.ClearMessages(c.Request.Context(), sessionID); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "cleared"})
}
