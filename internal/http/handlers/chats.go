package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/http/response"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (domain.ChatMeta, error)
	ListChats(ctx context.Context, userID string, limit int) ([]domain.ChatMeta, error)
	GetMessages(ctx context.Context, userID, chatID string) ([]domain.ChatMessage, error)
	RenameChat(ctx context.Context, userID, chatID, title string) (domain.ChatMeta, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
}

type ChatsHandler struct {
	store ChatStore
}

func NewChatsHandler(store ChatStore) *ChatsHandler {
	return &ChatsHandler{store: store}
}

type createChatReq struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// POST /chats
func (h *ChatsHandler) Create(c *gin.Context) {
	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%w: %v", apierr.ErrInvalidArgument, err))
		return
	}
	meta, err := h.store.CreateChat(c.Request.Context(), req.UserID, req.Title)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, meta)
}

// GET /chats?user_id=&limit=
func (h *ChatsHandler) List(c *gin.Context) {
	limit := 0
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.RespondErr(c, fmt.Errorf("%w: limit must be an integer", apierr.ErrInvalidArgument))
			return
		}
		limit = n
	}
	chats, err := h.store.ListChats(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chats": chats})
}

// GET /chats/messages?user_id=&chat_id=
func (h *ChatsHandler) Messages(c *gin.Context) {
	msgs, err := h.store.GetMessages(c.Request.Context(), c.Query("user_id"), c.Query("chat_id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

type renameChatReq struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

// POST /chats/rename
func (h *ChatsHandler) Rename(c *gin.Context) {
	var req renameChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%w: %v", apierr.ErrInvalidArgument, err))
		return
	}
	meta, err := h.store.RenameChat(c.Request.Context(), req.UserID, req.ChatID, req.Title)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, meta)
}

// DELETE /chats?user_id=&chat_id=
func (h *ChatsHandler) Delete(c *gin.Context) {
	chatID := c.Query("chat_id")
	if err := h.store.DeleteChat(c.Request.Context(), c.Query("user_id"), chatID); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "deleted", "chat_id": chatID})
}
