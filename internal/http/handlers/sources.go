package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docchat-backend/internal/chat"
	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/http/response"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

// SourcesHandler answers retrieval-only requests. It never touches chat
// history or the model.
type SourcesHandler struct {
	chat ChatService
}

func NewSourcesHandler(svc ChatService) *SourcesHandler {
	return &SourcesHandler{chat: svc}
}

// GET /sources?input=&k=
func (h *SourcesHandler) Get(c *gin.Context) {
	k := 0
	if v := strings.TrimSpace(c.Query("k")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.RespondErr(c, fmt.Errorf("%w: k must be an integer", apierr.ErrInvalidArgument))
			return
		}
		k = n
	}
	h.respond(c, c.Query("input"), k)
}

// POST /sources and /sources/invoke
func (h *SourcesHandler) Invoke(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, fmt.Errorf("%w: %v", apierr.ErrInvalidArgument, err))
		return
	}
	input, err := decodeInput(req.Input)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.respond(c, input, req.K)
}

func (h *SourcesHandler) respond(c *gin.Context, input string, k int) {
	sources, err := h.chat.Sources(c.Request.Context(), input, k)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	response.RespondOK(c, chat.Package{Output: "", Sources: sources})
}
