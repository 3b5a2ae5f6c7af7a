package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"activamigos-chat/internal/chat"
	"activamigos-chat/internal/models"
)

// ChatHandler serves room history and the REST send fallback.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatService *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

// History handles GET /api/chat/history.
func (h *ChatHandler) History(c *gin.Context) {
	room, ok := roomFromQuery(c)
	if !ok {
		return
	}
	page, ok := queryInt64(c, "page")
	if !ok {
		return
	}
	perPage, ok := queryInt64(c, "per_page")
	if !ok {
		return
	}
	beforeID, ok := queryInt64(c, "before_id")
	if !ok {
		return
	}

	result, err := h.chat.History(c.Request.Context(), room, c.GetInt64("userID"), models.HistoryQuery{
		Page:     int(page),
		PerPage:  int(perPage),
		BeforeID: beforeID,
	})
	if err != nil {
		writeError(c, err, "failed to load messages")
		return
	}
	if result.Messages == nil {
		result.Messages = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, result)
}

// PostMessage handles POST /api/chat/messages.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		ContextType string `json:"context_type" binding:"required"`
		ContextID   int64  `json:"context_id" binding:"required"`
		Content     string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ct, err := models.ParseContextType(req.ContextType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.Post(c.Request.Context(), models.RoomRef{ContextType: ct, ContextID: req.ContextID}, c.GetInt64("userID"), req.Content, "rest")
	if err != nil {
		writeError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}
