package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"activamigos-chat/internal/chat"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/moderation"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// identityFromContext reads what middleware.Auth stored.
func identityFromContext(c *gin.Context) models.Identity {
	id := models.Identity{UserID: c.GetInt64("userID"), Username: c.GetString("username"), Role: models.RoleUser}
	if role, ok := c.Get("role"); ok {
		if r, ok := role.(models.Role); ok && r != "" {
			id.Role = r
		}
	}
	return id
}

func actorFromContext(c *gin.Context) moderation.Actor {
	return moderation.Actor{Identity: identityFromContext(c), RequestID: requestIDFromContext(c)}
}

// roomFromQuery parses context_type and context_id query parameters.
func roomFromQuery(c *gin.Context) (models.RoomRef, bool) {
	if c.Query("context_type") == "" || c.Query("context_id") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "context_type and context_id are required"})
		return models.RoomRef{}, false
	}
	ct, err := models.ParseContextType(c.Query("context_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.RoomRef{}, false
	}
	id, err := strconv.ParseInt(c.Query("context_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid context_id"})
		return models.RoomRef{}, false
	}
	return models.RoomRef{ContextType: ct, ContextID: id}, true
}

func queryInt64(c *gin.Context, key string) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	msg := fallback
	switch {
	case errors.Is(err, chat.ErrInvalidRoom), errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, moderation.ErrInvalidRequest), errors.Is(err, models.ErrInvalidContext):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrBanned), errors.Is(err, moderation.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, moderation.ErrNotMember), errors.Is(err, moderation.ErrUserNotFound), errors.Is(err, moderation.ErrNoMembership):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, chat.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}
