package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"activamigos-chat/internal/models"
	"activamigos-chat/internal/moderation"
)

// ModerationHandler exposes warnings, bans and status.
type ModerationHandler struct {
	svc *moderation.Service
}

// NewModerationHandler builds a ModerationHandler.
func NewModerationHandler(svc *moderation.Service) *ModerationHandler {
	return &ModerationHandler{svc: svc}
}

// Status handles GET /api/moderation/status.
func (h *ModerationHandler) Status(c *gin.Context) {
	room, ok := roomFromQuery(c)
	if !ok {
		return
	}
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	status, err := h.svc.Status(c.Request.Context(), actorFromContext(c), room, userID)
	if err != nil {
		writeError(c, err, "failed to get moderation status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// IssueWarning handles POST /api/moderation/warnings.
func (h *ModerationHandler) IssueWarning(c *gin.Context) {
	var req struct {
		ContextType  string `json:"context_type" binding:"required"`
		ContextID    int64  `json:"context_id" binding:"required"`
		TargetUserID int64  `json:"target_user_id" binding:"required"`
		Reason       string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "context_type, context_id, target_user_id and reason are required"})
		return
	}
	ct, err := models.ParseContextType(req.ContextType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.IssueWarning(c.Request.Context(), actorFromContext(c), models.IssueWarningRequest{
		ContextType:  ct,
		ContextID:    req.ContextID,
		TargetUserID: req.TargetUserID,
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(c, err, "failed to issue warning")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListWarnings handles GET /api/moderation/warnings.
func (h *ModerationHandler) ListWarnings(c *gin.Context) {
	room, ok := roomFromQuery(c)
	if !ok {
		return
	}
	warnings, err := h.svc.ListWarnings(c.Request.Context(), actorFromContext(c), room)
	if err != nil {
		writeError(c, err, "failed to get warnings")
		return
	}
	if warnings == nil {
		warnings = []models.Warning{}
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

// Unban handles PATCH /api/moderation/memberships/:membership_id/unban.
func (h *ModerationHandler) Unban(c *gin.Context) {
	membershipID, err := strconv.ParseInt(c.Param("membership_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid membership id"})
		return
	}

	membership, err := h.svc.Unban(c.Request.Context(), actorFromContext(c), membershipID)
	if err != nil {
		writeError(c, err, "failed to unban user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User unbanned successfully", "membership": membership})
}
