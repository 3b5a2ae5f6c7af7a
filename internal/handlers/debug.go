package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"activamigos-chat/internal/telemetry"
	"activamigos-chat/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
			Text:      "audit test",
			Action:    "debug",
			ActorID:   c.GetInt64("userID"),
			RequestID: requestIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/rooms", func(c *gin.Context) {
		room, ok := roomFromQuery(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": room.Key(), "members": hub.Members(room)})
	})
}
