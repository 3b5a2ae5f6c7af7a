package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"activamigos-chat/internal/auth"
	"activamigos-chat/internal/chat"
	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/observability"
)

// TokenValidator verifies session tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Handler serves GET /ws.
type Handler struct {
	hub    *Hub
	tokens TokenValidator
	chat   *chat.Service
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, tokens TokenValidator, chatService *chat.Service) *Handler {
	return &Handler{hub: hub, tokens: tokens, chat: chatService}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and serves the connection until it closes.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("activamigos-chat/ws").Start(c.Request.Context(), "ws.handshake")

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", claims.UserID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request.WithContext(ctx), nil)
	if err != nil {
		span.End()
		return
	}
	span.End()

	info := observability.WSConn{
		ConnID:      uuid.NewString(),
		UserID:      claims.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(h.hub, conn, claims.Identity(token), info)

	// the connection outlives the handshake request
	connCtx := trace.ContextWithSpanContext(context.Background(), span.SpanContext())

	observability.IncWSActive("room")
	observability.PublishWSEvent(connCtx, "ws_connect", info, "", "")
	log.Printf("websocket connected: conn_id=%s user_id=%d", info.ConnID, info.UserID)

	go client.writePump()
	reason := client.readPump(connCtx, h.dispatch)

	client.Close()
	for _, room := range h.hub.RemoveClient(client) {
		observability.PublishWSEvent(connCtx, "ws_leave", info, room.Key(), reason)
	}
	observability.DecWSActive("room")
	observability.PublishWSEvent(connCtx, "ws_disconnect", info, "", reason)
	log.Printf("websocket disconnected: conn_id=%s user_id=%d reason=%q", info.ConnID, info.UserID, reason)
}

func (h *Handler) dispatch(ctx context.Context, c *Client, ev events.Event) {
	switch e := ev.(type) {
	case events.JoinChat:
		if _, err := h.chat.Authorize(ctx, e.RoomRef, c.identity.UserID); err != nil {
			c.Send(errorEvent(err, e.RoomRef))
			return
		}
		h.hub.Join(e.RoomRef, c)
		c.Send(events.JoinedChat{RoomRef: e.RoomRef, Room: e.Key()})
		observability.PublishWSEvent(ctx, "ws_join", c.info, e.Key(), "")

	case events.LeaveChat:
		if h.hub.Leave(e.RoomRef, c) {
			observability.PublishWSEvent(ctx, "ws_leave", c.info, e.Key(), "client")
		}
		c.Send(events.LeftChat{RoomRef: e.RoomRef, Room: e.Key()})

	case events.SendMessage:
		msg, err := h.chat.Post(ctx, e.RoomRef, c.identity.UserID, e.Content, "ws")
		if err != nil {
			c.Send(errorEvent(err, e.RoomRef))
			return
		}
		c.Send(events.MessageSent{RoomRef: e.RoomRef, MessageID: msg.ID})

	default:
		c.Send(events.Error{Code: events.CodeInvalidPayload, Message: "unexpected event " + string(ev.Type())})
	}
}

func errorEvent(err error, room models.RoomRef) events.Error {
	ev := events.Error{Message: err.Error(), Room: &room}
	switch {
	case errors.Is(err, chat.ErrNotMember):
		ev.Code = events.CodeForbidden
	case errors.Is(err, chat.ErrBanned):
		ev.Code = events.CodeBanned
	case errors.Is(err, chat.ErrRateLimited):
		ev.Code = events.CodeRateLimited
	case errors.Is(err, chat.ErrInvalidRoom), errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		ev.Code = events.CodeInvalidPayload
	default:
		log.Printf("websocket internal error: room=%s err=%v", room, err)
		ev.Code = events.CodeInternal
		ev.Message = "internal error"
	}
	return ev
}
