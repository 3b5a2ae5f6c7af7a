package observability

import (
	"context"
	"time"
)

// Publisher is the sink for operational events. rabbitmq.Publisher satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends message through the configured publisher; without one it
// is a no-op.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSRoutingKey is where websocket lifecycle events are published.
const WSRoutingKey = "ws_events.rooms"

// WSConn identifies one websocket connection in lifecycle events.
type WSConn struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// WSEvent builds the lifecycle envelope for a connection. room is empty for
// connection-level events.
func WSEvent(name string, conn WSConn, room, reason string) EventEnvelope {
	return EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "room",
				"room":        room,
				"event":       name,
				"conn_id":     conn.ConnID,
				"duration_ms": time.Since(conn.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   conn.UserID,
				"device_id": conn.DeviceID,
				"ip":        conn.IP,
			},
		},
	}
}

// PublishWSEvent counts and publishes a lifecycle event.
func PublishWSEvent(ctx context.Context, name string, conn WSConn, room, reason string) {
	IncWSEvent("room", name)
	_ = PublishEvent(ctx, WSRoutingKey, WSEvent(name, conn, room, reason), BuildHeaders(conn.RequestID, conn.TraceID))
}
