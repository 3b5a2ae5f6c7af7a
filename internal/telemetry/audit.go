package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for moderation and debug actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level        string `json:"level"`
	Text         string `json:"text"`
	Action       string `json:"action,omitempty"`
	Room         string `json:"room,omitempty"`
	TargetUserID int64  `json:"target_user_id,omitempty"`
}

// AuditRecord is one audited action. ActorID is the user who performed it.
type AuditRecord struct {
	Level        string
	Text         string
	Action       string
	Room         string
	TargetUserID int64
	ActorID      int64
	RequestID    string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes rec; publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	var userID *string
	if rec.ActorID != 0 {
		id := strconv.FormatInt(rec.ActorID, 10)
		userID = &id
	}

	log.Printf("audit emit: level=%s action=%s room=%s request_id=%s user_id=%d text=%q", rec.Level, rec.Action, rec.Room, rec.RequestID, rec.ActorID, rec.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:        rec.Level,
			Text:         rec.Text,
			Action:       rec.Action,
			Room:         rec.Room,
			TargetUserID: rec.TargetUserID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
