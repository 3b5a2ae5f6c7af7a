package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	event      any
	err        error
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func TestAuditEmitterBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	e := NewAuditEmitter(pub, "audit.chat", "activamigos-chat", "test")
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	e.Emit(context.Background(), AuditRecord{Action: "ban", Room: "group_7", TargetUserID: 9, ActorID: 1, RequestID: "req", Text: "bob banned"})

	require.Equal(t, "audit.chat", pub.routingKey)
	env, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	require.Equal(t, "audit_log", env.EventType)
	require.Equal(t, "2026-01-02T03:04:05Z", env.OccurredAt)
	require.Equal(t, "INFO", env.Payload.Level)
	require.Equal(t, "ban", env.Payload.Action)
	require.Equal(t, int64(9), env.Payload.TargetUserID)
	require.NotNil(t, env.UserID)
	require.Equal(t, "1", *env.UserID)
}

func TestAuditEmitterSwallowsPublishError(t *testing.T) {
	pub := &capturePublisher{err: assert.AnError}
	e := NewAuditEmitter(pub, "audit.chat", "svc", "test")

	e.Emit(context.Background(), AuditRecord{Text: "x"})
	require.Nil(t, pub.event.(AuditEnvelope).UserID)
}

func TestNilAuditEmitterIsSafe(t *testing.T) {
	var e *AuditEmitter
	e.Emit(context.Background(), AuditRecord{Text: "x"})
}
