package observability

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys    []string
	headers []map[string]string
	err     error
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	p.keys = append(p.keys, routingKey)
	p.headers = append(p.headers, headers)
	return p.err
}

func TestPublishEventWithoutPublisherIsNoop(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), "k", "v", nil))
}

func TestPublishEventCountsErrors(t *testing.T) {
	pub := &recordingPublisher{err: assert.AnError}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	require.ErrorIs(t, PublishEvent(context.Background(), "k", "v", nil), assert.AnError)
	require.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}

func TestPublishWSEventUsesRoomRoutingKey(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	conn := WSConn{ConnID: "c1", UserID: 3, RequestID: "req-1", TraceID: "trace-1", ConnectedAt: time.Now()}
	PublishWSEvent(context.Background(), "ws_join", conn, "group_7", "")

	require.Equal(t, []string{WSRoutingKey}, pub.keys)
	require.Equal(t, "req-1", pub.headers[0]["x-request-id"])
	require.Equal(t, "trace-1", pub.headers[0]["trace_id"])

	env := WSEvent("ws_join", conn, "group_7", "")
	ws := env.Payload.(map[string]interface{})["ws"].(map[string]interface{})
	require.Equal(t, "group_7", ws["room"])
}

func TestIPFromRequestPrefersForwarded(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	require.Equal(t, "10.0.0.1", IPFromRequest(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.5:4000"
	require.Equal(t, "192.168.1.5", IPFromRequest(r))
}

func TestRequestIDFromRequestGeneratesWhenMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	require.NotEmpty(t, RequestIDFromRequest(r))
	r.Header.Set("X-Request-Id", "abc")
	require.Equal(t, "abc", RequestIDFromRequest(r))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", service)
	require.Equal(t, "Check", method)
}
