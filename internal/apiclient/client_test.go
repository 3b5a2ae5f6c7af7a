package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"activamigos-chat/internal/models"
)

var room = models.RoomRef{ContextType: models.ContextGroup, ContextID: 7}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second, func() string { return "tok" })
}

func TestHistoryEncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/history", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		require.Equal(t, "GROUP", q.Get("context_type"))
		require.Equal(t, "7", q.Get("context_id"))
		require.Equal(t, "20", q.Get("per_page"))
		require.Equal(t, "31", q.Get("before_id"))
		require.Empty(t, q.Get("page"))
		_ = json.NewEncoder(w).Encode(models.HistoryPage{
			Messages:   []models.ChatMessage{{ID: 29}, {ID: 30}},
			Pagination: models.Pagination{Page: 1, PerPage: 20, HasNext: true},
		})
	})

	page, err := c.History(context.Background(), room, models.HistoryQuery{PerPage: 20, BeforeID: 31})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.True(t, page.Pagination.HasNext)
}

func TestModerationStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/moderation/status", r.URL.Path)
		require.Equal(t, "4", r.URL.Query().Get("user_id"))
		_, _ = w.Write([]byte(`{"warning_count":3,"status":"BANNED","semaphore_color":"red","can_chat":false}`))
	})

	st, err := c.ModerationStatus(context.Background(), room, 4)
	require.NoError(t, err)
	require.True(t, st.Banned())
	require.Equal(t, models.SemaphoreRed, st.SemaphoreColor)
}

func TestErrorResponses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/moderation/warnings":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"insufficient permissions"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	_, err := c.IssueWarning(context.Background(), models.IssueWarningRequest{ContextType: models.ContextGroup, ContextID: 7, TargetUserID: 3, Reason: "x"})
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, StatusCode(err))
	require.Contains(t, err.Error(), "insufficient permissions")

	_, err = c.Unban(context.Background(), 5)
	require.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestIssueWarningAndUnban(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/moderation/warnings":
			var req models.IssueWarningRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "spam", req.Reason)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.IssueWarningResult{WarningCount: 3, Banned: true})
		case r.Method == http.MethodPatch && r.URL.Path == "/api/moderation/memberships/5/unban":
			_, _ = w.Write([]byte(`{"message":"User unbanned successfully","membership":{"id":5,"warning_count":3,"status":"ACTIVE"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/moderation/warnings":
			_, _ = w.Write([]byte(`{"warnings":[{"id":1,"reason":"spam"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/chat/messages":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":12,"content":"hi"}`))
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	res, err := c.IssueWarning(ctx, models.IssueWarningRequest{ContextType: models.ContextGroup, ContextID: 7, TargetUserID: 3, Reason: "spam"})
	require.NoError(t, err)
	require.True(t, res.Banned)

	m, err := c.Unban(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 3, m.WarningCount)
	require.Equal(t, models.StatusActive, m.Status)

	list, err := c.Warnings(ctx, room)
	require.NoError(t, err)
	require.Len(t, list, 1)

	msg, err := c.PostMessage(ctx, room, "hi")
	require.NoError(t, err)
	require.Equal(t, int64(12), msg.ID)
}
