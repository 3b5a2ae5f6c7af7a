package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"activamigos-chat/internal/auth"
	"activamigos-chat/internal/chat"
	"activamigos-chat/internal/events"
	"activamigos-chat/internal/mocks"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/repositories"
)

type wsFixture struct {
	server      *httptest.Server
	tokens      *auth.TokenManager
	memberships *mocks.MembershipRepositoryMock
	messages    *mocks.MessageRepositoryMock
	hub         *Hub
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		tokens:      auth.NewTokenManager("secret", "test", time.Hour),
		memberships: new(mocks.MembershipRepositoryMock),
		messages:    new(mocks.MessageRepositoryMock),
		hub:         NewHub(),
	}
	svc := chat.NewService(f.memberships, f.messages, nil, f.hub)
	r := gin.New()
	r.GET("/ws", NewHandler(f.hub, f.tokens, svc).Handle)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Issue(userID, "ana", models.RoleUser)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, ev events.Event) {
	t.Helper()
	payload, err := events.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := events.Decode(payload)
	require.NoError(t, err)
	return ev
}

func TestHandleRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinSendAndReceive(t *testing.T) {
	f := newWSFixture(t)
	member := models.Membership{ContextType: models.ContextGroup, ContextID: 7, UserID: 3, Status: models.StatusActive, IsActive: true}
	stored := models.ChatMessage{ID: 100, ContextType: models.ContextGroup, ContextID: 7, Content: "hola", MessageType: models.MessageUser}

	f.memberships.On("Get", mock.Anything, group7, int64(3)).Return(member, nil)
	f.messages.On("Create", mock.Anything, group7, int64(3), "hola").Return(stored, nil).Once()
	f.memberships.On("TouchChatActivity", mock.Anything, group7, int64(3)).Return(nil).Once()

	conn := f.dial(t, 3)
	writeEvent(t, conn, events.JoinChat{RoomRef: group7})
	joined, ok := readEvent(t, conn).(events.JoinedChat)
	require.True(t, ok)
	require.Equal(t, "group_7", joined.Room)

	writeEvent(t, conn, events.SendMessage{RoomRef: group7, Content: "hola"})
	msg, ok := readEvent(t, conn).(events.NewMessage)
	require.True(t, ok)
	require.Equal(t, int64(100), msg.ID)

	ack, ok := readEvent(t, conn).(events.MessageSent)
	require.True(t, ok)
	require.Equal(t, int64(100), ack.MessageID)

	writeEvent(t, conn, events.LeaveChat{RoomRef: group7})
	_, ok = readEvent(t, conn).(events.LeftChat)
	require.True(t, ok)
	require.Equal(t, 0, f.hub.Members(group7))
}

func TestJoinBannedGetsErrorFrame(t *testing.T) {
	f := newWSFixture(t)
	f.memberships.On("Get", mock.Anything, group7, int64(4)).
		Return(models.Membership{UserID: 4, Status: models.StatusBanned, IsActive: true}, nil)

	conn := f.dial(t, 4)
	writeEvent(t, conn, events.JoinChat{RoomRef: group7})

	frame, ok := readEvent(t, conn).(events.Error)
	require.True(t, ok)
	require.Equal(t, events.CodeBanned, frame.Code)
	require.Equal(t, 0, f.hub.Members(group7))
}

func TestJoinNonMemberForbidden(t *testing.T) {
	f := newWSFixture(t)
	f.memberships.On("Get", mock.Anything, group7, int64(5)).Return(nil, repositories.ErrMembershipNotFound)

	conn := f.dial(t, 5)
	writeEvent(t, conn, events.JoinChat{RoomRef: group7})

	frame, ok := readEvent(t, conn).(events.Error)
	require.True(t, ok)
	require.Equal(t, events.CodeForbidden, frame.Code)
}

func TestMalformedFrameGetsInvalidPayload(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, 6)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance","payload":{}}`)))
	frame, ok := readEvent(t, conn).(events.Error)
	require.True(t, ok)
	require.Equal(t, events.CodeInvalidPayload, frame.Code)
}
