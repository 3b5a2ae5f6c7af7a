package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"activamigos-chat/internal/chat"
	"activamigos-chat/internal/mocks"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/repositories"
)

var activityRoom = models.RoomRef{ContextType: models.ContextActivity, ContextID: 4}

func withIdentity(userID int64, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("username", "tester")
		c.Set("role", role)
		c.Next()
	}
}

func setupChatRouter(h *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withIdentity(1, models.RoleUser))
	r.GET("/api/chat/history", h.History)
	r.POST("/api/chat/messages", h.PostMessage)
	return r
}

func member(userID int64, status models.MembershipStatus) models.Membership {
	return models.Membership{ContextType: activityRoom.ContextType, ContextID: activityRoom.ContextID, UserID: userID, Status: status, IsActive: true}
}

func TestHistoryOK(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	h := NewChatHandler(chat.NewService(memberships, messages, nil, nil))

	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(member(1, models.StatusActive), nil).Once()
	messages.On("ListPage", mock.Anything, activityRoom, models.HistoryQuery{Page: 2, PerPage: 10, BeforeID: 55}).
		Return(models.HistoryPage{
			Messages:   []models.ChatMessage{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}},
			Pagination: models.Pagination{Page: 2, PerPage: 10, HasNext: true},
		}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?context_type=ACTIVITY&context_id=4&page=2&per_page=10&before_id=55", nil)
	rec := httptest.NewRecorder()
	setupChatRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var page models.HistoryPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	require.True(t, page.Pagination.HasNext)
	messages.AssertExpectations(t)
}

func TestHistoryValidation(t *testing.T) {
	h := NewChatHandler(chat.NewService(new(mocks.MembershipRepositoryMock), new(mocks.MessageRepositoryMock), nil, nil))
	r := setupChatRouter(h)

	for _, target := range []string{
		"/api/chat/history",
		"/api/chat/history?context_type=CHAT&context_id=4",
		"/api/chat/history?context_type=GROUP&context_id=abc",
		"/api/chat/history?context_type=GROUP&context_id=4&page=-1",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHistoryDeniedToBannedAndNonMembers(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	h := NewChatHandler(chat.NewService(memberships, messages, nil, nil))
	r := setupChatRouter(h)

	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(member(1, models.StatusBanned), nil).Once()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history?context_type=ACTIVITY&context_id=4", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(nil, repositories.ErrMembershipNotFound).Once()
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history?context_type=ACTIVITY&context_id=4", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	messages.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageCreated(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	store := new(mocks.CooldownMock)
	hub := new(mocks.BroadcasterMock)
	h := NewChatHandler(chat.NewService(memberships, messages, store, hub))

	stored := models.ChatMessage{ID: 9, ContextType: models.ContextActivity, ContextID: 4, Content: "hello", MessageType: models.MessageUser}
	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(member(1, models.StatusActive), nil).Once()
	store.On("Allow", mock.Anything, activityRoom, int64(1)).Return(true, nil).Once()
	messages.On("Create", mock.Anything, activityRoom, int64(1), "hello").Return(stored, nil).Once()
	memberships.On("TouchChatActivity", mock.Anything, activityRoom, int64(1)).Return(nil).Once()
	hub.On("BroadcastRoom", activityRoom, mock.Anything).Once()

	body, _ := json.Marshal(map[string]any{"context_type": "ACTIVITY", "context_id": 4, "content": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	setupChatRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, int64(9), got.ID)
	hub.AssertExpectations(t)
}

func TestPostMessageErrors(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	store := new(mocks.CooldownMock)
	h := NewChatHandler(chat.NewService(memberships, messages, store, nil))
	r := setupChatRouter(h)

	post := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusBadRequest, post(`{"context_type":"ACTIVITY"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"context_type":"ACTIVITY","context_id":4,"content":"   "}`).Code)

	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(member(1, models.StatusActive), nil).Once()
	store.On("Allow", mock.Anything, activityRoom, int64(1)).Return(false, nil).Once()
	require.Equal(t, http.StatusTooManyRequests, post(`{"context_type":"ACTIVITY","context_id":4,"content":"hi"}`).Code)

	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(member(1, models.StatusBanned), nil).Once()
	require.Equal(t, http.StatusForbidden, post(`{"context_type":"ACTIVITY","context_id":4,"content":"hi"}`).Code)

	memberships.On("Get", mock.Anything, activityRoom, int64(1)).Return(member(1, models.StatusActive), nil).Once()
	store.On("Allow", mock.Anything, activityRoom, int64(1)).Return(true, nil).Once()
	messages.On("Create", mock.Anything, activityRoom, int64(1), "hi").Return(nil, assert.AnError).Once()
	rec := post(`{"context_type":"ACTIVITY","context_id":4,"content":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"failed to store message"}`, rec.Body.String())
}
