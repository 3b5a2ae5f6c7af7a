package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"activamigos-chat/internal/cooldown"
	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/moderation"
	"activamigos-chat/internal/repositories"
	"activamigos-chat/internal/telemetry"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, room models.RoomRef, senderID int64, content string) (models.ChatMessage, error) {
	args := m.Called(ctx, room, senderID, content)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateSystem(ctx context.Context, room models.RoomRef, content string, kind models.MessageType) (models.ChatMessage, error) {
	args := m.Called(ctx, room, content, kind)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, room models.RoomRef, q models.HistoryQuery) (models.HistoryPage, error) {
	args := m.Called(ctx, room, q)
	var page models.HistoryPage
	if val := args.Get(0); val != nil {
		page = val.(models.HistoryPage)
	}
	return page, args.Error(1)
}

type MembershipRepositoryMock struct {
	mock.Mock
}

func (m *MembershipRepositoryMock) Get(ctx context.Context, room models.RoomRef, userID int64) (models.Membership, error) {
	args := m.Called(ctx, room, userID)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

func (m *MembershipRepositoryMock) GetByID(ctx context.Context, membershipID int64) (models.Membership, error) {
	args := m.Called(ctx, membershipID)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

func (m *MembershipRepositoryMock) TouchChatActivity(ctx context.Context, room models.RoomRef, userID int64) error {
	args := m.Called(ctx, room, userID)
	return args.Error(0)
}

func (m *MembershipRepositoryMock) Unban(ctx context.Context, membershipID int64) (models.Membership, error) {
	args := m.Called(ctx, membershipID)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

type WarningRepositoryMock struct {
	mock.Mock
}

// Issue invokes notice with the mocked outcome so callers' message rendering
// is exercised; the rendered text and type are stored on the outcome.
func (m *WarningRepositoryMock) Issue(ctx context.Context, in repositories.WarningInput, notice repositories.NoticeFunc) (repositories.WarningOutcome, error) {
	args := m.Called(ctx, in)
	var out repositories.WarningOutcome
	if val := args.Get(0); val != nil {
		out = val.(repositories.WarningOutcome)
	}
	if args.Error(1) == nil && notice != nil {
		content, kind := notice(out.Membership.WarningCount, out.Banned())
		out.Notice.Content = content
		out.Notice.MessageType = kind
		out.Notice.IsSystem = true
	}
	return out, args.Error(1)
}

func (m *WarningRepositoryMock) List(ctx context.Context, room models.RoomRef) ([]models.Warning, error) {
	args := m.Called(ctx, room)
	var list []models.Warning
	if val := args.Get(0); val != nil {
		list = val.([]models.Warning)
	}
	return list, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Get(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastRoom(room models.RoomRef, ev events.Event) {
	m.Called(room, ev)
}

func (m *BroadcasterMock) EvictUser(room models.RoomRef, userID int64) {
	m.Called(room, userID)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, rec telemetry.AuditRecord) {
	m.Called(ctx, rec)
}

type CooldownMock struct {
	mock.Mock
}

func (m *CooldownMock) Allow(ctx context.Context, room models.RoomRef, userID int64) (bool, error) {
	args := m.Called(ctx, room, userID)
	return args.Bool(0), args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.MembershipRepository = (*MembershipRepositoryMock)(nil)
var _ repositories.WarningRepository = (*WarningRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ moderation.Broadcaster = (*BroadcasterMock)(nil)
var _ moderation.Auditor = (*AuditorMock)(nil)
var _ cooldown.Store = (*CooldownMock)(nil)
