// Package chat holds the room rules shared by the websocket and REST
// surfaces: who may join, read and post, and how a post is persisted and
// fanned out.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"activamigos-chat/internal/cooldown"
	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/observability"
	"activamigos-chat/internal/repositories"
)

var (
	ErrInvalidRoom    = errors.New("invalid room")
	ErrNotMember      = errors.New("access denied to chat")
	ErrBanned         = errors.New("you are banned from this chat")
	ErrEmptyMessage   = errors.New("message content is required")
	ErrMessageTooLong = fmt.Errorf("message content exceeds %d characters", models.MaxMessageLength)
	ErrRateLimited    = errors.New("slow down, you are sending messages too fast")
)

// Broadcaster delivers an event to every client joined to a room.
type Broadcaster interface {
	BroadcastRoom(room models.RoomRef, ev events.Event)
}

// Service applies room access rules.
type Service struct {
	memberships repositories.MembershipRepository
	messages    repositories.MessageRepository
	cooldown    cooldown.Store
	hub         Broadcaster
}

// NewService builds a Service. A nil cooldown store disables slow mode.
func NewService(memberships repositories.MembershipRepository, messages repositories.MessageRepository, store cooldown.Store, hub Broadcaster) *Service {
	if store == nil {
		store = cooldown.Disabled{}
	}
	return &Service{memberships: memberships, messages: messages, cooldown: store, hub: hub}
}

// Authorize checks that userID may take part in room and returns the membership.
func (s *Service) Authorize(ctx context.Context, room models.RoomRef, userID int64) (models.Membership, error) {
	if err := room.Validate(); err != nil {
		return models.Membership{}, fmt.Errorf("%w: %v", ErrInvalidRoom, err)
	}
	m, err := s.memberships.Get(ctx, room, userID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.Membership{}, ErrNotMember
	}
	if err != nil {
		return models.Membership{}, err
	}
	if !m.IsActive {
		return models.Membership{}, ErrNotMember
	}
	if m.Status == models.StatusBanned {
		return models.Membership{}, ErrBanned
	}
	return m, nil
}

// History returns a page of room history for a member.
func (s *Service) History(ctx context.Context, room models.RoomRef, userID int64, q models.HistoryQuery) (models.HistoryPage, error) {
	if _, err := s.Authorize(ctx, room, userID); err != nil {
		return models.HistoryPage{}, err
	}
	return s.messages.ListPage(ctx, room, q)
}

// Post validates and stores a message, records chat activity and broadcasts
// new_message to the room. channel labels the metric ("ws" or "rest").
func (s *Service) Post(ctx context.Context, room models.RoomRef, userID int64, content, channel string) (models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		observability.IncSendRejected("empty")
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		observability.IncSendRejected("too_long")
		return models.ChatMessage{}, ErrMessageTooLong
	}
	if _, err := s.Authorize(ctx, room, userID); err != nil {
		if errors.Is(err, ErrBanned) {
			observability.IncSendRejected("banned")
		}
		return models.ChatMessage{}, err
	}

	ok, err := s.cooldown.Allow(ctx, room, userID)
	if err != nil {
		log.Printf("chat: cooldown check failed, allowing: room=%s user_id=%d err=%v", room, userID, err)
	} else if !ok {
		observability.IncSendRejected("rate_limited")
		return models.ChatMessage{}, ErrRateLimited
	}

	msg, err := s.messages.Create(ctx, room, userID, content)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("store message: %w", err)
	}
	if err := s.memberships.TouchChatActivity(ctx, room, userID); err != nil {
		log.Printf("chat: touch activity failed: room=%s user_id=%d err=%v", room, userID, err)
	}

	observability.IncMessage(string(room.ContextType), channel)
	if s.hub != nil {
		s.hub.BroadcastRoom(room, events.NewMessage{ChatMessage: msg})
	}
	return msg, nil
}
