// Package moderation applies warnings, bans and unbans to room memberships
// and reports a member's standing.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/observability"
	"activamigos-chat/internal/repositories"
	"activamigos-chat/internal/telemetry"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrForbidden      = errors.New("access denied")
	ErrNotMember      = errors.New("user is not a member of this group/activity")
	ErrUserNotFound   = errors.New("target user not found")
	ErrNoMembership   = errors.New("membership not found")
)

// MaxReasonLength bounds a warning reason.
const MaxReasonLength = 255

// Broadcaster fans events out to the clients joined to a room.
type Broadcaster interface {
	BroadcastRoom(room models.RoomRef, ev events.Event)
	EvictUser(room models.RoomRef, userID int64)
}

// Auditor records moderation actions.
type Auditor interface {
	Emit(ctx context.Context, rec telemetry.AuditRecord)
}

// Actor is the authenticated caller of a moderation operation.
type Actor struct {
	models.Identity
	RequestID string
}

// Service implements the moderation operations.
type Service struct {
	memberships repositories.MembershipRepository
	warnings    repositories.WarningRepository
	messages    repositories.MessageRepository
	users       repositories.UserRepository
	hub         Broadcaster
	audit       Auditor
}

// NewService builds a Service. hub and audit may be nil.
func NewService(
	memberships repositories.MembershipRepository,
	warnings repositories.WarningRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	hub Broadcaster,
	audit Auditor,
) *Service {
	return &Service{
		memberships: memberships,
		warnings:    warnings,
		messages:    messages,
		users:       users,
		hub:         hub,
		audit:       audit,
	}
}

// Status returns userID's standing in room. A zero userID means the caller;
// only moderators may look up someone else.
func (s *Service) Status(ctx context.Context, viewer Actor, room models.RoomRef, userID int64) (models.ModerationStatus, error) {
	if err := room.Validate(); err != nil {
		return models.ModerationStatus{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if userID == 0 {
		userID = viewer.UserID
	}
	if userID != viewer.UserID && !viewer.Role.CanModerate() {
		return models.ModerationStatus{}, ErrForbidden
	}

	m, err := s.memberships.Get(ctx, room, userID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.StatusOf(nil), nil
	}
	if err != nil {
		return models.ModerationStatus{}, err
	}
	return models.StatusOf(&m), nil
}

// IssueWarning records a warning against a member, banning them when the
// threshold is reached, and announces it in the room.
func (s *Service) IssueWarning(ctx context.Context, issuer Actor, req models.IssueWarningRequest) (models.IssueWarningResult, error) {
	if !issuer.Role.CanModerate() {
		return models.IssueWarningResult{}, ErrForbidden
	}
	req.Reason = strings.TrimSpace(req.Reason)
	room := models.RoomRef{ContextType: req.ContextType, ContextID: req.ContextID}
	if err := room.Validate(); err != nil {
		return models.IssueWarningResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.TargetUserID <= 0 || req.Reason == "" {
		return models.IssueWarningResult{}, fmt.Errorf("%w: target_user_id and reason are required", ErrInvalidRequest)
	}
	if len([]rune(req.Reason)) > MaxReasonLength {
		return models.IssueWarningResult{}, fmt.Errorf("%w: reason exceeds %d characters", ErrInvalidRequest, MaxReasonLength)
	}

	target, err := s.users.Get(ctx, req.TargetUserID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.IssueWarningResult{}, ErrUserNotFound
	}
	if err != nil {
		return models.IssueWarningResult{}, err
	}

	out, err := s.warnings.Issue(ctx, repositories.WarningInput{
		Room:         room,
		TargetUserID: target.ID,
		IssuedBy:     issuer.UserID,
		Reason:       req.Reason,
	}, func(count int, banned bool) (string, models.MessageType) {
		if banned {
			return fmt.Sprintf("%s has been banned from this chat after receiving %d warnings.", target.Username, models.BanThreshold), models.MessageBan
		}
		return fmt.Sprintf("%s has received a warning: %s (%d/%d warnings)", target.Username, req.Reason, count, models.BanThreshold), models.MessageWarning
	})
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.IssueWarningResult{}, ErrNotMember
	}
	if err != nil {
		return models.IssueWarningResult{}, err
	}

	ref := target.Ref()
	out.Warning.TargetUser = &ref
	out.Warning.Issuer = &models.UserRef{ID: issuer.UserID, Username: issuer.Username}

	banned := out.Banned()
	notice := events.ModerationNotice{
		RoomRef:      room,
		UserID:       target.ID,
		Username:     target.Username,
		Reason:       req.Reason,
		WarningCount: out.Membership.WarningCount,
	}
	action := "warning"
	if banned {
		action = "ban"
		s.broadcast(room, events.UserBanned{ModerationNotice: notice}, out.Notice)
		if s.hub != nil {
			s.hub.EvictUser(room, target.ID)
		}
	} else {
		s.broadcast(room, events.WarningIssued{ModerationNotice: notice}, out.Notice)
	}

	observability.IncModeration(action)
	log.Printf("moderation: action=%s room=%s target=%d issuer=%d warnings=%d", action, room, target.ID, issuer.UserID, out.Membership.WarningCount)
	s.emit(ctx, issuer, telemetry.AuditRecord{
		Action:       action,
		Room:         room.Key(),
		TargetUserID: target.ID,
		Text:         out.Notice.Content,
	})

	return models.IssueWarningResult{
		Message:      "Warning issued successfully",
		Warning:      out.Warning,
		WarningCount: out.Membership.WarningCount,
		Banned:       banned,
	}, nil
}

// Unban restores a banned membership. The warning count is kept.
func (s *Service) Unban(ctx context.Context, actor Actor, membershipID int64) (models.Membership, error) {
	if actor.Role != models.RoleSuperAdmin {
		return models.Membership{}, ErrForbidden
	}
	if membershipID <= 0 {
		return models.Membership{}, fmt.Errorf("%w: invalid membership id", ErrInvalidRequest)
	}

	m, err := s.memberships.Unban(ctx, membershipID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.Membership{}, ErrNoMembership
	}
	if err != nil {
		return models.Membership{}, err
	}

	username := fmt.Sprintf("user %d", m.UserID)
	if u, err := s.users.Get(ctx, m.UserID); err == nil {
		username = u.Username
	} else {
		log.Printf("moderation: unban user lookup failed: user_id=%d err=%v", m.UserID, err)
	}

	room := m.Room()
	msg, err := s.messages.CreateSystem(ctx, room, fmt.Sprintf("%s has been unbanned and can now participate in the chat.", username), models.MessageSystem)
	if err != nil {
		return models.Membership{}, err
	}

	s.broadcast(room, events.UserUnbanned{ModerationNotice: events.ModerationNotice{
		RoomRef:      room,
		UserID:       m.UserID,
		Username:     username,
		WarningCount: m.WarningCount,
	}}, msg)

	observability.IncModeration("unban")
	log.Printf("moderation: action=unban room=%s target=%d actor=%d", room, m.UserID, actor.UserID)
	s.emit(ctx, actor, telemetry.AuditRecord{
		Action:       "unban",
		Room:         room.Key(),
		TargetUserID: m.UserID,
		Text:         msg.Content,
	})
	return m, nil
}

// ListWarnings returns the warnings issued in room, newest first.
func (s *Service) ListWarnings(ctx context.Context, actor Actor, room models.RoomRef) ([]models.Warning, error) {
	if !actor.Role.CanModerate() {
		return nil, ErrForbidden
	}
	if err := room.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.warnings.List(ctx, room)
}

func (s *Service) broadcast(room models.RoomRef, notice events.Event, msg models.ChatMessage) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastRoom(room, notice)
	s.hub.BroadcastRoom(room, events.NewMessage{ChatMessage: msg})
}

func (s *Service) emit(ctx context.Context, actor Actor, rec telemetry.AuditRecord) {
	if s.audit == nil {
		return
	}
	rec.ActorID = actor.UserID
	rec.RequestID = actor.RequestID
	s.audit.Emit(ctx, rec)
}
