package models

import "time"

// SemaphoreColor is the traffic-light reputation shown next to a member.
type SemaphoreColor string

const (
	SemaphoreGrey       SemaphoreColor = "grey"
	SemaphoreLightGreen SemaphoreColor = "light_green"
	SemaphoreDarkGreen  SemaphoreColor = "dark_green"
	SemaphoreYellow     SemaphoreColor = "yellow"
	SemaphoreRed        SemaphoreColor = "red"
)

// MembershipStatus is the moderation standing of a member in one context.
type MembershipStatus string

const (
	StatusActive    MembershipStatus = "ACTIVE"
	StatusBanned    MembershipStatus = "BANNED"
	StatusNotMember MembershipStatus = "NOT_MEMBER"
)

// BanThreshold is the warning count at which a member is banned.
// Only the server applies it.
const BanThreshold = 3

// WarningPenaltyPoints is deducted from the target for every warning.
const WarningPenaltyPoints = 100

// Membership is a user's participation in a group or activity.
type Membership struct {
	ID           int64            `db:"id" json:"id"`
	ContextType  ContextType      `db:"context_type" json:"context_type"`
	ContextID    int64            `db:"context_id" json:"context_id"`
	UserID       int64            `db:"user_id" json:"user_id"`
	Role         string           `db:"role" json:"role"`
	WarningCount int              `db:"warning_count" json:"warning_count"`
	Status       MembershipStatus `db:"status" json:"status"`
	IsActive     bool             `db:"is_active" json:"is_active"`
	JoinedAt     time.Time        `db:"joined_at" json:"joined_at"`
	LastChatAt   *time.Time       `db:"last_chat_at" json:"last_chat_at,omitempty"`
}

// Room returns the membership's context.
func (m Membership) Room() RoomRef {
	return RoomRef{ContextType: m.ContextType, ContextID: m.ContextID}
}

// SemaphoreColor derives the traffic light for the membership.
func (m Membership) SemaphoreColor() SemaphoreColor {
	switch {
	case !m.IsActive:
		return SemaphoreGrey
	case m.Status == StatusBanned:
		return SemaphoreRed
	case m.WarningCount >= 1:
		return SemaphoreYellow
	case m.LastChatAt != nil:
		return SemaphoreDarkGreen
	default:
		return SemaphoreLightGreen
	}
}

// CanChat reports whether the member may send and receive room messages.
func (m Membership) CanChat() bool {
	return m.IsActive && m.Status == StatusActive
}

// ModerationStatus is a point-in-time snapshot of a user's standing in a context.
type ModerationStatus struct {
	WarningCount   int              `json:"warning_count"`
	Status         MembershipStatus `json:"status"`
	SemaphoreColor SemaphoreColor   `json:"semaphore_color"`
	CanChat        bool             `json:"can_chat"`
	LastChatAt     *time.Time       `json:"last_chat_at,omitempty"`
}

// StatusOf builds the snapshot for a membership; nil means the user is not a member.
func StatusOf(m *Membership) ModerationStatus {
	if m == nil {
		return ModerationStatus{Status: StatusNotMember, SemaphoreColor: SemaphoreGrey}
	}
	return ModerationStatus{
		WarningCount:   m.WarningCount,
		Status:         m.Status,
		SemaphoreColor: m.SemaphoreColor(),
		CanChat:        m.CanChat(),
		LastChatAt:     m.LastChatAt,
	}
}

// Banned gates chat access. The status field is authoritative; the color is
// display only.
func (s ModerationStatus) Banned() bool {
	return s.Status == StatusBanned
}

// Consistent reports whether color and status agree on the ban.
func (s ModerationStatus) Consistent() bool {
	return (s.SemaphoreColor == SemaphoreRed) == (s.Status == StatusBanned)
}

// UserRef is the short user projection embedded in warnings.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Warning is a moderation notice issued against a member.
type Warning struct {
	ID           int64       `db:"id" json:"id"`
	ContextType  ContextType `db:"context_type" json:"context_type"`
	ContextID    int64       `db:"context_id" json:"context_id"`
	TargetUserID int64       `db:"target_user_id" json:"target_user_id"`
	IssuedBy     int64       `db:"issued_by" json:"issued_by"`
	Reason       string      `db:"reason" json:"reason"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	TargetUser   *UserRef    `db:"-" json:"target_user,omitempty"`
	Issuer       *UserRef    `db:"-" json:"issuer,omitempty"`
}

// IssueWarningRequest is the body of POST /api/moderation/warnings.
type IssueWarningRequest struct {
	ContextType  ContextType `json:"context_type"`
	ContextID    int64       `json:"context_id"`
	TargetUserID int64       `json:"target_user_id"`
	Reason       string      `json:"reason"`
}

// IssueWarningResult reports the warning and the target's new standing.
type IssueWarningResult struct {
	Message      string  `json:"message"`
	Warning      Warning `json:"warning"`
	WarningCount int     `json:"warning_count"`
	Banned       bool    `json:"banned"`
}
