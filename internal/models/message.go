package models

import "time"

// MessageType distinguishes user chat from synthetic moderation notices.
type MessageType string

const (
	MessageUser    MessageType = "USER"
	MessageSystem  MessageType = "SYSTEM"
	MessageWarning MessageType = "WARNING"
	MessageBan     MessageType = "BAN"
)

// MaxMessageLength bounds chat content in runes.
const MaxMessageLength = 2000

// Sender carries the denormalized display fields of a message author.
type Sender struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// DisplayName prefers the real name over the username.
func (s Sender) DisplayName() string {
	if s.FirstName != "" {
		if s.LastName != "" {
			return s.FirstName + " " + s.LastName
		}
		return s.FirstName
	}
	return s.Username
}

// ChatMessage is one entry in a room. IDs are server-assigned and increase
// monotonically within a room.
type ChatMessage struct {
	ID          int64       `json:"id"`
	ContextType ContextType `json:"context_type"`
	ContextID   int64       `json:"context_id"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	SenderID    *int64      `json:"sender_id"`
	Sender      *Sender     `json:"sender,omitempty"`
	IsSystem    bool        `json:"is_system"`
	MessageType MessageType `json:"message_type"`
}

// Room returns the room the message belongs to.
func (m ChatMessage) Room() RoomRef {
	return RoomRef{ContextType: m.ContextType, ContextID: m.ContextID}
}

// HistoryQuery selects one page of room history. Page 1 is the newest page.
// BeforeID, when set, restricts the page to messages older than that id.
type HistoryQuery struct {
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	BeforeID int64 `json:"before_id,omitempty"`
}

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Normalize clamps the query to valid bounds.
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// Pagination describes the position of a HistoryPage.
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	HasNext bool `json:"has_next"`
}

// HistoryPage is a page of messages ordered ascending by id.
type HistoryPage struct {
	Messages   []ChatMessage `json:"messages"`
	Pagination Pagination    `json:"pagination"`
}
