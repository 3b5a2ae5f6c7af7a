package chatsession

import "activamigos-chat/internal/models"

// State is the session's position in the chat lifecycle.
type State int

const (
	// Idle: no identity.
	Idle State = iota
	// Initializing: identity present, waiting for a room and a connection.
	Initializing
	// Joining: join_chat sent, waiting for the viewer's moderation status.
	Joining
	// Active: live and allowed to chat.
	Active
	// Banned: send disabled, nothing buffered.
	Banned
	// Suspended: the connection dropped while a room was joined.
	Suspended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Banned:
		return "banned"
	case Suspended:
		return "suspended"
	}
	return "unknown"
}

// View is an immutable snapshot of the session for rendering.
type View struct {
	State     State
	Room      *models.RoomRef
	Connected bool
	Messages  []models.ChatMessage

	// Status is nil until the first successful fetch for the room.
	// StatusUnknown is set when the last fetch failed; the viewer is then
	// treated as not banned.
	Status        *models.ModerationStatus
	StatusUnknown bool

	HistoryLoading bool
	HistoryErr     error
	HasMore        bool
	CanSend        bool

	// LastError is the most recent error frame from the server.
	LastError string
}
