// Package events defines the closed set of frames exchanged over the chat
// websocket. Every frame is a JSON envelope {"type": ..., "payload": ...};
// Decode rejects types outside this package's set.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"activamigos-chat/internal/models"
)

// Type names a frame.
type Type string

const (
	// client -> server
	TypeJoinChat    Type = "join_chat"
	TypeLeaveChat   Type = "leave_chat"
	TypeSendMessage Type = "send_message"

	// server -> client
	TypeNewMessage    Type = "new_message"
	TypeJoinedChat    Type = "joined_chat"
	TypeLeftChat      Type = "left_chat"
	TypeMessageSent   Type = "message_sent"
	TypeError         Type = "error"
	TypeWarningIssued Type = "warning_issued"
	TypeUserBanned    Type = "user_banned"
	TypeUserUnbanned  Type = "user_unbanned"
)

// ErrorCode classifies error frames.
type ErrorCode string

const (
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeForbidden      ErrorCode = "forbidden"
	CodeBanned         ErrorCode = "banned"
	CodeInvalidPayload ErrorCode = "invalid_payload"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeInternal       ErrorCode = "internal"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event")
)

// Event is implemented only by the frame types below.
type Event interface {
	Type() Type
	sealed()
}

type JoinChat struct {
	models.RoomRef
}

type LeaveChat struct {
	models.RoomRef
}

type SendMessage struct {
	models.RoomRef
	Content string `json:"content"`
}

// NewMessage carries a persisted message; the payload is the message itself.
type NewMessage struct {
	models.ChatMessage
}

type JoinedChat struct {
	models.RoomRef
	Room string `json:"room"`
}

type LeftChat struct {
	models.RoomRef
	Room string `json:"room"`
}

// MessageSent acknowledges a send_message to its sender.
type MessageSent struct {
	models.RoomRef
	MessageID int64 `json:"message_id"`
}

type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Room    *models.RoomRef `json:"room,omitempty"`
}

// ModerationNotice is the shared payload of moderation broadcasts.
type ModerationNotice struct {
	models.RoomRef
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Reason       string `json:"reason,omitempty"`
	WarningCount int    `json:"warning_count"`
}

type WarningIssued struct {
	ModerationNotice
}

type UserBanned struct {
	ModerationNotice
}

type UserUnbanned struct {
	ModerationNotice
}

func (JoinChat) Type() Type      { return TypeJoinChat }
func (LeaveChat) Type() Type     { return TypeLeaveChat }
func (SendMessage) Type() Type   { return TypeSendMessage }
func (NewMessage) Type() Type    { return TypeNewMessage }
func (JoinedChat) Type() Type    { return TypeJoinedChat }
func (LeftChat) Type() Type      { return TypeLeftChat }
func (MessageSent) Type() Type   { return TypeMessageSent }
func (Error) Type() Type         { return TypeError }
func (WarningIssued) Type() Type { return TypeWarningIssued }
func (UserBanned) Type() Type    { return TypeUserBanned }
func (UserUnbanned) Type() Type  { return TypeUserUnbanned }

func (JoinChat) sealed()      {}
func (LeaveChat) sealed()     {}
func (SendMessage) sealed()   {}
func (NewMessage) sealed()    {}
func (JoinedChat) sealed()    {}
func (LeftChat) sealed()      {}
func (MessageSent) sealed()   {}
func (Error) sealed()         {}
func (WarningIssued) sealed() {}
func (UserBanned) sealed()    {}
func (UserUnbanned) sealed()  {}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps e in its envelope.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type(), err)
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: payload})
}

// Decode parses one envelope into its concrete frame type.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("{}")
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeJoinChat:
		ev, err = decodeAs[JoinChat](env.Payload)
	case TypeLeaveChat:
		ev, err = decodeAs[LeaveChat](env.Payload)
	case TypeSendMessage:
		ev, err = decodeAs[SendMessage](env.Payload)
	case TypeNewMessage:
		ev, err = decodeAs[NewMessage](env.Payload)
	case TypeJoinedChat:
		ev, err = decodeAs[JoinedChat](env.Payload)
	case TypeLeftChat:
		ev, err = decodeAs[LeftChat](env.Payload)
	case TypeMessageSent:
		ev, err = decodeAs[MessageSent](env.Payload)
	case TypeError:
		ev, err = decodeAs[Error](env.Payload)
	case TypeWarningIssued:
		ev, err = decodeAs[WarningIssued](env.Payload)
	case TypeUserBanned:
		ev, err = decodeAs[UserBanned](env.Payload)
	case TypeUserUnbanned:
		ev, err = decodeAs[UserUnbanned](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return ev, nil
}

func decodeAs[T Event](payload json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// RoomOf returns the room an event is scoped to, if any.
func RoomOf(e Event) (models.RoomRef, bool) {
	switch v := e.(type) {
	case JoinChat:
		return v.RoomRef, true
	case LeaveChat:
		return v.RoomRef, true
	case SendMessage:
		return v.RoomRef, true
	case NewMessage:
		return v.ChatMessage.Room(), true
	case JoinedChat:
		return v.RoomRef, true
	case LeftChat:
		return v.RoomRef, true
	case MessageSent:
		return v.RoomRef, true
	case Error:
		if v.Room != nil {
			return *v.Room, true
		}
	case WarningIssued:
		return v.RoomRef, true
	case UserBanned:
		return v.RoomRef, true
	case UserUnbanned:
		return v.RoomRef, true
	}
	return models.RoomRef{}, false
}
