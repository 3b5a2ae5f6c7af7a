package models

import (
	"errors"
	"fmt"
	"strings"
)

// ContextType identifies the entity that owns a chat room.
type ContextType string

const (
	ContextGroup    ContextType = "GROUP"
	ContextActivity ContextType = "ACTIVITY"
)

var ErrInvalidContext = errors.New("invalid context_type, must be GROUP or ACTIVITY")

// ParseContextType accepts either case ("group", "GROUP").
func ParseContextType(raw string) (ContextType, error) {
	switch ContextType(strings.ToUpper(strings.TrimSpace(raw))) {
	case ContextGroup:
		return ContextGroup, nil
	case ContextActivity:
		return ContextActivity, nil
	}
	return "", ErrInvalidContext
}

// Valid reports whether t is one of the known context types.
func (t ContextType) Valid() bool {
	return t == ContextGroup || t == ContextActivity
}

// RoomRef identifies one chat scope.
type RoomRef struct {
	ContextType ContextType `json:"context_type" db:"context_type"`
	ContextID   int64       `json:"context_id" db:"context_id"`
}

// Validate checks both halves of the reference.
func (r RoomRef) Validate() error {
	if !r.ContextType.Valid() {
		return ErrInvalidContext
	}
	if r.ContextID <= 0 {
		return errors.New("invalid context_id")
	}
	return nil
}

// Key is the room name used by the hub and in logs, e.g. "group_7".
func (r RoomRef) Key() string {
	return fmt.Sprintf("%s_%d", strings.ToLower(string(r.ContextType)), r.ContextID)
}

func (r RoomRef) String() string {
	return r.Key()
}
