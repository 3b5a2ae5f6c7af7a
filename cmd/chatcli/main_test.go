package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"activamigos-chat/internal/models"
)

func TestParseLine(t *testing.T) {
	require.Equal(t, command{name: "send", text: "hola"}, parseLine("  hola "))
	require.Equal(t, command{name: "room", args: []string{"group", "7"}}, parseLine("/room group 7"))
	require.Equal(t, command{name: "quit", args: []string{}}, parseLine("/QUIT"))
	require.Equal(t, command{name: "send", text: "/"}, parseLine("/"))
}

func TestParseRoom(t *testing.T) {
	room, err := parseRoom([]string{"activity", "42"})
	require.NoError(t, err)
	require.Equal(t, models.RoomRef{ContextType: models.ContextActivity, ContextID: 42}, room)

	_, err = parseRoom([]string{"chat", "1"})
	require.ErrorIs(t, err, models.ErrInvalidContext)
	_, err = parseRoom([]string{"group", "-1"})
	require.Error(t, err)
	_, err = parseRoom([]string{"group"})
	require.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	require.Equal(t, "[3] ** bob has been banned", formatMessage(models.ChatMessage{ID: 3, IsSystem: true, Content: "bob has been banned"}))
	require.Equal(t, "[4] unknown: hi", formatMessage(models.ChatMessage{ID: 4, Content: "hi"}))
}
