package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMembershipSemaphoreColor(t *testing.T) {
	chatted := time.Now()
	cases := []struct {
		name string
		m    Membership
		want SemaphoreColor
	}{
		{"inactive", Membership{IsActive: false, Status: StatusBanned}, SemaphoreGrey},
		{"banned", Membership{IsActive: true, Status: StatusBanned, WarningCount: 3}, SemaphoreRed},
		{"warned", Membership{IsActive: true, Status: StatusActive, WarningCount: 1, LastChatAt: &chatted}, SemaphoreYellow},
		{"chatted", Membership{IsActive: true, Status: StatusActive, LastChatAt: &chatted}, SemaphoreDarkGreen},
		{"joined", Membership{IsActive: true, Status: StatusActive}, SemaphoreLightGreen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.m.SemaphoreColor())
		})
	}
}

func TestStatusOfNilMembership(t *testing.T) {
	st := StatusOf(nil)
	require.Equal(t, StatusNotMember, st.Status)
	require.Equal(t, SemaphoreGrey, st.SemaphoreColor)
	require.False(t, st.Banned())
	require.False(t, st.CanChat)
}

func TestModerationStatusBannedFollowsStatus(t *testing.T) {
	redOnly := ModerationStatus{Status: StatusActive, SemaphoreColor: SemaphoreRed}
	require.False(t, redOnly.Banned())
	require.False(t, redOnly.Consistent())

	banned := StatusOf(&Membership{IsActive: true, Status: StatusBanned})
	require.True(t, banned.Banned())
	require.True(t, banned.Consistent())
}

func TestParseContextType(t *testing.T) {
	ct, err := ParseContextType("group")
	require.NoError(t, err)
	require.Equal(t, ContextGroup, ct)

	ct, err = ParseContextType(" ACTIVITY ")
	require.NoError(t, err)
	require.Equal(t, ContextActivity, ct)

	_, err = ParseContextType("chat")
	require.ErrorIs(t, err, ErrInvalidContext)
}

func TestRoomRefKey(t *testing.T) {
	require.Equal(t, "activity_42", RoomRef{ContextType: ContextActivity, ContextID: 42}.Key())
	require.Error(t, RoomRef{ContextType: ContextGroup}.Validate())
}

func TestHistoryQueryNormalize(t *testing.T) {
	q := HistoryQuery{PerPage: 500}.Normalize()
	require.Equal(t, 1, q.Page)
	require.Equal(t, MaxPerPage, q.PerPage)
	require.Equal(t, DefaultPerPage, HistoryQuery{}.Normalize().PerPage)
}
