package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"activamigos-chat/internal/auth"
	"activamigos-chat/internal/models"
)

func TestSubscribeYieldsCurrentThenLatest(t *testing.T) {
	p := NewProvider()
	ch, cancel := p.Subscribe()
	defer cancel()

	require.Nil(t, <-ch)

	p.Set(&models.Identity{UserID: 1, Username: "ana"})
	p.Set(&models.Identity{UserID: 2, Username: "bob"})
	p.Set(&models.Identity{UserID: 3, Username: "cy"})

	got := <-ch
	require.NotNil(t, got)
	require.Equal(t, int64(3), got.UserID)

	p.Clear()
	require.Nil(t, <-ch)
	require.Nil(t, p.Current())
}

func TestCancelStopsDelivery(t *testing.T) {
	p := NewProvider()
	ch, cancel := p.Subscribe()
	<-ch
	cancel()
	cancel()

	p.Set(&models.Identity{UserID: 1})
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	p := NewProvider()
	in := &models.Identity{UserID: 1, Username: "ana"}
	p.Set(in)
	in.Username = "mutated"

	cur := p.Current()
	require.Equal(t, "ana", cur.Username)
	cur.Username = "again"
	require.Equal(t, "ana", p.Current().Username)
}

func TestFromToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "test", time.Hour)
	token, err := tokens.Issue(8, "dee", models.RoleOrganizer)
	require.NoError(t, err)

	id, err := FromToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(8), id.UserID)
	require.Equal(t, models.RoleOrganizer, id.Role)
	require.Equal(t, token, id.Token)

	_, err = FromToken("garbage")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}
