package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_BindAndUnbind(t *testing.T) {
	s := New()
	assert.False(t, s.SignedIn())

	require.NoError(t, s.Bind(7, 99))
	assert.True(t, s.SignedIn())
	user, ok := s.User()
	assert.True(t, ok)
	assert.Equal(t, int64(7), user)
	session, ok := s.Session()
	assert.True(t, ok)
	assert.Equal(t, int64(99), session)

	assert.Error(t, s.Bind(8, 100), "rebinding an already signed-in connection must fail")

	s.Unbind()
	assert.False(t, s.SignedIn())
	_, ok = s.User()
	assert.False(t, ok)
}

func TestState_AttachDetachFarm(t *testing.T) {
	s := New()
	assert.Error(t, s.AttachFarm(1), "cannot attach a farm before signing in")

	require.NoError(t, s.Bind(1, 2))
	require.NoError(t, s.AttachFarm(55))
	assert.True(t, s.FarmAttached())
	farmSession, ok := s.FarmSession()
	assert.True(t, ok)
	assert.Equal(t, int64(55), farmSession)

	assert.Error(t, s.AttachFarm(56), "attaching a second farm while one is attached must fail")

	s.DetachFarm()
	assert.False(t, s.FarmAttached())
}
