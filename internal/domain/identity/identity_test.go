package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id, err := New(" u1 ", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, RoleUser, id.Role)

	id, err = New("a1", "ADMIN")
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())

	_, err = New("", "user")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = New("u1", "root")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCanAccess(t *testing.T) {
	owner := Identity{UserID: "u1", Role: RoleUser}
	other := Identity{UserID: "u2", Role: RoleUser}
	admin := Identity{UserID: "a1", Role: RoleAdmin}

	assert.True(t, owner.CanAccess("u1"))
	assert.False(t, other.CanAccess("u1"))
	assert.True(t, admin.CanAccess("u1"))
	assert.ErrorIs(t, other.RequireAdmin(), ErrForbidden)
	assert.NoError(t, admin.RequireAdmin())
}
