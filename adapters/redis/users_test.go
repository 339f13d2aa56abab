package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradekit/adapters/storetest"
	"gradekit/core"
	"gradekit/engine"
)

var _ engine.UserStore = (*UserStore)(nil)

func TestUserStoreConformance(t *testing.T) {
	storetest.RunUsers(t, func(t *testing.T) engine.UserStore {
		client, _ := newTestClient(t)
		return NewWithClient(client).Users()
	})
}

func TestUserStore_IndexesDroppedOnDelete(t *testing.T) {
	client, mr := newTestClient(t)
	users := NewUserStore(client)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, core.User{
		Username: "ann", Role: core.RoleStudent, Name: "Ann", StudentID: "S1", Class: "10A", PasswordHash: []byte("h"),
	}))
	members, err := mr.SMembers(userStudentKey("S1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ann"}, members)

	require.NoError(t, users.Delete(ctx, "ann"))
	assert.False(t, mr.Exists(userStudentKey("S1")))
	assert.False(t, mr.Exists(userNameKey("Ann")))
	assert.False(t, mr.Exists(userKey("ann")))
}
