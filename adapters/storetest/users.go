package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradekit/core"
	"gradekit/engine"
)

// RunUsers exercises user store behaviour. newStore must return an empty store.
func RunUsers(t *testing.T, newStore func(t *testing.T) engine.UserStore) {
	t.Run("CreateGetDelete", func(t *testing.T) { testUserCRUD(t, newStore(t)) })
	t.Run("StudentLookups", func(t *testing.T) { testStudentLookups(t, newStore(t)) })
}

func testUserCRUD(t *testing.T, s engine.UserStore) {
	ctx := context.Background()
	teacher := core.User{
		Username:     "mr-t",
		PasswordHash: []byte("$2a$hash"),
		Role:         core.RoleTeacher,
		Name:         "Mr T",
		Subjects:     []core.Subject{"math", "physics"},
		Classes:      []core.ClassName{"10A"},
	}
	require.NoError(t, s.Create(ctx, teacher))
	require.ErrorIs(t, s.Create(ctx, core.User{Username: "mr-t", Role: core.RoleAdmin, PasswordHash: []byte("x")}), core.ErrConflict)

	got, err := s.Get(ctx, "mr-t")
	require.NoError(t, err)
	assert.Equal(t, teacher, got)

	_, err = s.Get(ctx, "nobody")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Create(ctx, core.User{Username: "admin", Role: core.RoleAdmin, PasswordHash: []byte("x")}))
	names, err := s.ListUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "mr-t"}, names)

	require.NoError(t, s.Delete(ctx, "mr-t"))
	require.ErrorIs(t, s.Delete(ctx, "mr-t"), core.ErrNotFound)
	names, err = s.ListUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, names)
}

func testStudentLookups(t *testing.T, s engine.UserStore) {
	ctx := context.Background()
	for _, u := range []core.User{
		{Username: "zed", Role: core.RoleStudent, Name: "Ann", StudentID: "S9", Class: "10B", PasswordHash: []byte("x")},
		{Username: "ann", Role: core.RoleStudent, Name: "Ann", StudentID: "S1", Class: "10A", PasswordHash: []byte("x")},
		{Username: "teach", Role: core.RoleTeacher, Name: "Bo", PasswordHash: []byte("x")},
	} {
		require.NoError(t, s.Create(ctx, u))
	}

	u, err := s.FindByStudentID(ctx, "S9")
	require.NoError(t, err)
	assert.Equal(t, "zed", u.Username)

	u, err = s.FindByName(ctx, "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Username, "smallest username wins")

	_, err = s.FindByName(ctx, "Bo")
	require.ErrorIs(t, err, core.ErrNotFound, "teachers are not students")
	_, err = s.FindByStudentID(ctx, "S404")
	require.ErrorIs(t, err, core.ErrNotFound)
}
