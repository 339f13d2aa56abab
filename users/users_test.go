package users_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gradekit/adapters/memory"
	"gradekit/core"
	"gradekit/engine"
	"gradekit/users"
)

type fixture struct {
	svc    *users.Service
	store  *memory.UserStore
	scores *memory.Store
	grades *engine.GradeService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	scores := memory.New()
	grades := engine.NewGradeService(scores, engine.NewEventBus(engine.DispatchSync), engine.Settings{})
	store := memory.NewUserStore()
	svc := users.NewService(store, grades, users.StaticCredentials{"root": string(hash)}, users.WithBcryptCost(bcrypt.MinCost))
	return fixture{svc: svc, store: store, scores: scores, grades: grades}
}

func TestCreateStudentEnrolls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, users.NewUser{
		Username: "ann", Password: "secret1", Role: core.RoleStudent,
		Name: "Ann", StudentID: " S1 ", Class: "10A",
	})
	require.NoError(t, err)
	assert.Nil(t, u.PasswordHash)
	assert.Equal(t, core.StudentID("S1"), u.StudentID)

	st, err := f.scores.GetStudent(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, core.ClassName("10A"), st.Class)

	stored, err := f.store.Get(ctx, "ann")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword(stored.PasswordHash, []byte("secret1")))
}

func TestCreateUserConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleStudent, StudentID: "S1", Class: "10A"})
	require.NoError(t, err)

	_, err = f.svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleTeacher})
	require.ErrorIs(t, err, core.ErrConflict)

	_, err = f.svc.CreateUser(ctx, users.NewUser{Username: "ann2", Password: "secret1", Role: core.RoleStudent, StudentID: "S1", Class: "10B"})
	require.ErrorIs(t, err, core.ErrConflict, "one account per student")

	_, err = f.svc.CreateUser(ctx, users.NewUser{Username: "root", Password: "secret1", Role: core.RoleAdmin})
	require.ErrorIs(t, err, core.ErrConflict, "configured admin names are reserved")
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]users.NewUser{
		"short password":   {Username: "a", Password: "x", Role: core.RoleTeacher},
		"unknown role":     {Username: "a", Password: "secret1", Role: "janitor"},
		"student no id":    {Username: "a", Password: "secret1", Role: core.RoleStudent, Class: "10A"},
		"student no class": {Username: "a", Password: "secret1", Role: core.RoleStudent, StudentID: "S1"},
		"blank username":   {Username: "  ", Password: "secret1", Role: core.RoleTeacher},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateUser(ctx, in)
			require.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

type failingRoster struct{}

func (failingRoster) EnrollStudent(context.Context, core.Student) error {
	return errors.Join(core.ErrTransient, errors.New("store down"))
}
func (failingRoster) RemoveStudent(context.Context, core.StudentID) error { return nil }

func TestCreateStudentRollsBackOnEnrollFailure(t *testing.T) {
	store := memory.NewUserStore()
	svc := users.NewService(store, failingRoster{}, nil, users.WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleStudent, StudentID: "S1", Class: "10A"})
	require.ErrorIs(t, err, core.ErrTransient)
	_, err = store.Get(ctx, "ann")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestFindUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, users.NewUser{Username: "mr-t", Password: "teach123", Role: core.RoleTeacher, Name: "T", Subjects: []core.Subject{"math"}})
	require.NoError(t, err)

	u, err := f.svc.FindUser(ctx, "mr-t", "teach123", core.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, []core.Subject{"math"}, u.Subjects)

	_, err = f.svc.FindUser(ctx, "mr-t", "wrong", core.RoleTeacher)
	require.ErrorIs(t, err, users.ErrInvalidCredentials)
	_, err = f.svc.FindUser(ctx, "mr-t", "teach123", core.RoleStudent)
	require.ErrorIs(t, err, users.ErrInvalidCredentials)
	_, err = f.svc.FindUser(ctx, "ghost", "teach123", core.RoleTeacher)
	require.ErrorIs(t, err, core.ErrNotFound)

	admin, err := f.svc.FindUser(ctx, "root", "root-pass", core.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, admin.Role)
	_, err = f.svc.FindUser(ctx, "root", "nope", core.RoleAdmin)
	require.ErrorIs(t, err, users.ErrInvalidCredentials)
}

func TestFindTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, users.NewUser{Username: "mr-t", Password: "teach123", Role: core.RoleTeacher})
	require.NoError(t, err)
	_, err = f.svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleStudent, StudentID: "S1", Class: "10A"})
	require.NoError(t, err)

	_, err = f.svc.FindTeacher(ctx, "mr-t")
	require.NoError(t, err)
	_, err = f.svc.FindTeacher(ctx, "ann")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteStudentRemovesRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleStudent, StudentID: "S1", Class: "10A"})
	require.NoError(t, err)
	require.NoError(t, f.grades.AddScoreSet(ctx, "S1", core.ScoreSet{"math": 90}, core.Term{Year: 2024, Semester: 1}))

	require.NoError(t, f.svc.DeleteUser(ctx, "ann"))
	_, err = f.scores.GetStudent(ctx, "S1")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.ErrorIs(t, f.svc.DeleteUser(ctx, "ann"), core.ErrNotFound)

	names, err := f.svc.ListUsernames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

type flakyRoster struct {
	users.Roster
}

func (flakyRoster) RemoveStudent(context.Context, core.StudentID) error {
	return fmt.Errorf("%w: store unreachable", core.ErrTransient)
}

func TestDeleteStudentRestoresAccountWhenRosterFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := users.NewService(f.store, flakyRoster{Roster: f.grades}, users.StaticCredentials{}, users.WithBcryptCost(bcrypt.MinCost))
	_, err := svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleStudent, StudentID: "S1", Class: "10A"})
	require.NoError(t, err)

	err = svc.DeleteUser(ctx, "ann")
	require.ErrorIs(t, err, core.ErrTransient)

	u, err := svc.FindUser(ctx, "ann", "secret1", core.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, core.StudentID("S1"), u.StudentID)
	_, err = f.scores.GetStudent(ctx, "S1")
	require.NoError(t, err)
}

func TestLookupsAndAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, users.NewUser{Username: "ann", Password: "secret1", Role: core.RoleStudent, Name: "Ann", StudentID: "S1", Class: "10A"})
	require.NoError(t, err)

	u, err := f.svc.FindByStudentID(ctx, " S1")
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Username)
	u, err = f.svc.FindByName(ctx, "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Username)
	_, err = f.svc.FindByName(ctx, "")
	require.ErrorIs(t, err, core.ErrValidation)

	assert.Equal(t, []string{"root"}, f.svc.Admins())
}
