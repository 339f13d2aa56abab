package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gradekit/core"
)

// UserStore keeps user accounts in the users table.
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore shares the connection of a score store.
func NewUserStore(s *Store) *UserStore { return &UserStore{db: s.db} }

type userRow struct {
	Username     string `db:"username"`
	PasswordHash []byte `db:"password_hash"`
	Role         string `db:"role"`
	Name         string `db:"name"`
	StudentID    string `db:"student_id"`
	Class        string `db:"class"`
	Subjects     string `db:"subjects"`
	Classes      string `db:"classes"`
}

func (r userRow) user() core.User {
	return core.User{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Role:         core.Role(r.Role),
		Name:         r.Name,
		StudentID:    core.StudentID(r.StudentID),
		Class:        core.ClassName(r.Class),
		Subjects:     splitList[core.Subject](r.Subjects),
		Classes:      splitList[core.ClassName](r.Classes),
	}
}

const userColumns = `username, password_hash, role, name, student_id, class, subjects, classes`

func (s *UserStore) Get(ctx context.Context, username string) (core.User, error) {
	return s.one(ctx, "user "+username, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *UserStore) FindByStudentID(ctx context.Context, id core.StudentID) (core.User, error) {
	return s.one(ctx, "student "+string(id),
		`SELECT `+userColumns+` FROM users WHERE role = ? AND student_id = ? ORDER BY username LIMIT 1`,
		string(core.RoleStudent), string(id))
}

func (s *UserStore) FindByName(ctx context.Context, name string) (core.User, error) {
	return s.one(ctx, "student named "+name,
		`SELECT `+userColumns+` FROM users WHERE role = ? AND name = ? ORDER BY username LIMIT 1`,
		string(core.RoleStudent), name)
}

func (s *UserStore) one(ctx context.Context, what, q string, args ...any) (core.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(q), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	if err != nil {
		return core.User{}, wrap("get user", err)
	}
	return row.user(), nil
}

func (s *UserStore) Create(ctx context.Context, u core.User) error {
	q := s.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		u.Username, u.PasswordHash, string(u.Role), u.Name,
		string(u.StudentID), string(u.Class), joinList(u.Subjects), joinList(u.Classes))
	if err != nil {
		return wrap("create user "+u.Username, err)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE username = ?`), username)
	if err != nil {
		return wrap("delete user", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	return nil
}

func (s *UserStore) ListUsernames(ctx context.Context) ([]string, error) {
	out := []string{}
	if err := s.db.SelectContext(ctx, &out, `SELECT username FROM users ORDER BY username`); err != nil {
		return nil, wrap("list users", err)
	}
	return out, nil
}
