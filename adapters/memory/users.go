package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gradekit/core"
)

// UserStore keeps user accounts in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]core.User
}

func NewUserStore() *UserStore { return &UserStore{users: map[string]core.User{}} }

func (s *UserStore) Get(_ context.Context, username string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return core.User{}, fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	return clone(u), nil
}

func (s *UserStore) FindByStudentID(_ context.Context, id core.StudentID) (core.User, error) {
	return s.find(func(u core.User) bool { return u.Role == core.RoleStudent && u.StudentID == id }, "student "+string(id))
}

func (s *UserStore) FindByName(_ context.Context, name string) (core.User, error) {
	return s.find(func(u core.User) bool { return u.Role == core.RoleStudent && u.Name == name }, "student named "+name)
}

// find returns the match with the smallest username so duplicates resolve deterministically.
func (s *UserStore) find(match func(core.User) bool, what string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *core.User
	for _, u := range s.users {
		if match(u) && (best == nil || u.Username < best.Username) {
			u := u
			best = &u
		}
	}
	if best == nil {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	return clone(*best), nil
}

func (s *UserStore) Create(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("%w: user %s", core.ErrConflict, u.Username)
	}
	s.users[u.Username] = clone(u)
	return nil
}

func (s *UserStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	delete(s.users, username)
	return nil
}

func (s *UserStore) ListUsernames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func clone(u core.User) core.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	u.Subjects = append([]core.Subject(nil), u.Subjects...)
	u.Classes = append([]core.ClassName(nil), u.Classes...)
	return u
}
