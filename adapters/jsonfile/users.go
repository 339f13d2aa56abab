package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"gradekit/core"
)

// UserStore keeps user accounts in their own JSON file next to the score file.
type UserStore struct {
	path  string
	mu    sync.RWMutex
	users map[string]userDoc
}

// userDoc is the on-disk form of core.User, which hides its hash from JSON.
type userDoc struct {
	PasswordHash []byte           `json:"password_hash"`
	Role         core.Role        `json:"role"`
	Name         string           `json:"name,omitempty"`
	StudentID    core.StudentID   `json:"student_id,omitempty"`
	Class        core.ClassName   `json:"class,omitempty"`
	Subjects     []core.Subject   `json:"subjects,omitempty"`
	Classes      []core.ClassName `json:"classes,omitempty"`
}

func toDoc(u core.User) userDoc {
	return userDoc{
		PasswordHash: append([]byte(nil), u.PasswordHash...),
		Role:         u.Role,
		Name:         u.Name,
		StudentID:    u.StudentID,
		Class:        u.Class,
		Subjects:     append([]core.Subject(nil), u.Subjects...),
		Classes:      append([]core.ClassName(nil), u.Classes...),
	}
}

func (d userDoc) user(username string) core.User {
	return core.User{
		Username:     username,
		PasswordHash: append([]byte(nil), d.PasswordHash...),
		Role:         d.Role,
		Name:         d.Name,
		StudentID:    d.StudentID,
		Class:        d.Class,
		Subjects:     append([]core.Subject(nil), d.Subjects...),
		Classes:      append([]core.ClassName(nil), d.Classes...),
	}
}

func NewUserStore(path string) (*UserStore, error) {
	s := &UserStore{path: path, users: map[string]userDoc{}}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &s.users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

func (s *UserStore) Get(_ context.Context, username string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.users[username]
	if !ok {
		return core.User{}, fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	return d.user(username), nil
}

func (s *UserStore) FindByStudentID(_ context.Context, id core.StudentID) (core.User, error) {
	return s.find(func(d userDoc) bool { return d.Role == core.RoleStudent && d.StudentID == id }, "student "+string(id))
}

func (s *UserStore) FindByName(_ context.Context, name string) (core.User, error) {
	return s.find(func(d userDoc) bool { return d.Role == core.RoleStudent && d.Name == name }, "student named "+name)
}

func (s *UserStore) find(match func(userDoc) bool, what string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := ""
	for name, d := range s.users {
		if match(d) && (best == "" || name < best) {
			best = name
		}
	}
	if best == "" {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	return s.users[best].user(best), nil
}

func (s *UserStore) Create(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("%w: user %s", core.ErrConflict, u.Username)
	}
	s.users[u.Username] = toDoc(u)
	if err := writeFile(s.path, s.users); err != nil {
		delete(s.users, u.Username)
		return err
	}
	return nil
}

func (s *UserStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[username]
	if !ok {
		return fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	delete(s.users, username)
	if err := writeFile(s.path, s.users); err != nil {
		s.users[username] = prev
		return err
	}
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
