// Package users authenticates accounts and keeps student accounts in step with
// the score store roster.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gradekit/core"
	"gradekit/engine"
)

// ErrInvalidCredentials is returned by FindUser for an unknown username, a wrong
// password or a role mismatch. The cases are not distinguished.
var ErrInvalidCredentials = fmt.Errorf("%w: username or password is incorrect", core.ErrNotFound)

// CredentialConfig provides the admin accounts defined in configuration.
type CredentialConfig interface {
	// Admins maps admin usernames to bcrypt password hashes.
	Admins() map[string]string
}

// StaticCredentials is a CredentialConfig backed by a fixed map.
type StaticCredentials map[string]string

func (c StaticCredentials) Admins() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Roster is the part of the mutation service that student accounts drive.
type Roster interface {
	EnrollStudent(ctx context.Context, s core.Student) error
	RemoveStudent(ctx context.Context, id core.StudentID) error
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Username  string           `json:"username" validate:"required,max=64"`
	Password  string           `json:"password" validate:"required,min=6,max=72"`
	Role      core.Role        `json:"role" validate:"required,oneof=student teacher admin"`
	Name      string           `json:"name"`
	StudentID core.StudentID   `json:"student_id,omitempty"`
	Class     core.ClassName   `json:"class,omitempty"`
	Subjects  []core.Subject   `json:"subjects,omitempty"`
	Classes   []core.ClassName `json:"classes,omitempty"`
}

// Service implements the user operations.
type Service struct {
	store  engine.UserStore
	roster Roster
	creds  CredentialConfig
	cost   int
	log    *slog.Logger
}

type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService builds the service. roster and creds may be nil.
func NewService(store engine.UserStore, roster Roster, creds CredentialConfig, opts ...Option) *Service {
	if store == nil {
		panic("users.NewService requires a store")
	}
	if creds == nil {
		creds = StaticCredentials{}
	}
	s := &Service{store: store, roster: roster, creds: creds, cost: bcrypt.DefaultCost, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HashPassword hashes a password with the service's bcrypt cost.
func (s *Service) HashPassword(password string) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: password: %w", core.ErrValidation, err)
	}
	return h, nil
}

// FindUser returns the account matching username, password and role. Admins
// from the credential config take precedence over stored admin accounts.
func (s *Service) FindUser(ctx context.Context, username, password string, role core.Role) (core.User, error) {
	if role == core.RoleAdmin {
		if hash, ok := s.creds.Admins()[username]; ok {
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
				return core.User{}, ErrInvalidCredentials
			}
			return core.User{Username: username, Role: core.RoleAdmin, Name: username}, nil
		}
	}
	u, err := s.store.Get(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if u.Role != role || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// FindTeacher returns the teacher account named username.
func (s *Service) FindTeacher(ctx context.Context, username string) (core.User, error) {
	u, err := s.store.Get(ctx, username)
	if err != nil {
		return core.User{}, err
	}
	if u.Role != core.RoleTeacher {
		return core.User{}, fmt.Errorf("%w: teacher %s", core.ErrNotFound, username)
	}
	return u, nil
}

func (s *Service) FindByStudentID(ctx context.Context, id core.StudentID) (core.User, error) {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return core.User{}, err
	}
	return s.store.FindByStudentID(ctx, id)
}

func (s *Service) FindByName(ctx context.Context, name string) (core.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.User{}, fmt.Errorf("%w: empty name", core.ErrValidation)
	}
	return s.store.FindByName(ctx, name)
}

// CreateUser hashes the password and stores the account. A student account
// also enrolls the student; the account is removed again if enrollment fails.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (core.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := core.Validator().Struct(in); err != nil {
		return core.User{}, fmt.Errorf("%w: user: %v", core.ErrValidation, err)
	}
	if _, ok := s.creds.Admins()[in.Username]; ok {
		return core.User{}, fmt.Errorf("%w: user %s", core.ErrConflict, in.Username)
	}
	u := core.User{
		Username: in.Username,
		Role:     in.Role,
		Name:     strings.TrimSpace(in.Name),
		Subjects: in.Subjects,
		Classes:  in.Classes,
	}
	if in.Role == core.RoleStudent {
		u.StudentID = core.StudentID(strings.TrimSpace(string(in.StudentID)))
		u.Class = core.ClassName(strings.TrimSpace(string(in.Class)))
	}
	if err := core.ValidateUser(u); err != nil {
		return core.User{}, err
	}
	if u.Role == core.RoleStudent {
		_, err := s.store.FindByStudentID(ctx, u.StudentID)
		if err == nil {
			return core.User{}, fmt.Errorf("%w: student %s already has an account", core.ErrConflict, u.StudentID)
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.User{}, err
		}
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash
	if err := s.store.Create(ctx, u); err != nil {
		return core.User{}, err
	}
	if u.Role == core.RoleStudent && s.roster != nil {
		if err := s.roster.EnrollStudent(ctx, u.Student()); err != nil {
			if derr := s.store.Delete(ctx, u.Username); derr != nil {
				s.log.ErrorContext(ctx, "rollback of user creation failed", "username", u.Username, "error", derr)
			}
			return core.User{}, err
		}
	}
	s.log.InfoContext(ctx, "user created", "username", u.Username, "role", u.Role)
	u.PasswordHash = nil
	return u, nil
}

// DeleteUser removes the account. Deleting a student account also removes the
// student and its records from the score store.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	u, err := s.store.Get(ctx, username)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, username); err != nil {
		return err
	}
	if u.Role == core.RoleStudent && s.roster != nil {
		err := s.roster.RemoveStudent(ctx, u.StudentID)
		if err != nil && !errors.Is(err, core.ErrStudentNotFound) {
			// put the account back so the student is not left without one
			if rerr := s.store.Create(ctx, u); rerr != nil {
				s.log.ErrorContext(ctx, "restoring deleted user failed", "username", username, "error", rerr)
				return errors.Join(err, rerr)
			}
			return err
		}
	}
	s.log.InfoContext(ctx, "user deleted", "username", username, "role", u.Role)
	return nil
}

// ListUsernames returns the stored usernames in ascending order.
func (s *Service) ListUsernames(ctx context.Context) ([]string, error) {
	return s.store.ListUsernames(ctx)
}

// Admins returns the configured admin usernames in ascending order.
func (s *Service) Admins() []string {
	admins := s.creds.Admins()
	out := make([]string, 0, len(admins))
	for name := range admins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
