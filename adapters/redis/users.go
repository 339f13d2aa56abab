package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"gradekit/core"
)

// UserStore implements engine.UserStore on Redis.
// Data structure:
//   - user:{username} -> hash {password_hash, role, name, student_id, class, subjects, classes}
//   - users -> set of usernames
//   - users:student:{id} -> usernames of student accounts with that student id
//   - users:name:{name} -> usernames of student accounts with that name
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore { return &UserStore{client: client} }

// Users returns a user store sharing the score store's connection.
func (s *Store) Users() *UserStore { return NewUserStore(s.client) }

const usersKey = "users"

func userKey(username string) string          { return "user:" + username }
func userStudentKey(id core.StudentID) string { return fmt.Sprintf("users:student:%s", id) }
func userNameKey(name string) string          { return "users:name:" + name }

func join[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func split[T ~string](s string) []T {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]T, len(parts))
	for i, p := range parts {
		out[i] = T(p)
	}
	return out
}

func (s *UserStore) Get(ctx context.Context, username string) (core.User, error) {
	fields, err := s.client.HGetAll(ctx, userKey(username)).Result()
	if err != nil {
		return core.User{}, wrap("get user", err)
	}
	if len(fields) == 0 {
		return core.User{}, fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	return core.User{
		Username:     username,
		PasswordHash: []byte(fields["password_hash"]),
		Role:         core.Role(fields["role"]),
		Name:         fields["name"],
		StudentID:    core.StudentID(fields["student_id"]),
		Class:        core.ClassName(fields["class"]),
		Subjects:     split[core.Subject](fields["subjects"]),
		Classes:      split[core.ClassName](fields["classes"]),
	}, nil
}

func (s *UserStore) FindByStudentID(ctx context.Context, id core.StudentID) (core.User, error) {
	return s.first(ctx, userStudentKey(id), "student "+string(id))
}

func (s *UserStore) FindByName(ctx context.Context, name string) (core.User, error) {
	return s.first(ctx, userNameKey(name), "student named "+name)
}

// first loads the smallest username of an index set.
func (s *UserStore) first(ctx context.Context, index, what string) (core.User, error) {
	names, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return core.User{}, wrap("find user", err)
	}
	if len(names) == 0 {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	sort.Strings(names)
	return s.Get(ctx, names[0])
}

func (s *UserStore) Create(ctx context.Context, u core.User) error {
	key := userKey(u.Username)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: user %s", core.ErrConflict, u.Username)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key,
				"password_hash", string(u.PasswordHash),
				"role", string(u.Role),
				"name", u.Name,
				"student_id", string(u.StudentID),
				"class", string(u.Class),
				"subjects", join(u.Subjects),
				"classes", join(u.Classes))
			p.SAdd(ctx, usersKey, u.Username)
			if u.Role == core.RoleStudent {
				p.SAdd(ctx, userStudentKey(u.StudentID), u.Username)
				p.SAdd(ctx, userNameKey(u.Name), u.Username)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, core.ErrConflict) {
		return err
	}
	return wrap("create user", err)
}

func (s *UserStore) Delete(ctx context.Context, username string) error {
	key := userKey(username)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HMGet(ctx, key, "role", "student_id", "name").Result()
		if err != nil {
			return err
		}
		if fields[0] == nil {
			return fmt.Errorf("%w: user %s", core.ErrNotFound, username)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.SRem(ctx, usersKey, username)
			if fields[0] == string(core.RoleStudent) {
				id, _ := fields[1].(string)
				name, _ := fields[2].(string)
				p.SRem(ctx, userStudentKey(core.StudentID(id)), username)
				p.SRem(ctx, userNameKey(name), username)
			}
			return nil
		})
		return err
	}, key)
	return wrap("delete user", err)
}

func (s *UserStore) ListUsernames(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, wrap("list users", err)
	}
	sort.Strings(names)
	return names, nil
}
