package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gradekit/core"
)

// UserStore keeps accounts in the users collection. The unique username
// index is created by Store.EnsureIndexes.
type UserStore struct {
	users *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{users: db.Collection(userCollection)}
}

// Users returns a user store on the same database.
func (s *Store) Users() *UserStore { return NewUserStore(s.db) }

func (s *UserStore) Get(ctx context.Context, username string) (core.User, error) {
	return s.findOne(ctx, bson.M{usernameKey: username}, "user "+username)
}

func (s *UserStore) FindByStudentID(ctx context.Context, id core.StudentID) (core.User, error) {
	return s.findOne(ctx, bson.M{roleKey: string(core.RoleStudent), studentIDKey: string(id)}, "student "+string(id))
}

func (s *UserStore) FindByName(ctx context.Context, name string) (core.User, error) {
	return s.findOne(ctx, bson.M{roleKey: string(core.RoleStudent), nameKey: name}, "student named "+name)
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M, what string) (core.User, error) {
	var u core.User
	opts := options.FindOne().SetSort(bson.D{{Key: usernameKey, Value: 1}})
	err := s.users.FindOne(ctx, filter, opts).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	if err != nil {
		return core.User{}, wrap("find user", err)
	}
	return u, nil
}

func (s *UserStore) Create(ctx context.Context, u core.User) error {
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return wrap("create user "+u.Username, err)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, username string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{usernameKey: username})
	if err != nil {
		return wrap("delete user", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: user %s", core.ErrNotFound, username)
	}
	return nil
}

func (s *UserStore) ListUsernames(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{usernameKey: 1, dbIDKey: 0}).
		SetSort(bson.D{{Key: usernameKey, Value: 1}})
	cur, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrap("list users", err)
	}
	var rows []struct {
		Username string `bson:"username"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, wrap("decode users", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Username)
	}
	return out, nil
}
