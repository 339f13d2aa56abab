// Package mongodb stores students, their scores and user accounts in MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"gradekit/core"
)

const (
	// Collections
	studentCollection = "students"
	userCollection    = "users"

	// Keys
	dbIDKey          = "_id"
	nameKey          = "name"
	classKey         = "class"
	scoresKey        = "scores"
	usernameKey      = "username"
	roleKey          = "role"
	studentIDKey     = "student_id"
	lastUpdatedAtKey = "lastUpdatedAt"

	// Actions
	actionSet = "$set"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI      string `json:"uri" yaml:"uri" env:"URI"`
	Database string `json:"database" yaml:"database" env:"DATABASE"`
}

func DefaultConfig() Config {
	return Config{URI: "mongodb://localhost:27017", Database: "gradekit"}
}

// Store implements engine.ScoreStore. Each student is one document holding
// scores.<year>-<semester>.<subject>, so a batch is a single-document update.
type Store struct {
	db       *mongo.Database
	students *mongo.Collection
}

// studentDoc is the stored form of a student.
type studentDoc struct {
	ID            string                    `bson:"_id"`
	Name          string                    `bson:"name"`
	Class         string                    `bson:"class"`
	Scores        map[string]map[string]int `bson:"scores,omitempty"`
	LastUpdatedAt int64                     `bson:"lastUpdatedAt,omitempty"`
}

// New connects to MongoDB, pings the primary and creates the indexes.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("missing mongodb connection URI")
	}
	if cfg.Database == "" {
		return nil, errors.New("database name is required")
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(cfg.URI).SetServerAPIOptions(serverAPI)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %w", core.ErrTransient, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongo ping: %w", core.ErrTransient, err)
	}
	slog.Info("mongodb connected", "database", cfg.Database)

	s := NewWithDatabase(client.Database(cfg.Database))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewWithDatabase wraps an already connected database. Indexes are not created.
func NewWithDatabase(db *mongo.Database) *Store {
	return &Store{db: db, students: db.Collection(studentCollection)}
}

// EnsureIndexes creates the class index on students and the unique username index on users.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.students.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: classKey, Value: 1}},
	})
	if err != nil {
		return wrap("create class index", err)
	}
	_, err = s.db.Collection(userCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: usernameKey, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return wrap("create username index", err)
	}
	return nil
}

// Shutdown disconnects the client.
func (s *Store) Shutdown(ctx context.Context) error {
	if err := s.db.Client().Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}

// mapKey joins keys into a dotted document path.
func mapKey(keys ...string) string {
	return strings.Join(keys, ".")
}

func wrap(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: mongo %s: %w", core.ErrConflict, op, err)
	}
	return fmt.Errorf("%w: mongo %s: %w", core.ErrTransient, op, err)
}

func (s *Store) SaveStudent(ctx context.Context, st core.Student) error {
	update := bson.M{actionSet: bson.M{nameKey: st.Name, classKey: string(st.Class)}}
	_, err := s.students.UpdateOne(ctx, bson.M{dbIDKey: string(st.ID)}, update, options.Update().SetUpsert(true))
	if err != nil {
		return wrap("save student", err)
	}
	return nil
}

func (s *Store) RemoveStudent(ctx context.Context, id core.StudentID) error {
	res, err := s.students.DeleteOne(ctx, bson.M{dbIDKey: string(id)})
	if err != nil {
		return wrap("remove student", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id core.StudentID) (core.Student, error) {
	doc, err := s.findStudent(ctx, id, bson.M{scoresKey: 0})
	if err != nil {
		return core.Student{}, err
	}
	return core.Student{ID: core.StudentID(doc.ID), Name: doc.Name, Class: core.ClassName(doc.Class)}, nil
}

func (s *Store) findStudent(ctx context.Context, id core.StudentID, projection bson.M) (*studentDoc, error) {
	var doc studentDoc
	err := s.students.FindOne(ctx, bson.M{dbIDKey: string(id)}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, wrap("find student", err)
	}
	return &doc, nil
}

func (s *Store) GetScoreRecords(ctx context.Context, id core.StudentID, filter core.RecordFilter) ([]core.ScoreRecord, error) {
	doc, err := s.findStudent(ctx, id, bson.M{scoresKey: 1})
	if errors.Is(err, core.ErrNotFound) {
		return []core.ScoreRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []core.ScoreRecord{}
	doc.each(func(term core.Term, subject core.Subject, score int) {
		r := core.ScoreRecord{Subject: subject, Term: term, Score: score}
		if filter.Matches(r) {
			out = append(out, r)
		}
	})
	return out, nil
}

// each visits every parseable score of the document.
func (d *studentDoc) each(fn func(core.Term, core.Subject, int)) {
	for termKey, subjects := range d.Scores {
		term, err := core.ParseTerm(termKey)
		if err != nil {
			continue
		}
		for subject, score := range subjects {
			fn(term, core.Subject(subject), score)
		}
	}
}

func (s *Store) GetScoreRecordsForClassSubject(ctx context.Context, class core.ClassName, subject core.Subject) ([]core.StudentScore, error) {
	return s.subjectScores(ctx, bson.M{classKey: string(class)}, subject)
}

func (s *Store) GetScoreRecordsForSubject(ctx context.Context, subject core.Subject) ([]core.StudentScore, error) {
	return s.subjectScores(ctx, bson.M{}, subject)
}

func (s *Store) subjectScores(ctx context.Context, filter bson.M, subject core.Subject) ([]core.StudentScore, error) {
	docs, err := s.findStudents(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := []core.StudentScore{}
	for i := range docs {
		id := core.StudentID(docs[i].ID)
		docs[i].each(func(term core.Term, subj core.Subject, score int) {
			if subj == subject {
				out = append(out, core.StudentScore{Student: id, Term: term, Score: score})
			}
		})
	}
	return out, nil
}

func (s *Store) findStudents(ctx context.Context, filter bson.M) ([]studentDoc, error) {
	cur, err := s.students.Find(ctx, filter)
	if err != nil {
		return nil, wrap("find students", err)
	}
	var docs []studentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode students", err)
	}
	return docs, nil
}

// PutScoreRecords sets every score of the batch in one update of the student document.
func (s *Store) PutScoreRecords(ctx context.Context, id core.StudentID, term core.Term, scores []core.SubjectScore) error {
	set := bson.M{lastUpdatedAtKey: time.Now().Unix()}
	for _, sc := range scores {
		set[mapKey(scoresKey, term.String(), string(sc.Subject))] = sc.Score
	}
	res, err := s.students.UpdateOne(ctx, bson.M{dbIDKey: string(id)}, bson.M{actionSet: set})
	if err != nil {
		return wrap("put scores", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListClasses(ctx context.Context) ([]core.ClassName, error) {
	vals, err := s.students.Distinct(ctx, classKey, bson.M{})
	if err != nil {
		return nil, wrap("list classes", err)
	}
	out := make([]core.ClassName, 0, len(vals))
	for _, v := range vals {
		if c, ok := v.(string); ok {
			out = append(out, core.ClassName(c))
		}
	}
	return out, nil
}

func (s *Store) ListSubjectsForClass(ctx context.Context, class core.ClassName) ([]core.Subject, error) {
	docs, err := s.findStudents(ctx, bson.M{classKey: string(class)})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: class %s", core.ErrNotFound, class)
	}
	seen := map[core.Subject]struct{}{}
	out := []core.Subject{}
	for i := range docs {
		docs[i].each(func(_ core.Term, subject core.Subject, _ int) {
			if _, ok := seen[subject]; !ok {
				seen[subject] = struct{}{}
				out = append(out, subject)
			}
		})
	}
	return out, nil
}
