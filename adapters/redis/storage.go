package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gradekit/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" env:"ADDR"`
	Password     string        `json:"password" yaml:"password" env:"PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"DB"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements engine.ScoreStore on Redis.
// Data structure:
//   - student:{id} -> hash {name, class}
//   - student:{id}:scores -> hash {"<year>-<semester>:<subject>" -> score}
//   - class:{class}:students -> set of student ids
//   - subject:{subject}:students -> set of student ids holding a record of the subject
//   - classes -> set of class names ever used (empty classes are filtered on read)
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed store with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

const (
	studentsKey = "students"
	classesKey  = "classes"
)

func studentKey(id core.StudentID) string { return fmt.Sprintf("student:%s", id) }
func scoresKey(id core.StudentID) string { return fmt.Sprintf("student:%s:scores", id) }
func classKey(class core.ClassName) string { return fmt.Sprintf("class:%s:students", class) }
func subjectKey(subject core.Subject) string { return fmt.Sprintf("subject:%s:students", subject) }
func scoreField(t core.Term, s core.Subject) string { return t.String() + ":" + string(s) }

// parseScoreField splits "<year>-<semester>:<subject>"; subjects may themselves contain ':'.
func parseScoreField(field string) (core.Term, core.Subject, bool) {
	term, subject, ok := strings.Cut(field, ":")
	if !ok {
		return core.Term{}, "", false
	}
	t, err := core.ParseTerm(term)
	if err != nil {
		return core.Term{}, "", false
	}
	return t, core.Subject(subject), true
}

const notFoundReply = "NOTFOUND"

// putScoresScript upserts one term's scores only if the student hash exists.
// KEYS: student hash, scores hash, then one subject set per score.
// ARGV: student id, term, then subject/score pairs.
var putScoresScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return redis.error_reply('NOTFOUND')
	end
	local n = (#ARGV - 2) / 2
	for i = 1, n do
		redis.call('HSET', KEYS[2], ARGV[2] .. ':' .. ARGV[1 + 2 * i], ARGV[2 + 2 * i])
		redis.call('SADD', KEYS[2 + i], ARGV[1])
	end
	return n
`)

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: redis %s: %w", core.ErrTransient, op, err)
}

func (s *Store) SaveStudent(ctx context.Context, st core.Student) error {
	key := studentKey(st.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.HGet(ctx, key, "class").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "name", st.Name, "class", string(st.Class))
			p.SAdd(ctx, studentsKey, string(st.ID))
			p.SAdd(ctx, classesKey, string(st.Class))
			if prev != "" && prev != string(st.Class) {
				p.SRem(ctx, classKey(core.ClassName(prev)), string(st.ID))
			}
			p.SAdd(ctx, classKey(st.Class), string(st.ID))
			return nil
		})
		return err
	}, key)
	return wrap("save student", err)
}

func (s *Store) RemoveStudent(ctx context.Context, id core.StudentID) error {
	key, scores := studentKey(id), scoresKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		class, err := tx.HGet(ctx, key, "class").Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		fields, err := tx.HKeys(ctx, scores).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key, scores)
			p.SRem(ctx, studentsKey, string(id))
			p.SRem(ctx, classKey(core.ClassName(class)), string(id))
			for _, f := range fields {
				if _, subj, ok := parseScoreField(f); ok {
					p.SRem(ctx, subjectKey(subj), string(id))
				}
			}
			return nil
		})
		return err
	}, key, scores)
	return wrap("remove student", err)
}

func (s *Store) GetStudent(ctx context.Context, id core.StudentID) (core.Student, error) {
	fields, err := s.client.HGetAll(ctx, studentKey(id)).Result()
	if err != nil {
		return core.Student{}, wrap("get student", err)
	}
	if len(fields) == 0 {
		return core.Student{}, fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	return core.Student{ID: id, Name: fields["name"], Class: core.ClassName(fields["class"])}, nil
}

func (s *Store) GetScoreRecords(ctx context.Context, id core.StudentID, filter core.RecordFilter) ([]core.ScoreRecord, error) {
	fields, err := s.client.HGetAll(ctx, scoresKey(id)).Result()
	if err != nil {
		return nil, wrap("get score records", err)
	}
	out := []core.ScoreRecord{}
	for f, v := range fields {
		term, subj, ok := parseScoreField(f)
		if !ok {
			continue
		}
		score, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		r := core.ScoreRecord{Subject: subj, Term: term, Score: score}
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetScoreRecordsForClassSubject(ctx context.Context, class core.ClassName, subject core.Subject) ([]core.StudentScore, error) {
	ids, err := s.client.SMembers(ctx, classKey(class)).Result()
	if err != nil {
		return nil, wrap("list class members", err)
	}
	return s.subjectScores(ctx, ids, subject)
}

func (s *Store) GetScoreRecordsForSubject(ctx context.Context, subject core.Subject) ([]core.StudentScore, error) {
	ids, err := s.client.SMembers(ctx, subjectKey(subject)).Result()
	if err != nil {
		return nil, wrap("list subject members", err)
	}
	return s.subjectScores(ctx, ids, subject)
}

// subjectScores loads the score hashes of ids in one pipeline and keeps subject's records.
func (s *Store) subjectScores(ctx context.Context, ids []string, subject core.Subject) ([]core.StudentScore, error) {
	out := []core.StudentScore{}
	if len(ids) == 0 {
		return out, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, scoresKey(core.StudentID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("load scores", err)
	}
	for i, cmd := range cmds {
		for f, v := range cmd.Val() {
			term, subj, ok := parseScoreField(f)
			if !ok || subj != subject {
				continue
			}
			score, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			out = append(out, core.StudentScore{Student: core.StudentID(ids[i]), Term: term, Score: score})
		}
	}
	return out, nil
}

func (s *Store) PutScoreRecords(ctx context.Context, id core.StudentID, term core.Term, scores []core.SubjectScore) error {
	keys := make([]string, 0, len(scores)+2)
	keys = append(keys, studentKey(id), scoresKey(id))
	args := make([]any, 0, 2*len(scores)+2)
	args = append(args, string(id), term.String())
	for _, sc := range scores {
		keys = append(keys, subjectKey(sc.Subject))
		args = append(args, string(sc.Subject), sc.Score)
	}
	err := putScoresScript.Run(ctx, s.client, keys, args...).Err()
	if err != nil && strings.Contains(err.Error(), notFoundReply) {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	return wrap("put score records", err)
}

func (s *Store) ListClasses(ctx context.Context) ([]core.ClassName, error) {
	names, err := s.client.SMembers(ctx, classesKey).Result()
	if err != nil {
		return nil, wrap("list classes", err)
	}
	cards := make([]*redis.IntCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, n := range names {
			cards[i] = p.SCard(ctx, classKey(core.ClassName(n)))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("count class members", err)
	}
	out := []core.ClassName{}
	for i, n := range names {
		if cards[i].Val() > 0 {
			out = append(out, core.ClassName(n))
		}
	}
	return out, nil
}

func (s *Store) ListSubjectsForClass(ctx context.Context, class core.ClassName) ([]core.Subject, error) {
	ids, err := s.client.SMembers(ctx, classKey(class)).Result()
	if err != nil {
		return nil, wrap("list class members", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: class %s", core.ErrNotFound, class)
	}
	cmds := make([]*redis.StringSliceCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HKeys(ctx, scoresKey(core.StudentID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("load score fields", err)
	}
	seen := map[core.Subject]struct{}{}
	out := []core.Subject{}
	for _, cmd := range cmds {
		for _, f := range cmd.Val() {
			if _, subj, ok := parseScoreField(f); ok {
				if _, dup := seen[subj]; !dup {
					seen[subj] = struct{}{}
					out = append(out, subj)
				}
			}
		}
	}
	return out, nil
}
