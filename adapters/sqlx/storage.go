package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"gradekit/core"
)

// Store implements engine.ScoreStore on top of a relational database.
type Store struct {
	db     *sqlx.DB
	driver Driver
	now    func() time.Time
}

// New connects to the database described by cfg and optionally creates the tables.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: sql connect: %w", core.ErrTransient, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	s := NewWithDB(db, cfg.Driver)
	if cfg.CreateTables {
		if err := s.CreateTables(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing connection. Tables are not created.
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle, e.g. to share it with a UserStore.
func (s *Store) DB() *sqlx.DB { return s.db }

type scoreRow struct {
	StudentID string `db:"student_id"`
	Subject   string `db:"subject"`
	Year      int    `db:"year"`
	Semester  int    `db:"semester"`
	Score     int    `db:"score"`
}

func (r scoreRow) record() core.ScoreRecord {
	return core.ScoreRecord{
		Subject: core.Subject(r.Subject),
		Term:    core.Term{Year: r.Year, Semester: r.Semester},
		Score:   r.Score,
	}
}

func (r scoreRow) studentScore() core.StudentScore {
	return core.StudentScore{
		Student: core.StudentID(r.StudentID),
		Term:    core.Term{Year: r.Year, Semester: r.Semester},
		Score:   r.Score,
	}
}

func (s *Store) SaveStudent(ctx context.Context, st core.Student) error {
	q := s.db.Rebind(`INSERT INTO students (id, name, class) VALUES (?, ?, ?)` + s.upsert("id", "name", "class"))
	if _, err := s.db.ExecContext(ctx, q, string(st.ID), st.Name, string(st.Class)); err != nil {
		return wrap("save student", err)
	}
	return nil
}

func (s *Store) RemoveStudent(ctx context.Context, id core.StudentID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM scores WHERE student_id = ?`), string(id)); err != nil {
		return wrap("delete scores", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM students WHERE id = ?`), string(id))
	if err != nil {
		return wrap("delete student", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id core.StudentID) (core.Student, error) {
	var st core.Student
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`SELECT id, name, class FROM students WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Student{}, fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Student{}, wrap("get student", err)
	}
	return st, nil
}

func (s *Store) GetScoreRecords(ctx context.Context, id core.StudentID, filter core.RecordFilter) ([]core.ScoreRecord, error) {
	q := `SELECT student_id, subject, year, semester, score FROM scores WHERE student_id = ?`
	args := []any{string(id)}
	if filter.Subject != "" {
		q += ` AND subject = ?`
		args = append(args, string(filter.Subject))
	}
	if filter.Year != 0 {
		q += ` AND year = ?`
		args = append(args, filter.Year)
	}
	if filter.Semester != 0 {
		q += ` AND semester = ?`
		args = append(args, filter.Semester)
	}
	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, wrap("get scores", err)
	}
	out := make([]core.ScoreRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *Store) GetScoreRecordsForClassSubject(ctx context.Context, class core.ClassName, subject core.Subject) ([]core.StudentScore, error) {
	q := `SELECT sc.student_id, sc.subject, sc.year, sc.semester, sc.score
		FROM scores sc JOIN students st ON st.id = sc.student_id
		WHERE st.class = ? AND sc.subject = ?`
	return s.studentScores(ctx, "class scores", q, string(class), string(subject))
}

func (s *Store) GetScoreRecordsForSubject(ctx context.Context, subject core.Subject) ([]core.StudentScore, error) {
	q := `SELECT student_id, subject, year, semester, score FROM scores WHERE subject = ?`
	return s.studentScores(ctx, "subject scores", q, string(subject))
}

func (s *Store) studentScores(ctx context.Context, op, q string, args ...any) ([]core.StudentScore, error) {
	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, wrap(op, err)
	}
	out := make([]core.StudentScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.studentScore())
	}
	return out, nil
}

// PutScoreRecords upserts the batch inside one transaction after checking enrollment.
func (s *Store) PutScoreRecords(ctx context.Context, id core.StudentID, term core.Term, scores []core.SubjectScore) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS (SELECT 1 FROM students WHERE id = ?)`), string(id)); err != nil {
		return wrap("check student", err)
	}
	if !exists {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}

	q := tx.Rebind(`INSERT INTO scores (student_id, subject, year, semester, score, updated_at) VALUES (?, ?, ?, ?, ?, ?)` +
		s.upsert("student_id, subject, year, semester", "score", "updated_at"))
	now := s.now().UTC()
	for _, sc := range scores {
		if _, err := tx.ExecContext(ctx, q, string(id), string(sc.Subject), term.Year, term.Semester, sc.Score, now); err != nil {
			return wrap("put score", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (s *Store) ListClasses(ctx context.Context) ([]core.ClassName, error) {
	var classes []string
	if err := s.db.SelectContext(ctx, &classes, `SELECT DISTINCT class FROM students ORDER BY class`); err != nil {
		return nil, wrap("list classes", err)
	}
	out := make([]core.ClassName, 0, len(classes))
	for _, c := range classes {
		out = append(out, core.ClassName(c))
	}
	return out, nil
}

func (s *Store) ListSubjectsForClass(ctx context.Context, class core.ClassName) ([]core.Subject, error) {
	var enrolled bool
	if err := s.db.GetContext(ctx, &enrolled, s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM students WHERE class = ?)`), string(class)); err != nil {
		return nil, wrap("check class", err)
	}
	if !enrolled {
		return nil, fmt.Errorf("%w: class %s", core.ErrNotFound, class)
	}
	var subjects []string
	q := `SELECT DISTINCT sc.subject FROM scores sc JOIN students st ON st.id = sc.student_id
		WHERE st.class = ? ORDER BY sc.subject`
	if err := s.db.SelectContext(ctx, &subjects, s.db.Rebind(q), string(class)); err != nil {
		return nil, wrap("list subjects", err)
	}
	out := make([]core.Subject, 0, len(subjects))
	for _, sub := range subjects {
		out = append(out, core.Subject(sub))
	}
	return out, nil
}

// wrap classifies a driver error: unique violations become core.ErrConflict,
// everything else core.ErrTransient.
func wrap(op string, err error) error {
	if isDuplicate(err) {
		return fmt.Errorf("%w: sql %s: %w", core.ErrConflict, op, err)
	}
	return fmt.Errorf("%w: sql %s: %w", core.ErrTransient, op, err)
}

func isDuplicate(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		c := liteErr.Code()
		return c == sqlite3.SQLITE_CONSTRAINT_UNIQUE || c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func joinList[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func splitList[T ~string](s string) []T {
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
