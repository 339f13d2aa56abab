package engine

import (
	"context"

	"gradekit/core"
)

// ScoreReader is the read side of a score store.
//
// Implementations return errors wrapping core.ErrNotFound for absent students or
// classes and core.ErrTransient when the backend cannot be reached.
type ScoreReader interface {
	GetStudent(ctx context.Context, id core.StudentID) (core.Student, error)
	// GetScoreRecords returns the student's records matching filter, in no particular order.
	// An enrolled student without matching records yields an empty slice.
	GetScoreRecords(ctx context.Context, id core.StudentID, filter core.RecordFilter) ([]core.ScoreRecord, error)
	// GetScoreRecordsForClassSubject returns every record of subject held by students enrolled in class.
	GetScoreRecordsForClassSubject(ctx context.Context, class core.ClassName, subject core.Subject) ([]core.StudentScore, error)
	// GetScoreRecordsForSubject returns every record of subject across all classes.
	GetScoreRecordsForSubject(ctx context.Context, subject core.Subject) ([]core.StudentScore, error)
	ListClasses(ctx context.Context) ([]core.ClassName, error)
	// ListSubjectsForClass fails with core.ErrNotFound when no student is enrolled in class.
	ListSubjectsForClass(ctx context.Context, class core.ClassName) ([]core.Subject, error)
}

// ScoreWriter is the write side of a score store.
type ScoreWriter interface {
	// PutScoreRecords upserts all scores for (id, term) atomically: either every
	// score is applied or none is. It fails with core.ErrNotFound when the student
	// is not enrolled.
	PutScoreRecords(ctx context.Context, id core.StudentID, term core.Term, scores []core.SubjectScore) error
}

// Roster maintains the enrolled students of a score store.
type Roster interface {
	// SaveStudent enrolls a student or updates its name and class.
	SaveStudent(ctx context.Context, s core.Student) error
	// RemoveStudent drops the student together with its records.
	RemoveStudent(ctx context.Context, id core.StudentID) error
}

// ScoreStore is the full persistence contract implemented by the adapters.
type ScoreStore interface {
	ScoreReader
	ScoreWriter
	Roster
}

// UserStore holds user accounts.
//
// Lookups fail with core.ErrNotFound; Create fails with core.ErrConflict when
// the username is taken.
type UserStore interface {
	Get(ctx context.Context, username string) (core.User, error)
	// FindByStudentID and FindByName only consider student accounts. When several
	// match, the smallest username wins.
	FindByStudentID(ctx context.Context, id core.StudentID) (core.User, error)
	FindByName(ctx context.Context, name string) (core.User, error)
	Create(ctx context.Context, u core.User) error
	Delete(ctx context.Context, username string) error
	// ListUsernames returns every username in ascending order.
	ListUsernames(ctx context.Context) ([]string, error)
}
