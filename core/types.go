package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StudentID uniquely identifies a student (the school's student number).
type StudentID string

// Subject names a course. Subject names are case-sensitive.
type Subject string

// ClassName names a class/section such as "10A".
type ClassName string

// MaxSemester is the number of grading periods in one academic year.
const MaxSemester = 2

// Term identifies a grading period within an academic year.
type Term struct {
	Year     int `json:"year" bson:"year" validate:"gt=0"`
	Semester int `json:"semester" bson:"semester" validate:"min=1,max=2"`
}

// IsZero reports whether the term is unset.
func (t Term) IsZero() bool { return t.Year == 0 && t.Semester == 0 }

// Before orders terms by year, then semester.
func (t Term) Before(o Term) bool {
	if t.Year == o.Year {
		return t.Semester < o.Semester
	}
	return t.Year < o.Year
}

// String renders the term as "<year>-<semester>", which is also the storage key form.
func (t Term) String() string { return fmt.Sprintf("%d-%d", t.Year, t.Semester) }

// ParseTerm parses the "<year>-<semester>" form produced by String.
func ParseTerm(s string) (Term, error) {
	y, sem, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Term{}, fmt.Errorf("%w: term %q must look like <year>-<semester>", ErrValidation, s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Term{}, fmt.Errorf("%w: term year %q", ErrValidation, y)
	}
	semester, err := strconv.Atoi(sem)
	if err != nil {
		return Term{}, fmt.Errorf("%w: term semester %q", ErrValidation, sem)
	}
	t := Term{Year: year, Semester: semester}
	if err := ValidateTerm(t); err != nil {
		return Term{}, err
	}
	return t, nil
}

// Student is the enrollment record a score store keeps per student.
type Student struct {
	ID    StudentID `json:"id" bson:"_id" db:"id" validate:"required"`
	Name  string    `json:"name" bson:"name" db:"name"`
	Class ClassName `json:"class" bson:"class" db:"class" validate:"required"`
}

// ScoreRecord is one (subject, term, score) entry of a student.
type ScoreRecord struct {
	Subject Subject `json:"subject"`
	Term    Term    `json:"term"`
	Score   int     `json:"score"`
}

// StudentScore is a score record attributed to a student, as returned by
// class and subject wide lookups.
type StudentScore struct {
	Student StudentID `json:"student_id"`
	Term    Term      `json:"term"`
	Score   int       `json:"score"`
}

// SubjectScore is a single write of a batch.
type SubjectScore struct {
	Subject Subject `json:"subject"`
	Score   int     `json:"score"`
}

// ScoreSet is a batch of subject scores submitted together for one student and one term.
type ScoreSet map[Subject]int

// Entries returns the set as a slice ordered by subject name.
func (s ScoreSet) Entries() []SubjectScore {
	out := make([]SubjectScore, 0, len(s))
	for subj, score := range s {
		out = append(out, SubjectScore{Subject: subj, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// RecordFilter narrows a student's records. Zero fields match anything.
type RecordFilter struct {
	Subject  Subject
	Year     int
	Semester int
}

// Matches reports whether r passes the filter.
func (f RecordFilter) Matches(r ScoreRecord) bool {
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.Year != 0 && r.Term.Year != f.Year {
		return false
	}
	if f.Semester != 0 && r.Term.Semester != f.Semester {
		return false
	}
	return true
}

// Role is the permission level of a user account.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// User is an account known to the user store. PasswordHash is never serialized.
type User struct {
	Username     string      `json:"username" bson:"username" db:"username" validate:"required,max=64"`
	PasswordHash []byte      `json:"-" bson:"password_hash" db:"password_hash"`
	Role         Role        `json:"role" bson:"role" db:"role" validate:"required,oneof=student teacher admin"`
	Name         string      `json:"name" bson:"name" db:"name"`
	StudentID    StudentID   `json:"student_id,omitempty" bson:"student_id,omitempty" db:"student_id"`
	Class        ClassName   `json:"class,omitempty" bson:"class,omitempty" db:"class"`
	Subjects     []Subject   `json:"subjects,omitempty" bson:"subjects,omitempty" db:"-"`
	Classes      []ClassName `json:"classes,omitempty" bson:"classes,omitempty" db:"-"`
}

// Student returns the enrollment record for a student account.
func (u User) Student() Student {
	return Student{ID: u.StudentID, Name: u.Name, Class: u.Class}
}
