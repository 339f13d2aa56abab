package memory

import (
	"context"
	"fmt"
	"sync"

	"gradekit/core"
)

// Store is a concurrent in-memory score store. Each student's records sit behind
// the student's own mutex, so a batch write is atomic for readers of that student.
type Store struct {
	students sync.Map // map[core.StudentID]*studentRecord
}

type scoreKey struct {
	term    core.Term
	subject core.Subject
}

type studentRecord struct {
	mu      sync.Mutex
	student core.Student
	scores  map[scoreKey]int
	removed bool
}

func New() *Store { return &Store{} }

func (s *Store) load(id core.StudentID) (*studentRecord, bool) {
	v, ok := s.students.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*studentRecord), true
}

// each calls fn with every live record locked.
func (s *Store) each(fn func(rec *studentRecord)) {
	s.students.Range(func(_, v any) bool {
		rec := v.(*studentRecord)
		rec.mu.Lock()
		if !rec.removed {
			fn(rec)
		}
		rec.mu.Unlock()
		return true
	})
}

func (s *Store) SaveStudent(_ context.Context, st core.Student) error {
	fresh := &studentRecord{student: st, scores: map[scoreKey]int{}}
	for {
		v, loaded := s.students.LoadOrStore(st.ID, fresh)
		if !loaded {
			return nil
		}
		rec := v.(*studentRecord)
		rec.mu.Lock()
		if rec.removed {
			rec.mu.Unlock()
			s.students.CompareAndDelete(st.ID, rec)
			continue
		}
		rec.student = st
		rec.mu.Unlock()
		return nil
	}
}

func (s *Store) RemoveStudent(_ context.Context, id core.StudentID) error {
	rec, ok := s.load(id)
	if !ok {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	rec.removed = true
	s.students.CompareAndDelete(id, rec)
	return nil
}

func (s *Store) GetStudent(_ context.Context, id core.StudentID) (core.Student, error) {
	rec, ok := s.load(id)
	if ok {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if !rec.removed {
			return rec.student, nil
		}
	}
	return core.Student{}, fmt.Errorf("%w: student %s", core.ErrNotFound, id)
}

func (s *Store) GetScoreRecords(_ context.Context, id core.StudentID, filter core.RecordFilter) ([]core.ScoreRecord, error) {
	rec, ok := s.load(id)
	if !ok {
		return []core.ScoreRecord{}, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := []core.ScoreRecord{}
	if rec.removed {
		return out, nil
	}
	for k, v := range rec.scores {
		r := core.ScoreRecord{Subject: k.subject, Term: k.term, Score: v}
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetScoreRecordsForClassSubject(_ context.Context, class core.ClassName, subject core.Subject) ([]core.StudentScore, error) {
	out := []core.StudentScore{}
	s.each(func(rec *studentRecord) {
		if rec.student.Class == class {
			out = appendSubject(out, rec, subject)
		}
	})
	return out, nil
}

func (s *Store) GetScoreRecordsForSubject(_ context.Context, subject core.Subject) ([]core.StudentScore, error) {
	out := []core.StudentScore{}
	s.each(func(rec *studentRecord) { out = appendSubject(out, rec, subject) })
	return out, nil
}

func appendSubject(out []core.StudentScore, rec *studentRecord, subject core.Subject) []core.StudentScore {
	for k, v := range rec.scores {
		if k.subject == subject {
			out = append(out, core.StudentScore{Student: rec.student.ID, Term: k.term, Score: v})
		}
	}
	return out
}

func (s *Store) PutScoreRecords(_ context.Context, id core.StudentID, term core.Term, scores []core.SubjectScore) error {
	rec, ok := s.load(id)
	if !ok {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	for _, sc := range scores {
		rec.scores[scoreKey{term: term, subject: sc.Subject}] = sc.Score
	}
	return nil
}

func (s *Store) ListClasses(_ context.Context) ([]core.ClassName, error) {
	seen := map[core.ClassName]struct{}{}
	out := []core.ClassName{}
	s.each(func(rec *studentRecord) {
		if _, ok := seen[rec.student.Class]; !ok {
			seen[rec.student.Class] = struct{}{}
			out = append(out, rec.student.Class)
		}
	})
	return out, nil
}

func (s *Store) ListSubjectsForClass(_ context.Context, class core.ClassName) ([]core.Subject, error) {
	enrolled := false
	seen := map[core.Subject]struct{}{}
	out := []core.Subject{}
	s.each(func(rec *studentRecord) {
		if rec.student.Class != class {
			return
		}
		enrolled = true
		for k := range rec.scores {
			if _, ok := seen[k.subject]; !ok {
				seen[k.subject] = struct{}{}
				out = append(out, k.subject)
			}
		}
	})
	if !enrolled {
		return nil, fmt.Errorf("%w: class %s", core.ErrNotFound, class)
	}
	return out, nil
}
