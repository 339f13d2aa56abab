package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gradekit/core"
)

// Store persists the whole roster and its scores to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.RWMutex
	// in-memory copy of the file
	data map[core.StudentID]studentDoc
}

// studentDoc is the on-disk form of a student: scores keyed by "<year>-<semester>" then subject.
type studentDoc struct {
	core.Student
	Scores map[string]map[core.Subject]int `json:"scores"`
}

func (d studentDoc) clone() studentDoc {
	cp := studentDoc{Student: d.Student, Scores: make(map[string]map[core.Subject]int, len(d.Scores))}
	for term, subjects := range d.Scores {
		m := make(map[core.Subject]int, len(subjects))
		for k, v := range subjects {
			m[k] = v
		}
		cp.Scores[term] = m
	}
	return cp
}

func (d studentDoc) records() []core.ScoreRecord {
	var out []core.ScoreRecord
	for key, subjects := range d.Scores {
		term, err := core.ParseTerm(key)
		if err != nil {
			continue
		}
		for subj, score := range subjects {
			out = append(out, core.ScoreRecord{Subject: subj, Term: term, Score: score})
		}
	}
	return out
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.StudentID]studentDoc{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]studentDoc
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for k, v := range raw {
		if v.Scores == nil {
			v.Scores = map[string]map[core.Subject]int{}
		}
		s.data[core.StudentID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	raw := make(map[string]studentDoc, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	return writeFile(s.path, raw)
}

// writeFile replaces path with the JSON encoding of v through a rename.
func writeFile(path string, v any) error {
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// commit swaps in doc and persists, restoring the previous state if the write fails.
func (s *Store) commit(id core.StudentID, doc *studentDoc) error {
	prev, existed := s.data[id]
	if doc == nil {
		delete(s.data, id)
	} else {
		s.data[id] = *doc
	}
	if err := s.persist(); err != nil {
		if existed {
			s.data[id] = prev
		} else {
			delete(s.data, id)
		}
		return err
	}
	return nil
}

func (s *Store) SaveStudent(_ context.Context, st core.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[st.ID]
	if ok {
		doc = doc.clone()
	} else {
		doc = studentDoc{Scores: map[string]map[core.Subject]int{}}
	}
	doc.Student = st
	return s.commit(st.ID, &doc)
}

func (s *Store) RemoveStudent(_ context.Context, id core.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	return s.commit(id, nil)
}

func (s *Store) GetStudent(_ context.Context, id core.StudentID) (core.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[id]
	if !ok {
		return core.Student{}, fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	return doc.Student, nil
}

func (s *Store) GetScoreRecords(_ context.Context, id core.StudentID, filter core.RecordFilter) ([]core.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.ScoreRecord{}
	for _, r := range s.data[id].records() {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetScoreRecordsForClassSubject(_ context.Context, class core.ClassName, subject core.Subject) ([]core.StudentScore, error) {
	return s.subjectScores(func(d studentDoc) bool { return d.Class == class }, subject), nil
}

func (s *Store) GetScoreRecordsForSubject(_ context.Context, subject core.Subject) ([]core.StudentScore, error) {
	return s.subjectScores(func(studentDoc) bool { return true }, subject), nil
}

func (s *Store) subjectScores(include func(studentDoc) bool, subject core.Subject) []core.StudentScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.StudentScore{}
	for id, doc := range s.data {
		if !include(doc) {
			continue
		}
		for _, r := range doc.records() {
			if r.Subject == subject {
				out = append(out, core.StudentScore{Student: id, Term: r.Term, Score: r.Score})
			}
		}
	}
	return out
}

func (s *Store) PutScoreRecords(_ context.Context, id core.StudentID, term core.Term, scores []core.SubjectScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[id]
	if !ok {
		return fmt.Errorf("%w: student %s", core.ErrNotFound, id)
	}
	doc = doc.clone()
	key := term.String()
	if doc.Scores[key] == nil {
		doc.Scores[key] = map[core.Subject]int{}
	}
	for _, sc := range scores {
		doc.Scores[key][sc.Subject] = sc.Score
	}
	return s.commit(id, &doc)
}

func (s *Store) ListClasses(_ context.Context) ([]core.ClassName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[core.ClassName]struct{}{}
	out := []core.ClassName{}
	for _, doc := range s.data {
		if _, ok := seen[doc.Class]; !ok {
			seen[doc.Class] = struct{}{}
			out = append(out, doc.Class)
		}
	}
	return out, nil
}

func (s *Store) ListSubjectsForClass(_ context.Context, class core.ClassName) ([]core.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enrolled := false
	seen := map[core.Subject]struct{}{}
	out := []core.Subject{}
	for _, doc := range s.data {
		if doc.Class != class {
			continue
		}
		enrolled = true
		for _, subjects := range doc.Scores {
			for subj := range subjects {
				if _, ok := seen[subj]; !ok {
					seen[subj] = struct{}{}
					out = append(out, subj)
				}
			}
		}
	}
	if !enrolled {
		return nil, fmt.Errorf("%w: class %s", core.ErrNotFound, class)
	}
	return out, nil
}
