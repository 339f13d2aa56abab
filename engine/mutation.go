package engine

import (
	"context"
	"errors"
	"fmt"

	"gradekit/core"
)

// MutationService validates and applies score writes and roster changes.
// Every successful write is published on the event bus.
type MutationService struct {
	store    ScoreStore
	bus      *EventBus
	settings Settings
	guard    guard
}

func NewMutationService(store ScoreStore, bus *EventBus, settings Settings) *MutationService {
	if store == nil || bus == nil {
		panic("NewMutationService requires non-nil store and bus")
	}
	settings = settings.withDefaults()
	return &MutationService{
		store:    store,
		bus:      bus,
		settings: settings,
		guard:    guard{timeout: settings.StoreTimeout, log: settings.Logger},
	}
}

// AddScoreSet writes every score of set for the student and term in one atomic batch.
// An unknown student fails with core.ErrStudentNotFound and nothing is written.
func (m *MutationService) AddScoreSet(ctx context.Context, id core.StudentID, set core.ScoreSet, term core.Term) error {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return err
	}
	if err := core.ValidateTerm(term); err != nil {
		return err
	}
	if len(set) == 0 {
		return fmt.Errorf("%w: empty score set", core.ErrValidation)
	}
	entries := set.Entries()
	for _, e := range entries {
		if err := m.checkScore(e.Subject, e.Score); err != nil {
			return err
		}
	}
	st, err := m.requireStudent(ctx, id)
	if err != nil {
		return err
	}
	if err := m.put(ctx, id, term, entries); err != nil {
		return err
	}
	ev := core.NewScoreSetAdded(id, term, entries)
	ev.Class = st.Class
	m.bus.Publish(ctx, ev)
	return nil
}

// UpdateScore upserts one score. The record lands in the most recent term that
// already holds the subject, else the student's most recent term, else the
// configured default term.
func (m *MutationService) UpdateScore(ctx context.Context, id core.StudentID, subject core.Subject, score int) error {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return err
	}
	if err := m.checkScore(subject, score); err != nil {
		return err
	}
	st, err := m.requireStudent(ctx, id)
	if err != nil {
		return err
	}
	records, err := storeCall(ctx, m.guard, "get_score_records", func(c context.Context) ([]core.ScoreRecord, error) {
		return m.store.GetScoreRecords(c, id, core.RecordFilter{})
	}, "student_id", id)
	if err != nil {
		return err
	}
	return m.update(ctx, st, subject, score, m.targetTerm(records, subject))
}

// UpdateScoreInTerm upserts one score in an explicit term.
func (m *MutationService) UpdateScoreInTerm(ctx context.Context, id core.StudentID, subject core.Subject, score int, term core.Term) error {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return err
	}
	if err := core.ValidateTerm(term); err != nil {
		return err
	}
	if err := m.checkScore(subject, score); err != nil {
		return err
	}
	st, err := m.requireStudent(ctx, id)
	if err != nil {
		return err
	}
	return m.update(ctx, st, subject, score, term)
}

// EnrollStudent adds the student to the roster or moves it to another class.
func (m *MutationService) EnrollStudent(ctx context.Context, s core.Student) error {
	id, err := core.NormalizeStudentID(s.ID)
	if err != nil {
		return err
	}
	class, err := core.NormalizeClass(s.Class)
	if err != nil {
		return err
	}
	s.ID, s.Class = id, class
	if err := core.ValidateStudent(s); err != nil {
		return err
	}
	if err := storeExec(ctx, m.guard, "save_student", func(c context.Context) error {
		return m.store.SaveStudent(c, s)
	}, "student_id", id, "class", class); err != nil {
		return err
	}
	m.bus.Publish(ctx, core.NewStudentEnrolled(s))
	return nil
}

// RemoveStudent drops the student and all of its records.
func (m *MutationService) RemoveStudent(ctx context.Context, id core.StudentID) error {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return err
	}
	err = storeExec(ctx, m.guard, "remove_student", func(c context.Context) error {
		return m.store.RemoveStudent(c, id)
	}, "student_id", id)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrStudentNotFound, id)
	}
	if err != nil {
		return err
	}
	m.bus.Publish(ctx, core.NewStudentRemoved(id))
	return nil
}

func (m *MutationService) update(ctx context.Context, st core.Student, subject core.Subject, score int, term core.Term) error {
	if err := m.put(ctx, st.ID, term, []core.SubjectScore{{Subject: subject, Score: score}}); err != nil {
		return err
	}
	ev := core.NewScoreUpdated(st.ID, term, subject, score)
	ev.Class = st.Class
	m.bus.Publish(ctx, ev)
	return nil
}

func (m *MutationService) put(ctx context.Context, id core.StudentID, term core.Term, entries []core.SubjectScore) error {
	err := storeExec(ctx, m.guard, "put_score_records", func(c context.Context) error {
		return m.store.PutScoreRecords(c, id, term, entries)
	}, "student_id", id, "term", term.String())
	if errors.Is(err, core.ErrNotFound) {
		// withdrawn between the existence check and the write
		return fmt.Errorf("%w: %s", core.ErrStudentNotFound, id)
	}
	return err
}

func (m *MutationService) targetTerm(records []core.ScoreRecord, subject core.Subject) core.Term {
	var withSubject []core.ScoreRecord
	for _, r := range records {
		if r.Subject == subject {
			withSubject = append(withSubject, r)
		}
	}
	if t, ok := core.LatestTerm(withSubject); ok {
		return t
	}
	if t, ok := core.LatestTerm(records); ok {
		return t
	}
	return m.settings.DefaultTerm
}

func (m *MutationService) checkScore(subject core.Subject, score int) error {
	if err := core.ValidateSubject(subject); err != nil {
		return err
	}
	return m.settings.Policy.Check(score)
}

func (m *MutationService) requireStudent(ctx context.Context, id core.StudentID) (core.Student, error) {
	st, err := storeCall(ctx, m.guard, "get_student", func(c context.Context) (core.Student, error) {
		return m.store.GetStudent(c, id)
	}, "student_id", id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Student{}, fmt.Errorf("%w: %s", core.ErrStudentNotFound, id)
	}
	return st, err
}
