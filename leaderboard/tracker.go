package leaderboard

import (
	"context"
	"sort"
	"sync"

	"gradekit/core"
	"gradekit/engine"
)

// Tracker keeps one board per subject holding each student's most recent
// term score, the same value a latest-scope query reports.
type Tracker struct {
	mu     sync.Mutex
	boards map[core.Subject]*SkipList
	terms  map[core.Subject]map[core.StudentID]core.Term
}

func NewTracker() *Tracker {
	return &Tracker{
		boards: map[core.Subject]*SkipList{},
		terms:  map[core.Subject]map[core.StudentID]core.Term{},
	}
}

// OnEvent has the signature of an event bus handler.
func (t *Tracker) OnEvent(_ context.Context, ev core.Event) {
	switch ev.Type {
	case core.EventScoreSetAdded, core.EventScoreUpdated:
		t.mu.Lock()
		for _, sc := range ev.Scores {
			t.record(ev.Student, ev.Term, sc.Subject, sc.Score)
		}
		t.mu.Unlock()
	case core.EventStudentRemoved:
		t.mu.Lock()
		for subject, board := range t.boards {
			board.Remove(ev.Student)
			delete(t.terms[subject], ev.Student)
		}
		t.mu.Unlock()
	}
}

// record keeps the score unless the board already holds a later term. Callers hold mu.
func (t *Tracker) record(id core.StudentID, term core.Term, subject core.Subject, score int) {
	terms := t.terms[subject]
	if terms == nil {
		terms = map[core.StudentID]core.Term{}
		t.terms[subject] = terms
		t.boards[subject] = NewSkipList()
	}
	if prev, ok := terms[id]; ok && term.Before(prev) {
		return
	}
	terms[id] = term
	t.boards[subject].Update(id, score)
}

// Warm loads every stored score so the boards start complete.
func (t *Tracker) Warm(ctx context.Context, store engine.ScoreReader) error {
	classes, err := store.ListClasses(ctx)
	if err != nil {
		return err
	}
	subjects := map[core.Subject]struct{}{}
	for _, class := range classes {
		list, err := store.ListSubjectsForClass(ctx, class)
		if err != nil {
			return err
		}
		for _, s := range list {
			subjects[s] = struct{}{}
		}
	}
	for subject := range subjects {
		records, err := store.GetScoreRecordsForSubject(ctx, subject)
		if err != nil {
			return err
		}
		t.mu.Lock()
		for _, r := range records {
			t.record(r.Student, r.Term, subject, r.Score)
		}
		t.mu.Unlock()
	}
	return nil
}

// Top returns the best n students of subject; n <= 0 returns everyone.
func (t *Tracker) Top(subject core.Subject, n int) []Entry {
	t.mu.Lock()
	board := t.boards[subject]
	t.mu.Unlock()
	if board == nil {
		return []Entry{}
	}
	return board.TopN(n)
}

// Subjects lists the subjects with a board, in name order.
func (t *Tracker) Subjects() []core.Subject {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.Subject, 0, len(t.boards))
	for s, b := range t.boards {
		if b.Len() > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
