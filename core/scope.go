package core

import (
	"fmt"
	"math"
	"sort"
)

// ScopeKind selects how a student's records collapse to one score per subject.
type ScopeKind int

const (
	// ScopeLatest keeps the most recent term's record per subject.
	ScopeLatest ScopeKind = iota
	// ScopeTerm keeps records of exactly one term.
	ScopeTerm
	// ScopeYear averages all terms of one academic year per subject.
	ScopeYear
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeTerm:
		return "term"
	case ScopeYear:
		return "year"
	default:
		return "latest"
	}
}

// Scope is the term selector of score queries. The zero value is LatestScope.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Term Term      `json:"term,omitempty"`
	Year int       `json:"year,omitempty"`
}

func LatestScope() Scope { return Scope{Kind: ScopeLatest} }
func TermScope(t Term) Scope { return Scope{Kind: ScopeTerm, Term: t} }
func YearScope(year int) Scope { return Scope{Kind: ScopeYear, Year: year} }

// Validate rejects malformed scopes.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeLatest:
		return nil
	case ScopeTerm:
		return ValidateTerm(s.Term)
	case ScopeYear:
		if s.Year <= 0 {
			return fmt.Errorf("%w: year %d must be positive", ErrValidation, s.Year)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scope kind %d", ErrValidation, s.Kind)
	}
}

// Filter is the store-side narrowing for the scope.
func (s Scope) Filter() RecordFilter {
	switch s.Kind {
	case ScopeTerm:
		return RecordFilter{Year: s.Term.Year, Semester: s.Term.Semester}
	case ScopeYear:
		return RecordFilter{Year: s.Year}
	default:
		return RecordFilter{}
	}
}

// Collapse reduces a student's records to one score per subject under scope.
// Year scope averages the subject's terms and rounds half away from zero.
func Collapse(records []ScoreRecord, scope Scope) map[Subject]int {
	f := scope.Filter()
	groups := make(map[Subject][]ScoreRecord)
	for _, r := range records {
		if f.Matches(r) {
			groups[r.Subject] = append(groups[r.Subject], r)
		}
	}
	out := make(map[Subject]int, len(groups))
	for subj, rs := range groups {
		out[subj] = reduce(termScores(rs), scope.Kind)
	}
	return out
}

// CollapseStudents reduces per-student records of one subject to one score per
// student under scope, with the same rules as Collapse.
func CollapseStudents(records []StudentScore, scope Scope) map[StudentID]int {
	f := scope.Filter()
	groups := make(map[StudentID][]termScore)
	for _, r := range records {
		if f.Matches(ScoreRecord{Term: r.Term, Score: r.Score}) {
			groups[r.Student] = append(groups[r.Student], termScore{term: r.Term, score: r.Score})
		}
	}
	out := make(map[StudentID]int, len(groups))
	for id, ts := range groups {
		out[id] = reduce(ts, scope.Kind)
	}
	return out
}

// LatestTerm returns the most recent term among records, and false when there are none.
func LatestTerm(records []ScoreRecord) (Term, bool) {
	var latest Term
	found := false
	for _, r := range records {
		if !found || latest.Before(r.Term) {
			latest = r.Term
			found = true
		}
	}
	return latest, found
}

// Subjects lists the distinct subjects of records in name order.
func Subjects(records []ScoreRecord) []Subject {
	seen := make(map[Subject]struct{}, len(records))
	out := make([]Subject, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Subject]; ok {
			continue
		}
		seen[r.Subject] = struct{}{}
		out = append(out, r.Subject)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type termScore struct {
	term  Term
	score int
}

func termScores(rs []ScoreRecord) []termScore {
	out := make([]termScore, len(rs))
	for i, r := range rs {
		out[i] = termScore{term: r.Term, score: r.Score}
	}
	return out
}

func reduce(ts []termScore, kind ScopeKind) int {
	switch kind {
	case ScopeYear:
		sum := 0
		for _, t := range ts {
			sum += t.score
		}
		return int(math.Round(float64(sum) / float64(len(ts))))
	default:
		// a term scope has at most one record per subject, so latest covers it too
		best := ts[0]
		for _, t := range ts[1:] {
			if best.term.Before(t.term) {
				best = t
			}
		}
		return best.score
	}
}
