package engine

import (
	"context"
	"fmt"
	"sort"

	"gradekit/aggregate"
	"gradekit/core"
)

// QueryService answers score questions by fetching snapshots from the store and
// handing them to the aggregate package.
type QueryService struct {
	store    ScoreReader
	settings Settings
	guard    guard
}

func NewQueryService(store ScoreReader, settings Settings) *QueryService {
	if store == nil {
		panic("NewQueryService requires a non-nil store")
	}
	settings = settings.withDefaults()
	return &QueryService{
		store:    store,
		settings: settings,
		guard:    guard{timeout: settings.StoreTimeout, log: settings.Logger},
	}
}

// Bands returns the grade bands used by ClassSubjectStatistics.
func (q *QueryService) Bands() []aggregate.Band {
	return append([]aggregate.Band(nil), q.settings.Bands...)
}

// ScoresForStudent returns one score per subject of the student under scope.
func (q *QueryService) ScoresForStudent(ctx context.Context, id core.StudentID, scope core.Scope) (map[core.Subject]int, error) {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if _, err := q.student(ctx, id); err != nil {
		return nil, err
	}
	records, err := storeCall(ctx, q.guard, "get_score_records", func(c context.Context) ([]core.ScoreRecord, error) {
		return q.store.GetScoreRecords(c, id, scope.Filter())
	}, "student_id", id)
	if err != nil {
		return nil, err
	}
	return core.Collapse(records, scope), nil
}

// ScoreForSubject returns the student's most recent score in subject as a singleton mapping.
func (q *QueryService) ScoreForSubject(ctx context.Context, id core.StudentID, subject core.Subject) (map[core.Subject]int, error) {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateSubject(subject); err != nil {
		return nil, err
	}
	records, err := storeCall(ctx, q.guard, "get_score_records", func(c context.Context) ([]core.ScoreRecord, error) {
		return q.store.GetScoreRecords(c, id, core.RecordFilter{Subject: subject})
	}, "student_id", id, "subject", subject)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no %s score for student %s", core.ErrNotFound, subject, id)
	}
	return core.Collapse(records, core.LatestScope()), nil
}

// ClassScoresForSubject lists one score per scored student of the class.
// Students without a record are left out rather than reported as zero.
func (q *QueryService) ClassScoresForSubject(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope, order aggregate.Order) ([]aggregate.Entry[core.StudentID], error) {
	scores, err := q.classSubjectScores(ctx, class, subject, scope)
	if err != nil {
		return nil, err
	}
	return aggregate.Sort(scores, order), nil
}

// SubjectsForStudent lists the distinct subjects the student has scores in.
func (q *QueryService) SubjectsForStudent(ctx context.Context, id core.StudentID) ([]core.Subject, error) {
	id, err := core.NormalizeStudentID(id)
	if err != nil {
		return nil, err
	}
	if _, err := q.student(ctx, id); err != nil {
		return nil, err
	}
	records, err := storeCall(ctx, q.guard, "get_score_records", func(c context.Context) ([]core.ScoreRecord, error) {
		return q.store.GetScoreRecords(c, id, core.RecordFilter{})
	}, "student_id", id)
	if err != nil {
		return nil, err
	}
	return core.Subjects(records), nil
}

// ClassesList lists every class with at least one enrolled student.
func (q *QueryService) ClassesList(ctx context.Context) ([]core.ClassName, error) {
	classes, err := storeCall(ctx, q.guard, "list_classes", q.store.ListClasses)
	if err != nil {
		return nil, err
	}
	out := append([]core.ClassName{}, classes...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// SubjectsForClass lists the subjects scored by the class's students.
func (q *QueryService) SubjectsForClass(ctx context.Context, class core.ClassName) ([]core.Subject, error) {
	class, err := core.NormalizeClass(class)
	if err != nil {
		return nil, err
	}
	subjects, err := storeCall(ctx, q.guard, "list_subjects_for_class", func(c context.Context) ([]core.Subject, error) {
		return q.store.ListSubjectsForClass(c, class)
	}, "class", class)
	if err != nil {
		return nil, err
	}
	out := append([]core.Subject{}, subjects...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ThresholdQuery returns, across all classes, the students whose subject score is
// strictly above or below threshold.
func (q *QueryService) ThresholdQuery(ctx context.Context, subject core.Subject, threshold int, dir aggregate.Direction, scope core.Scope) (map[core.StudentID]int, error) {
	if err := core.ValidateSubject(subject); err != nil {
		return nil, err
	}
	if dir != aggregate.Above && dir != aggregate.Below {
		return nil, fmt.Errorf("%w: unknown threshold direction", core.ErrValidation)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	records, err := storeCall(ctx, q.guard, "get_score_records_for_subject", func(c context.Context) ([]core.StudentScore, error) {
		return q.store.GetScoreRecordsForSubject(c, subject)
	}, "subject", subject)
	if err != nil {
		return nil, err
	}
	scores := core.CollapseStudents(records, scope)
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: no student has a %s score", core.ErrNotFound, subject)
	}
	return aggregate.ThresholdFilter(scores, threshold, dir), nil
}

// ClassSubjectStatistics counts the class's scores per grade band.
func (q *QueryService) ClassSubjectStatistics(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) ([]aggregate.Bucket, error) {
	scores, err := q.classSubjectScores(ctx, class, subject, scope)
	if err != nil {
		return nil, err
	}
	return aggregate.Distribution(aggregate.Values(scores), q.settings.Bands), nil
}

// ClassSubjectSummary reports count, extremes, mean and median of the class's scores.
func (q *QueryService) ClassSubjectSummary(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) (aggregate.Summary, error) {
	scores, err := q.classSubjectScores(ctx, class, subject, scope)
	if err != nil {
		return aggregate.Summary{}, err
	}
	return aggregate.Summarize(aggregate.Values(scores)), nil
}

// ClassSubjectRanking ranks the class's students by score, ties sharing a position.
func (q *QueryService) ClassSubjectRanking(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) ([]aggregate.Position[core.StudentID], error) {
	scores, err := q.classSubjectScores(ctx, class, subject, scope)
	if err != nil {
		return nil, err
	}
	return aggregate.Rank(scores), nil
}

func (q *QueryService) classSubjectScores(ctx context.Context, class core.ClassName, subject core.Subject, scope core.Scope) (map[core.StudentID]int, error) {
	class, err := core.NormalizeClass(class)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateSubject(subject); err != nil {
		return nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	records, err := storeCall(ctx, q.guard, "get_score_records_for_class_subject", func(c context.Context) ([]core.StudentScore, error) {
		return q.store.GetScoreRecordsForClassSubject(c, class, subject)
	}, "class", class, "subject", subject)
	if err != nil {
		return nil, err
	}
	scores := core.CollapseStudents(records, scope)
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: class %s has no %s scores", core.ErrNotFound, class, subject)
	}
	return scores, nil
}

func (q *QueryService) student(ctx context.Context, id core.StudentID) (core.Student, error) {
	return storeCall(ctx, q.guard, "get_student", func(c context.Context) (core.Student, error) {
		return q.store.GetStudent(c, id)
	}, "student_id", id)
}
