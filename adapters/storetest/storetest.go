// Package storetest is a conformance suite for engine.ScoreStore implementations.
package storetest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradekit/core"
	"gradekit/engine"
)

var (
	Term1 = core.Term{Year: 2024, Semester: 1}
	Term2 = core.Term{Year: 2024, Semester: 2}
)

// Run exercises store behaviour every adapter must share. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) engine.ScoreStore) {
	t.Run("StudentLifecycle", func(t *testing.T) { testStudentLifecycle(t, newStore(t)) })
	t.Run("PutAndFilter", func(t *testing.T) { testPutAndFilter(t, newStore(t)) })
	t.Run("PutUnknownStudent", func(t *testing.T) { testPutUnknownStudent(t, newStore(t)) })
	t.Run("ClassAndSubjectViews", func(t *testing.T) { testClassAndSubjectViews(t, newStore(t)) })
	t.Run("RemoveDropsRecords", func(t *testing.T) { testRemoveDropsRecords(t, newStore(t)) })
	t.Run("ConcurrentBatches", func(t *testing.T) { testConcurrentBatches(t, newStore(t)) })
}

// Seed enrolls S1, S2 (10A) and S3 (10B) with math scores 90, 78 and 95 in Term1.
func Seed(t *testing.T, s engine.ScoreStore) {
	t.Helper()
	ctx := context.Background()
	for _, st := range []core.Student{
		{ID: "S1", Name: "Ann", Class: "10A"},
		{ID: "S2", Name: "Bo", Class: "10A"},
		{ID: "S3", Name: "Cy", Class: "10B"},
	} {
		require.NoError(t, s.SaveStudent(ctx, st))
	}
	require.NoError(t, s.PutScoreRecords(ctx, "S1", Term1, []core.SubjectScore{{Subject: "math", Score: 90}, {Subject: "english", Score: 85}}))
	require.NoError(t, s.PutScoreRecords(ctx, "S2", Term1, []core.SubjectScore{{Subject: "math", Score: 78}}))
	require.NoError(t, s.PutScoreRecords(ctx, "S3", Term1, []core.SubjectScore{{Subject: "math", Score: 95}}))
}

func testStudentLifecycle(t *testing.T, s engine.ScoreStore) {
	ctx := context.Background()

	_, err := s.GetStudent(ctx, "S1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.SaveStudent(ctx, core.Student{ID: "S1", Name: "Ann", Class: "10A"}))
	got, err := s.GetStudent(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, core.Student{ID: "S1", Name: "Ann", Class: "10A"}, got)

	require.NoError(t, s.SaveStudent(ctx, core.Student{ID: "S1", Name: "Ann", Class: "11A"}))
	got, err = s.GetStudent(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, core.ClassName("11A"), got.Class)

	require.NoError(t, s.RemoveStudent(ctx, "S1"))
	_, err = s.GetStudent(ctx, "S1")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.ErrorIs(t, s.RemoveStudent(ctx, "S1"), core.ErrNotFound)
}

func testPutAndFilter(t *testing.T, s engine.ScoreStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveStudent(ctx, core.Student{ID: "S1", Class: "10A"}))
	require.NoError(t, s.PutScoreRecords(ctx, "S1", Term1, []core.SubjectScore{{Subject: "math", Score: 60}, {Subject: "art", Score: 70}}))
	require.NoError(t, s.PutScoreRecords(ctx, "S1", Term2, []core.SubjectScore{{Subject: "math", Score: 80}}))
	// overwrite of an existing (subject, term)
	require.NoError(t, s.PutScoreRecords(ctx, "S1", Term1, []core.SubjectScore{{Subject: "math", Score: 65}}))

	all, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ScoreRecord{
		{Subject: "math", Term: Term1, Score: 65},
		{Subject: "art", Term: Term1, Score: 70},
		{Subject: "math", Term: Term2, Score: 80},
	}, all)

	math, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{Subject: "math"})
	require.NoError(t, err)
	assert.Len(t, math, 2)

	term2, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{Year: 2024, Semester: 2})
	require.NoError(t, err)
	assert.Equal(t, []core.ScoreRecord{{Subject: "math", Term: Term2, Score: 80}}, term2)

	none, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{Year: 1999})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPutUnknownStudent(t *testing.T, s engine.ScoreStore) {
	ctx := context.Background()
	err := s.PutScoreRecords(ctx, "ghost", Term1, []core.SubjectScore{{Subject: "math", Score: 90}, {Subject: "english", Score: 85}})
	require.ErrorIs(t, err, core.ErrNotFound)

	recs, err := s.GetScoreRecordsForSubject(ctx, "math")
	require.NoError(t, err)
	assert.Empty(t, recs)
	recs, err = s.GetScoreRecordsForSubject(ctx, "english")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testClassAndSubjectViews(t *testing.T, s engine.ScoreStore) {
	ctx := context.Background()
	Seed(t, s)

	classes, err := s.ListClasses(ctx)
	require.NoError(t, err)
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	assert.Equal(t, []core.ClassName{"10A", "10B"}, classes)

	subjects, err := s.ListSubjectsForClass(ctx, "10A")
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.Subject{"english", "math"}, subjects)

	_, err = s.ListSubjectsForClass(ctx, "12Z")
	require.ErrorIs(t, err, core.ErrNotFound)

	classMath, err := s.GetScoreRecordsForClassSubject(ctx, "10A", "math")
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.StudentScore{
		{Student: "S1", Term: Term1, Score: 90},
		{Student: "S2", Term: Term1, Score: 78},
	}, classMath)

	allMath, err := s.GetScoreRecordsForSubject(ctx, "math")
	require.NoError(t, err)
	assert.Len(t, allMath, 3)
}

func testRemoveDropsRecords(t *testing.T, s engine.ScoreStore) {
	ctx := context.Background()
	Seed(t, s)
	require.NoError(t, s.RemoveStudent(ctx, "S3"))

	classes, err := s.ListClasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ClassName{"10A"}, classes)

	allMath, err := s.GetScoreRecordsForSubject(ctx, "math")
	require.NoError(t, err)
	assert.Len(t, allMath, 2)

	recs, err := s.GetScoreRecords(ctx, "S3", core.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// testConcurrentBatches checks that readers never observe half of a batch.
func testConcurrentBatches(t *testing.T, s engine.ScoreStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveStudent(ctx, core.Student{ID: "S1", Class: "10A"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			assert.NoError(t, s.PutScoreRecords(ctx, "S1", Term1, []core.SubjectScore{
				{Subject: "math", Score: v}, {Subject: "english", Score: v},
			}))
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{})
			if !assert.NoError(t, err) {
				return
			}
			if len(recs) == 2 {
				assert.Equal(t, recs[0].Score, recs[1].Score, "batch observed half-applied")
			}
		}()
	}
	wg.Wait()

	recs, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, recs[0].Score, recs[1].Score)
}
