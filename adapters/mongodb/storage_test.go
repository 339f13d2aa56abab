package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"gradekit/core"
	"gradekit/engine"
)

var (
	_ engine.ScoreStore = (*Store)(nil)
	_ engine.UserStore  = (*UserStore)(nil)
)

const studentNS = "test.students"

func TestMapKey(t *testing.T) {
	if got := mapKey(scoresKey, "2024-1", "math"); got != "scores.2024-1.math" {
		t.Fatalf("mapKey = %q", got)
	}
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	term := core.Term{Year: 2024, Semester: 1}

	mt.Run("PutScoreRecords", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		err := s.PutScoreRecords(ctx, "S1", term, []core.SubjectScore{{Subject: "math", Score: 90}, {Subject: "art", Score: 70}})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
		for key, want := range map[string]int32{"scores.2024-1.math": 90, "scores.2024-1.art": 70} {
			got, ok := started.Command.Lookup("updates", "0", "u", actionSet, key).Int32OK()
			require.True(mt, ok, key)
			assert.Equal(mt, want, got, key)
		}
	})

	mt.Run("PutScoreRecordsUnknownStudent", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		err := s.PutScoreRecords(ctx, "S9", term, []core.SubjectScore{{Subject: "math", Score: 90}})
		require.ErrorIs(mt, err, core.ErrNotFound)
	})

	mt.Run("GetScoreRecords", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, studentNS, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "S1"},
			{Key: "scores", Value: bson.D{
				{Key: "2024-1", Value: bson.D{{Key: "math", Value: 90}, {Key: "art", Value: 70}}},
				{Key: "2024-2", Value: bson.D{{Key: "math", Value: 80}}},
			}},
		}))
		recs, err := s.GetScoreRecords(ctx, "S1", core.RecordFilter{Subject: "math"})
		require.NoError(mt, err)
		assert.ElementsMatch(mt, []core.ScoreRecord{
			{Subject: "math", Term: term, Score: 90},
			{Subject: "math", Term: core.Term{Year: 2024, Semester: 2}, Score: 80},
		}, recs)
	})

	mt.Run("GetStudentNotFound", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, studentNS, mtest.FirstBatch))
		_, err := s.GetStudent(ctx, "S1")
		require.ErrorIs(mt, err, core.ErrNotFound)
	})

	mt.Run("ClassSubjectScores", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, studentNS, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "S1"}, {Key: "class", Value: "10A"}, {Key: "scores", Value: bson.D{
				{Key: "2024-1", Value: bson.D{{Key: "math", Value: 90}}},
			}}},
			bson.D{{Key: "_id", Value: "S2"}, {Key: "class", Value: "10A"}, {Key: "scores", Value: bson.D{
				{Key: "2024-1", Value: bson.D{{Key: "art", Value: 60}}},
			}}},
		))
		got, err := s.GetScoreRecordsForClassSubject(ctx, "10A", "math")
		require.NoError(mt, err)
		assert.Equal(mt, []core.StudentScore{{Student: "S1", Term: term, Score: 90}}, got)
	})

	mt.Run("ListSubjectsForEmptyClass", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, studentNS, mtest.FirstBatch))
		_, err := s.ListSubjectsForClass(ctx, "12Z")
		require.ErrorIs(mt, err, core.ErrNotFound)
	})

	mt.Run("ListClasses", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "values", Value: bson.A{"10A", "10B"}}))
		classes, err := s.ListClasses(ctx)
		require.NoError(mt, err)
		assert.Equal(mt, []core.ClassName{"10A", "10B"}, classes)
	})

	mt.Run("RemoveUnknownStudent", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		require.ErrorIs(mt, s.RemoveStudent(ctx, "S1"), core.ErrNotFound)
	})

	mt.Run("CommandErrorIsTransient", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 91, Name: "ShutdownInProgress", Message: "shutting down",
		}))
		err := s.SaveStudent(ctx, core.Student{ID: "S1", Class: "10A"})
		require.ErrorIs(mt, err, core.ErrTransient)
	})
}

func TestMongoUserStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("CreateDuplicate", func(mt *mtest.T) {
		s := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}))
		err := s.Create(ctx, core.User{Username: "ann", Role: core.RoleAdmin})
		require.ErrorIs(mt, err, core.ErrConflict)
	})

	mt.Run("FindByStudentID", func(mt *mtest.T) {
		s := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, bson.D{
			{Key: "username", Value: "ann"},
			{Key: "role", Value: "student"},
			{Key: "name", Value: "Ann"},
			{Key: "student_id", Value: "S1"},
			{Key: "class", Value: "10A"},
		}))
		u, err := s.FindByStudentID(ctx, "S1")
		require.NoError(mt, err)
		assert.Equal(mt, "ann", u.Username)
		assert.Equal(mt, core.ClassName("10A"), u.Class)
	})

	mt.Run("ListUsernames", func(mt *mtest.T) {
		s := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch,
			bson.D{{Key: "username", Value: "admin"}},
			bson.D{{Key: "username", Value: "ann"}},
		))
		names, err := s.ListUsernames(ctx)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"admin", "ann"}, names)
	})

	mt.Run("DeleteMissing", func(mt *mtest.T) {
		s := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		require.ErrorIs(mt, s.Delete(ctx, "ghost"), core.ErrNotFound)
	})
}
