// Package leaderboard keeps live per-subject rankings fed by score events.
package leaderboard

import "gradekit/core"

// Entry represents a student's score on a board.
type Entry struct {
	Student core.StudentID `json:"student_id"`
	Score   int            `json:"score"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(student core.StudentID, score int)
	Remove(student core.StudentID)
	TopN(n int) []Entry
	Get(student core.StudentID) (Entry, bool)
	Len() int
}
