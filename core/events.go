package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventScoreSetAdded   EventType = "score_set_added"
	EventScoreUpdated    EventType = "score_updated"
	EventStudentEnrolled EventType = "student_enrolled"
	EventStudentRemoved  EventType = "student_removed"
)

// AllEventTypes lists every type the services publish.
var AllEventTypes = []EventType{EventScoreSetAdded, EventScoreUpdated, EventStudentEnrolled, EventStudentRemoved}

// Event represents an immutable domain event emitted after a successful write.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	Student  StudentID      `json:"student_id"`
	Class    ClassName      `json:"class,omitempty"`
	Term     Term           `json:"term,omitempty"`
	Scores   []SubjectScore `json:"scores,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewScoreSetAdded(student StudentID, term Term, scores []SubjectScore) Event {
	return Event{Type: EventScoreSetAdded, Time: time.Now().UTC(), Student: student, Term: term, Scores: scores}
}

func NewScoreUpdated(student StudentID, term Term, subject Subject, score int) Event {
	return Event{Type: EventScoreUpdated, Time: time.Now().UTC(), Student: student, Term: term,
		Scores: []SubjectScore{{Subject: subject, Score: score}}}
}

func NewStudentEnrolled(s Student) Event {
	return Event{Type: EventStudentEnrolled, Time: time.Now().UTC(), Student: s.ID, Class: s.Class}
}

func NewStudentRemoved(id StudentID) Event {
	return Event{Type: EventStudentRemoved, Time: time.Now().UTC(), Student: id}
}
