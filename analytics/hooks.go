package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"gradekit/core"
)

// Hook receives domain events. It has the signature of an event bus handler.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

const dayLayout = "2006-01-02"

// Day formats t as the key used by the daily counters.
func Day(t time.Time) string { return t.UTC().Format(dayLayout) }

type subjectTotals struct {
	count int64
	sum   int64
}

// Metrics counts grading activity per day, subject and class.
type Metrics struct {
	mu sync.RWMutex

	eventsByDay   map[string]map[core.EventType]int64
	activeByDay   map[string]map[core.StudentID]struct{}
	scoresByDay   map[string]int64
	scoresBySubj  map[core.Subject]*subjectTotals
	scoresByClass map[core.ClassName]int64
	enrolled      int64
	removed       int64
	lastEventAt   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		eventsByDay:   make(map[string]map[core.EventType]int64),
		activeByDay:   make(map[string]map[core.StudentID]struct{}),
		scoresByDay:   make(map[string]int64),
		scoresBySubj:  make(map[core.Subject]*subjectTotals),
		scoresByClass: make(map[core.ClassName]int64),
	}
}

func (m *Metrics) OnEvent(_ context.Context, e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := Day(e.Time)
	if m.eventsByDay[day] == nil {
		m.eventsByDay[day] = make(map[core.EventType]int64)
	}
	m.eventsByDay[day][e.Type]++
	if e.Time.After(m.lastEventAt) {
		m.lastEventAt = e.Time
	}

	switch e.Type {
	case core.EventScoreSetAdded, core.EventScoreUpdated:
		if m.activeByDay[day] == nil {
			m.activeByDay[day] = make(map[core.StudentID]struct{})
		}
		m.activeByDay[day][e.Student] = struct{}{}
		for _, sc := range e.Scores {
			t := m.scoresBySubj[sc.Subject]
			if t == nil {
				t = &subjectTotals{}
				m.scoresBySubj[sc.Subject] = t
			}
			t.count++
			t.sum += int64(sc.Score)
		}
		m.scoresByDay[day] += int64(len(e.Scores))
		if e.Class != "" {
			m.scoresByClass[e.Class] += int64(len(e.Scores))
		}
	case core.EventStudentEnrolled:
		m.enrolled++
	case core.EventStudentRemoved:
		m.removed++
	}
}

// ActiveStudents counts the students that received a score on day.
func (m *Metrics) ActiveStudents(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByDay[day])
}

func (m *Metrics) EventCount(day string, typ core.EventType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsByDay[day][typ]
}

// SubjectActivity describes the scores written for one subject.
type SubjectActivity struct {
	Subject core.Subject `json:"subject"`
	Scores  int64        `json:"scores"`
	Mean    float64      `json:"mean"`
}

// Subjects reports per-subject write volume and mean written score, by subject name.
func (m *Metrics) Subjects() []SubjectActivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SubjectActivity, 0, len(m.scoresBySubj))
	for s, t := range m.scoresBySubj {
		out = append(out, SubjectActivity{Subject: s, Scores: t.count, Mean: float64(t.sum) / float64(t.count)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// Totals is the all-time view of the counters.
type Totals struct {
	Enrolled      int64                    `json:"students_enrolled"`
	Removed       int64                    `json:"students_removed"`
	ScoresByClass map[core.ClassName]int64 `json:"scores_by_class"`
	Subjects      []SubjectActivity        `json:"subjects"`
	LastEventAt   time.Time                `json:"last_event_at"`
}

func (m *Metrics) Totals() Totals {
	subjects := m.Subjects()
	m.mu.RLock()
	defer m.mu.RUnlock()
	byClass := make(map[core.ClassName]int64, len(m.scoresByClass))
	for k, v := range m.scoresByClass {
		byClass[k] = v
	}
	return Totals{
		Enrolled:      m.enrolled,
		Removed:       m.removed,
		ScoresByClass: byClass,
		Subjects:      subjects,
		LastEventAt:   m.lastEventAt,
	}
}
