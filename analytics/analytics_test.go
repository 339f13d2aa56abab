package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradekit/core"
)

var term = core.Term{Year: 2024, Semester: 1}

func scoreSet(student core.StudentID, class core.ClassName, at time.Time, scores ...core.SubjectScore) core.Event {
	ev := core.NewScoreSetAdded(student, term, scores)
	ev.Class = class
	ev.Time = at
	return ev
}

func TestMetricsCountsScoreEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	m.OnEvent(ctx, core.NewStudentEnrolled(core.Student{ID: "S1", Class: "10A"}))
	m.OnEvent(ctx, scoreSet("S1", "10A", at,
		core.SubjectScore{Subject: "math", Score: 90},
		core.SubjectScore{Subject: "english", Score: 70}))
	upd := core.NewScoreUpdated("S2", term, "math", 80)
	upd.Class, upd.Time = "10B", at
	m.OnEvent(ctx, upd)
	m.OnEvent(ctx, core.NewStudentRemoved("S9"))

	day := Day(at)
	assert.Equal(t, 2, m.ActiveStudents(day))
	assert.Equal(t, int64(1), m.EventCount(day, core.EventScoreSetAdded))
	assert.Equal(t, int64(1), m.EventCount(day, core.EventScoreUpdated))

	totals := m.Totals()
	assert.Equal(t, int64(1), totals.Enrolled)
	assert.Equal(t, int64(1), totals.Removed)
	assert.Equal(t, map[core.ClassName]int64{"10A": 2, "10B": 1}, totals.ScoresByClass)
	require.Len(t, totals.Subjects, 2)
	assert.Equal(t, SubjectActivity{Subject: "english", Scores: 1, Mean: 70}, totals.Subjects[0])
	assert.Equal(t, SubjectActivity{Subject: "math", Scores: 2, Mean: 85}, totals.Subjects[1])
}

func TestBridgeHookFansOut(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	at := time.Now().UTC()
	NewBridge(a, b).OnEvent(context.Background(), scoreSet("S1", "10A", at, core.SubjectScore{Subject: "math", Score: 50}))
	assert.Equal(t, 1, a.ActiveStudents(Day(at)))
	assert.Equal(t, 1, b.ActiveStudents(Day(at)))
}

type recordingExporter struct {
	reports []*DailyReport
	flushed int
}

func (r *recordingExporter) Export(_ context.Context, d *DailyReport) error {
	r.reports = append(r.reports, d)
	return nil
}
func (r *recordingExporter) Flush(context.Context) error { r.flushed++; return nil }
func (r *recordingExporter) Close() error { return nil }

func TestAggregatorSnapshotsAndExports(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m.OnEvent(ctx, scoreSet("S1", "10A", at, core.SubjectScore{Subject: "math", Score: 90}))

	rec := &recordingExporter{}
	agg := NewAggregator(m, rec, time.Minute, nil)
	agg.now = func() time.Time { return at.Add(time.Hour) }

	r, err := agg.AggregateNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", r.Day)
	assert.Equal(t, 1, r.ActiveStudents)
	assert.Equal(t, int64(1), r.ScoresWritten)
	assert.Equal(t, int64(1), r.Events[core.EventScoreSetAdded])

	require.Len(t, rec.reports, 1)
	got, ok := agg.Report("2024-03-01")
	require.True(t, ok)
	assert.Same(t, r, got)
	assert.Len(t, agg.Reports(), 1)
}

func TestAggregatorStartFlushesOnCancel(t *testing.T) {
	rec := &recordingExporter{}
	agg := NewAggregator(NewMetrics(), rec, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(agg.Reports()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("aggregator did not stop")
	}
	assert.Equal(t, 1, rec.flushed)
}

func TestHTTPExporterBatches(t *testing.T) {
	var batches [][]DailyReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var batch []DailyReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		batches = append(batches, batch)
	}))
	defer srv.Close()

	ctx := context.Background()
	ex := NewHTTPExporter(srv.URL, "secret", 2)
	require.NoError(t, ex.Export(ctx, &DailyReport{Day: "2024-03-01"}))
	assert.Empty(t, batches)
	require.NoError(t, ex.Export(ctx, &DailyReport{Day: "2024-03-02"}))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)

	require.NoError(t, ex.Export(ctx, &DailyReport{Day: "2024-03-03"}))
	require.NoError(t, ex.Close())
	require.Len(t, batches, 2)
	assert.Equal(t, "2024-03-03", batches[1][0].Day)
}

func TestHTTPExporterKeepsBufferOnFailure(t *testing.T) {
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "down", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	ex := NewHTTPExporter(srv.URL, "", 1)
	err := ex.Export(context.Background(), &DailyReport{Day: "2024-03-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	fail = false
	require.NoError(t, ex.Flush(context.Background()))
	assert.Empty(t, ex.buffer)
}

type failingExporter struct{ recordingExporter }

func (f *failingExporter) Export(context.Context, *DailyReport) error { return assert.AnError }

func TestMultiExporterContinuesPastFailures(t *testing.T) {
	ok := &recordingExporter{}
	multi := NewMultiExporter(nil, &failingExporter{}, ok, NewLogExporter(nil))
	require.NoError(t, multi.Export(context.Background(), &DailyReport{Day: "2024-03-01"}))
	assert.Len(t, ok.reports, 1)
	require.NoError(t, multi.Flush(context.Background()))
	assert.Equal(t, 1, ok.flushed)
	require.NoError(t, multi.Close())
}

func TestHTTPExporterBoundsPendingReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := NewHTTPExporter(srv.URL, "", 1)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxPending+20; i++ {
		err := ex.Export(context.Background(), &DailyReport{Day: Day(start.AddDate(0, 0, i))})
		require.Error(t, err)
	}
	require.Len(t, ex.buffer, maxPending)
	assert.Equal(t, Day(start.AddDate(0, 0, 20)), ex.buffer[0].Day)
	assert.Equal(t, Day(start.AddDate(0, 0, maxPending+19)), ex.buffer[maxPending-1].Day)
}
