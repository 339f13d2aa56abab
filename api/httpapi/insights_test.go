package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"gradekit/analytics"
	"gradekit/core"
	"gradekit/leaderboard"
)

func newInsightsHandler(t *testing.T) (http.Handler, *analytics.Aggregator) {
	t.Helper()
	svc := newTestService(t)
	tracker := leaderboard.NewTracker()
	metrics := analytics.NewMetrics()
	for _, typ := range core.AllEventTypes {
		svc.Subscribe(typ, tracker.OnEvent)
		svc.Subscribe(typ, metrics.OnEvent)
	}
	ctx := context.Background()
	for id, set := range map[core.StudentID]core.ScoreSet{
		"S1": {"math": 90},
		"S2": {"math": 78},
		"S3": {"math": 60},
	} {
		if err := svc.AddScoreSet(ctx, id, set, core.Term{Year: 2024, Semester: 2}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	agg := analytics.NewAggregator(metrics, nil, time.Hour, nil)
	if _, err := agg.AggregateNow(ctx); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	return NewMux(svc, nil, nil, Options{Leaderboard: tracker, Metrics: metrics, Reports: agg}), agg
}

func TestSubjectLeaderboard(t *testing.T) {
	handler, _ := newInsightsHandler(t)

	rec := do(t, handler, http.MethodGet, "/subjects/math/leaderboard?n=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decode[struct {
		Subject core.Subject        `json:"subject"`
		Entries []leaderboard.Entry `json:"entries"`
	}](t, rec)
	if got.Subject != "math" || len(got.Entries) != 2 {
		t.Fatalf("unexpected board %+v", got)
	}
	if got.Entries[0].Student != "S1" || got.Entries[0].Score != 90 || got.Entries[1].Student != "S2" {
		t.Fatalf("unexpected order %+v", got.Entries)
	}

	rec = do(t, handler, http.MethodGet, "/subjects/art/leaderboard", nil)
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["entries"] == nil {
		t.Fatalf("expected empty board, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, handler, http.MethodGet, "/subjects/math/leaderboard?n=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodGet, "/leaderboards", nil)
	subjects := decode[map[string][]core.Subject](t, rec)["subjects"]
	if len(subjects) != 1 || subjects[0] != "math" {
		t.Fatalf("unexpected subjects %v", subjects)
	}
}

func TestStats(t *testing.T) {
	handler, _ := newInsightsHandler(t)

	rec := do(t, handler, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decode[struct {
		Day    analytics.DailyReport `json:"day"`
		Totals analytics.Totals      `json:"totals"`
	}](t, rec)
	if got.Day.ActiveStudents != 3 || got.Day.ScoresWritten != 3 {
		t.Fatalf("unexpected day report %+v", got.Day)
	}
	if got.Totals.ScoresByClass["10A"] != 2 || got.Totals.ScoresByClass["10B"] != 1 {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}

	rec = do(t, handler, http.MethodGet, "/stats?day=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodGet, "/stats/reports", nil)
	if reports := decode[[]analytics.DailyReport](t, rec); len(reports) != 1 {
		t.Fatalf("expected one report, got %v", reports)
	}
}

func TestInsightRoutesAbsentWithoutTrackers(t *testing.T) {
	handler := NewMux(newTestService(t), nil, nil, Options{})
	for _, target := range []string{"/leaderboards", "/stats"} {
		if rec := do(t, handler, http.MethodGet, target, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
	}
}
