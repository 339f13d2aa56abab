package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"gradekit/analytics"
	"gradekit/core"
	"gradekit/leaderboard"
)

const defaultLeaderboardSize = 10

func (a *api) subjectLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := defaultLeaderboardSize
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "n must be a non-negative integer", nil)
			return
		}
		n = parsed
	}
	subject := core.Subject(param(r, "subject"))
	entries := a.board.Top(subject, n)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, map[string]any{"subject": subject, "entries": entries})
}

func (a *api) leaderboards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"subjects": a.board.Subjects()})
}

// stats reports the counters for one day (default today) plus the all-time totals.
func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = analytics.Day(time.Now())
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_day", "day must look like YYYY-MM-DD", nil)
		return
	}
	writeJSON(w, map[string]any{
		"day":    a.metrics.Report(day, time.Now().UTC()),
		"totals": a.metrics.Totals(),
	})
}

func (a *api) statsReports(w http.ResponseWriter, r *http.Request) {
	if a.reports == nil {
		writeJSON(w, []*analytics.DailyReport{})
		return
	}
	writeJSON(w, a.reports.Reports())
}
