package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gradekit/core"
)

// DailyReport is a snapshot of one day of grading activity.
type DailyReport struct {
	Day            string                   `json:"day"`
	CreatedAt      time.Time                `json:"created_at"`
	ActiveStudents int                      `json:"active_students"`
	ScoresWritten  int64                    `json:"scores_written"`
	Events         map[core.EventType]int64 `json:"events"`
	Subjects       []SubjectActivity        `json:"subjects"`
}

// Report builds the snapshot for day from the live counters.
func (m *Metrics) Report(day string, now time.Time) *DailyReport {
	subjects := m.Subjects()
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make(map[core.EventType]int64, len(m.eventsByDay[day]))
	for k, v := range m.eventsByDay[day] {
		events[k] = v
	}
	return &DailyReport{
		Day:            day,
		CreatedAt:      now,
		ActiveStudents: len(m.activeByDay[day]),
		ScoresWritten:  m.scoresByDay[day],
		Events:         events,
		Subjects:       subjects,
	}
}

// Aggregator snapshots Metrics on an interval and hands each report to an Exporter.
type Aggregator struct {
	metrics  *Metrics
	exporter Exporter
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	reports map[string]*DailyReport
	last    time.Time
}

func NewAggregator(metrics *Metrics, exporter Exporter, interval time.Duration, logger *slog.Logger) *Aggregator {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		metrics:  metrics,
		exporter: exporter,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		reports:  make(map[string]*DailyReport),
	}
}

// AggregateNow snapshots the current day and exports the report if an exporter is set.
func (a *Aggregator) AggregateNow(ctx context.Context) (*DailyReport, error) {
	now := a.now()
	r := a.metrics.Report(Day(now), now)

	a.mu.Lock()
	a.reports[r.Day] = r
	a.last = now
	a.mu.Unlock()

	if a.exporter != nil {
		if err := a.exporter.Export(ctx, r); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Report returns the last snapshot taken for day.
func (a *Aggregator) Report(day string) (*DailyReport, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.reports[day]
	return r, ok
}

// Reports returns every snapshot ordered by day.
func (a *Aggregator) Reports() []*DailyReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*DailyReport, 0, len(a.reports))
	for _, r := range a.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Start aggregates immediately, then on every tick until ctx is done.
// Pending exports are flushed on the way out.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.run(ctx, "initial")
	for {
		select {
		case <-ctx.Done():
			if a.exporter != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := a.exporter.Flush(flushCtx); err != nil {
					a.logger.Warn("analytics flush failed", "error", err)
				}
				cancel()
			}
			return
		case <-ticker.C:
			a.run(ctx, "periodic")
		}
	}
}

func (a *Aggregator) run(ctx context.Context, kind string) {
	r, err := a.AggregateNow(ctx)
	if err != nil {
		a.logger.Warn("analytics aggregation failed", "kind", kind, "error", err)
		return
	}
	a.logger.Debug("analytics aggregated", "kind", kind, "day", r.Day, "scores", r.ScoresWritten)
}
