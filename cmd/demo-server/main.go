package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/crypto/bcrypt"

	mem "gradekit/adapters/memory"
	"gradekit/analytics"
	"gradekit/api/httpapi"
	"gradekit/core"
	"gradekit/engine"
	"gradekit/grades"
	"gradekit/leaderboard"
	"gradekit/realtime"
	"gradekit/users"
)

var demoTerm = core.Term{Year: 2024, Semester: 1}

// demoClass is seeded on startup so every query route has data.
var demoClass = []struct {
	student core.Student
	scores  core.ScoreSet
}{
	{core.Student{ID: "S1", Name: "Ann", Class: "10A"}, core.ScoreSet{"math": 90, "english": 70, "physics": 84}},
	{core.Student{ID: "S2", Name: "Bo", Class: "10A"}, core.ScoreSet{"math": 78, "english": 88}},
	{core.Student{ID: "S3", Name: "Cy", Class: "10A"}, core.ScoreSet{"math": 95, "physics": 61}},
	{core.Student{ID: "S4", Name: "Di", Class: "10B"}, core.ScoreSet{"math": 55, "english": 93}},
}

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(textHandler)
	slog.SetDefault(logger)

	ctx := context.Background()
	hub := realtime.NewHub()
	tracker := leaderboard.NewTracker()
	metrics := analytics.NewMetrics()
	svc := grades.New(
		grades.WithStore(mem.New()),
		grades.WithRealtime(hub),
		grades.WithDispatchMode(engine.DispatchAsync),
		grades.WithSettings(engine.Settings{DefaultTerm: demoTerm}),
		grades.WithEventHandlers(tracker.OnEvent, metrics.OnEvent),
		grades.WithLogger(logger),
	)
	defer svc.Close()

	for _, s := range demoClass {
		if err := svc.EnrollStudent(ctx, s.student); err != nil {
			slog.Error("seeding demo class", "student_id", s.student.ID, "error", err)
			os.Exit(1)
		}
		if err := svc.AddScoreSet(ctx, s.student.ID, s.scores, demoTerm); err != nil {
			slog.Error("seeding demo scores", "student_id", s.student.ID, "error", err)
			os.Exit(1)
		}
	}

	// demo admin: admin / admin123
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hashing demo admin password", "error", err)
		os.Exit(1)
	}
	accounts := users.NewService(mem.NewUserStore(), svc, users.StaticCredentials{"admin": string(hash)}, users.WithLogger(logger))

	handler := httpapi.NewMux(svc, accounts, hub, httpapi.Options{
		AllowCORSOrigin: "*",
		Logger:          logger,
		Leaderboard:     tracker,
		Metrics:         metrics,
	})

	slog.Info("starting demo server on :8080", "students", len(demoClass), "term", demoTerm.String())

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
