package engine

import (
	"log/slog"
	"time"

	"gradekit/aggregate"
	"gradekit/core"
)

// Settings carries the grading policy and store guard shared by the services.
type Settings struct {
	Policy core.ScorePolicy
	Bands  []aggregate.Band
	// DefaultTerm is written by UpdateScore for students with no records yet.
	DefaultTerm  core.Term
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultSettings uses 0..100 scores, the default grade bands and a 3s store timeout.
func DefaultSettings() Settings {
	return Settings{
		Policy:       core.DefaultScorePolicy(),
		Bands:        aggregate.DefaultBands(),
		DefaultTerm:  core.Term{Year: time.Now().Year(), Semester: 1},
		StoreTimeout: 3 * time.Second,
		Logger:       slog.Default(),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Policy == (core.ScorePolicy{}) {
		s.Policy = d.Policy
	}
	if len(s.Bands) == 0 {
		s.Bands = d.Bands
	}
	if s.DefaultTerm.IsZero() {
		s.DefaultTerm = d.DefaultTerm
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = d.StoreTimeout
	}
	if s.Logger == nil {
		s.Logger = d.Logger
	}
	return s
}
