package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradekit/config"
	"gradekit/core"
)

func TestSetupStorage_MemoryAndFile(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	stores, cleanup, err := setupStorage(ctx, cfg, slog.Default())
	require.NoError(t, err)
	cleanup()
	require.NotNil(t, stores.Scores)
	require.NotNil(t, stores.Users)

	cfg.Storage.Adapter = config.AdapterFile
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "grades.json")
	stores, cleanup, err = setupStorage(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer cleanup()
	require.NoError(t, stores.Scores.SaveStudent(ctx, core.Student{ID: "S1", Class: "10A"}))

	cfg.Storage.Adapter = "tape"
	_, _, err = setupStorage(ctx, cfg, slog.Default())
	require.Error(t, err)
}

func TestUsersPath(t *testing.T) {
	assert.Equal(t, "/data/grades.users.json", usersPath("/data/grades.json"))
	assert.Equal(t, "grades.users.json", usersPath("grades"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}

func TestProvidersAssembleHandler(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Events.DispatchMode = "sync"
	logger := slog.New(slog.DiscardHandler)

	stores, cleanup, err := provideStores(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup()
	settings, err := provideSettings(cfg, logger)
	require.NoError(t, err)
	hub := provideHub()
	insights, stopInsights, err := provideInsights(context.Background(), cfg, stores, logger)
	require.NoError(t, err)
	defer stopInsights()
	svc, closeSvc := provideService(cfg, settings, stores, hub, provideWebhooks(cfg, logger), insights, logger)
	defer closeSvc()
	handler := provideHandler(svc, provideAccounts(stores, svc, cfg, logger), hub, insights, cfg, logger)

	req := httptest.NewRequest(http.MethodGet, cfg.Server.PathPrefix+"/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	require.NoError(t, svc.EnrollStudent(ctx, core.Student{ID: "S1", Class: "10A"}))
	require.NoError(t, svc.AddScoreSet(ctx, "S1", core.ScoreSet{"math": 88}, core.Term{Year: 2024, Semester: 1}))

	req = httptest.NewRequest(http.MethodGet, cfg.Server.PathPrefix+"/subjects/math/leaderboard", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"student_id":"S1"`)
}

func TestProvideInsights(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	cfg := config.DefaultConfig()
	stores, cleanup, err := provideStores(ctx, cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	term := core.Term{Year: 2024, Semester: 1}
	require.NoError(t, stores.Scores.SaveStudent(ctx, core.Student{ID: "S1", Class: "10A"}))
	require.NoError(t, stores.Scores.PutScoreRecords(ctx, "S1", term, []core.SubjectScore{{Subject: "math", Score: 75}}))

	insights, stop, err := provideInsights(ctx, cfg, stores, logger)
	require.NoError(t, err)
	defer stop()
	require.NotNil(t, insights.Aggregator)
	top := insights.Leaderboard.Top("math", 1)
	require.Len(t, top, 1)
	assert.Equal(t, 75, top[0].Score)

	cfg.Analytics.Enabled = false
	disabled, stopDisabled, err := provideInsights(ctx, cfg, stores, logger)
	require.NoError(t, err)
	stopDisabled()
	assert.Nil(t, disabled.Leaderboard)
}
