package sqlx_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	storage "gradekit/adapters/sqlx"
	"gradekit/adapters/storetest"
	"gradekit/engine"
)

var (
	_ engine.ScoreStore = (*storage.Store)(nil)
	_ engine.UserStore  = (*storage.UserStore)(nil)
)

func newSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = "file:" + filepath.Join(t.TempDir(), "grades.db") + "?_pragma=busy_timeout(5000)"
	s, err := storage.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) engine.ScoreStore { return newSQLiteStore(t) })
}

func TestSQLiteUserStore(t *testing.T) {
	storetest.RunUsers(t, func(t *testing.T) engine.UserStore { return storage.NewUserStore(newSQLiteStore(t)) })
}

func TestSQLiteCreateTablesIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.CreateTables(context.Background()))
	storetest.Seed(t, s)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, storage.DefaultConfig(storage.DriverPostgres).Validate())
	require.Error(t, storage.Config{Driver: "oracle", DSN: "x"}.Validate())
	require.Error(t, storage.Config{Driver: storage.DriverMySQL}.Validate())
}
