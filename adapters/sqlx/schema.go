package sqlx

import (
	"context"
	"fmt"
)

func (s *Store) schema() []string {
	blob, ts := "BLOB", "TIMESTAMP"
	switch s.driver {
	case DriverPostgres:
		blob = "BYTEA"
	case DriverMySQL:
		blob, ts = "VARBINARY(255)", "DATETIME(6)"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS students (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			class VARCHAR(64) NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS scores (
			student_id VARCHAR(64) NOT NULL,
			subject VARCHAR(64) NOT NULL,
			year INTEGER NOT NULL,
			semester INTEGER NOT NULL,
			score INTEGER NOT NULL,
			updated_at %s NOT NULL,
			PRIMARY KEY (student_id, subject, year, semester)
		)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			username VARCHAR(64) PRIMARY KEY,
			password_hash %s NOT NULL,
			role VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			student_id VARCHAR(64) NOT NULL DEFAULT '',
			class VARCHAR(64) NOT NULL DEFAULT '',
			subjects VARCHAR(1024) NOT NULL DEFAULT '',
			classes VARCHAR(1024) NOT NULL DEFAULT ''
		)`, blob),
	}
}

// CreateTables creates the store's tables when they are missing.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// upsert returns the driver's "insert or replace on key" suffix for the given
// conflict columns and updated columns.
func (s *Store) upsert(conflict string, cols ...string) string {
	if s.driver == DriverMySQL {
		out := " ON DUPLICATE KEY UPDATE "
		for i, c := range cols {
			if i > 0 {
				out += ", "
			}
			out += c + " = VALUES(" + c + ")"
		}
		return out
	}
	out := " ON CONFLICT (" + conflict + ") DO UPDATE SET "
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c + " = excluded." + c
	}
	return out
}
