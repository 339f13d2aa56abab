package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gradekit/core"
	"gradekit/engine"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, AdapterMemory, cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 100, cfg.Grading.ScoreMax)
}

func TestLoadFromEnv(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Setenv("GRADEKIT_ENV", "staging")
	t.Setenv("GRADEKIT_SERVER_ADDR", ":7070")
	t.Setenv("GRADEKIT_STORAGE_ADAPTER", "redis")
	t.Setenv("GRADEKIT_STORAGE_REDIS_ADDR", "cache:6379")
	t.Setenv("GRADEKIT_GRADING_STORE_TIMEOUT", "750ms")
	t.Setenv("GRADEKIT_GRADING_DEFAULT_TERM", "2025-2")
	t.Setenv("GRADEKIT_SECURITY_API_KEYS", "k1,k2")
	t.Setenv("GRADEKIT_ADMINS", "root:"+string(hash))
	t.Setenv("GRADEKIT_WEBHOOK_ENDPOINTS", "http://hooks.local/a")
	t.Setenv("GRADEKIT_ANALYTICS_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Grading.StoreTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
	assert.Equal(t, string(hash), cfg.Admins["root"])
	assert.Equal(t, []string{"http://hooks.local/a"}, cfg.Webhooks.Endpoints)
	assert.Equal(t, 15*time.Minute, cfg.Analytics.Interval)
	assert.True(t, cfg.Analytics.Enabled)

	settings, err := cfg.Grading.Settings(nil)
	require.NoError(t, err)
	assert.Equal(t, core.Term{Year: 2025, Semester: 2}, settings.DefaultTerm)
	assert.Equal(t, 750*time.Millisecond, settings.StoreTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "gradekit.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"environment": "testing",
		"server": {"address": ":9090"},
		"storage": {"adapter": "memory"}
	}`), 0o600))

	cfg, err := LoadFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout, "unset fields keep defaults")

	yamlPath := filepath.Join(dir, "gradekit.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
environment: production
storage:
  adapter: sql
  sql:
    driver: sqlite
    dsn: "file:grades.db"
grading:
  score_max: 150
  store_timeout: 2s
  bands:
    - {label: low, low: 0, high: 100}
    - {label: high, low: 100, high: 150}
events:
  dispatch_mode: sync
`), 0o600))

	cfg, err = LoadFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "file:grades.db", cfg.Storage.SQL.DSN)
	assert.Equal(t, 2*time.Second, cfg.Grading.StoreTimeout)
	assert.Len(t, cfg.Grading.Bands, 2)
	assert.Equal(t, engine.DispatchSync, cfg.Events.Mode())

	settings, err := cfg.Grading.Settings(nil)
	require.NoError(t, err)
	assert.Equal(t, core.ScorePolicy{Min: 0, Max: 150}, settings.Policy)
}

func TestDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GRADEKIT_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("GRADEKIT_ENV_FILE", path)
	// godotenv writes into the process environment
	t.Cleanup(func() { os.Unsetenv("GRADEKIT_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "invalid environment", mutate: func(c *Config) { c.Environment = "" }, expectError: "Environment"},
		{name: "invalid server timeout", mutate: func(c *Config) { c.Server.ReadTimeout = 0 }, expectError: "Server.ReadTimeout"},
		{name: "unknown adapter", mutate: func(c *Config) { c.Storage.Adapter = "cassandra" }, expectError: "Storage.Adapter"},
		{name: "file without path", mutate: func(c *Config) { c.Storage.Adapter = AdapterFile; c.Storage.File.Path = "" }, expectError: "path cannot be empty"},
		{name: "sql bad driver", mutate: func(c *Config) { c.Storage.Adapter = AdapterSQL; c.Storage.SQL.Driver = "oracle" }, expectError: "unsupported sql driver"},
		{name: "inverted policy", mutate: func(c *Config) { c.Grading.ScoreMax = -1 }, expectError: "score_max"},
		{name: "gap in bands", mutate: func(c *Config) { c.Grading.Bands[1].Low = 65 }, expectError: "bands"},
		{name: "bad default term", mutate: func(c *Config) { c.Grading.DefaultTerm = "2024-3" }, expectError: "default_term"},
		{name: "plain admin password", mutate: func(c *Config) { c.Admins = map[string]string{"root": "hunter2"} }, expectError: "bcrypt"},
		{name: "rate limit without rpm", mutate: func(c *Config) {
			c.Security.EnableRateLimit = true
			c.Security.RateLimit.RequestsPerMinute = 0
		}, expectError: "requests_per_minute"},
		{name: "bad webhook", mutate: func(c *Config) { c.Webhooks.Endpoints = []string{"not a url"} }, expectError: "webhooks"},
		{name: "analytics interval too short", mutate: func(c *Config) { c.Analytics.Interval = time.Second }, expectError: "analytics config"},
		{name: "analytics bad endpoint", mutate: func(c *Config) { c.Analytics.ExportEndpoint = "::nope" }, expectError: "export endpoint"},
		{name: "analytics disabled skips checks", mutate: func(c *Config) {
			c.Analytics.Enabled = false
			c.Analytics.Interval = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SQL.DSN = "postgres://user:pw@db/grades"
	cfg.Security.APIKeys = []string{"topsecret"}
	cfg.Admins = map[string]string{"root": "$2a$10$abc"}
	cfg.Analytics.ExportAPIKey = "exportkey"

	out := cfg.String()
	for _, secret := range []string{"user:pw", "topsecret", "$2a$10$abc", "exportkey"} {
		assert.False(t, strings.Contains(out, secret), secret)
	}
	assert.Contains(t, out, `"root"`)
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))
		return p
	}

	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{"valid json file", write("a.json"), false},
		{"valid yaml file", write("a.yml"), false},
		{"empty path", "", true},
		{"path traversal", "../../../etc/passwd", true},
		{"non-config file", write("a.txt"), true},
		{"nonexistent file", filepath.Join(dir, "missing.json"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
