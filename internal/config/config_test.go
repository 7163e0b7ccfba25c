package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty directory so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "https://www.apicountries.com/countries", cfg.Source.URL)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout())
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Equal(t, "0 0 * * * *", cfg.Schedule.Ingest)
	assert.False(t, cfg.Schedule.RunOnStart)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "country_events", cfg.Redis.Channel)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout())
	assert.Empty(t, cfg.Email.SMTPHost)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, []string{"admin@countrysync.example"}, cfg.Email.Recipients)
	assert.Equal(t, "UST", cfg.Email.Brand)
	assert.Equal(t, 15*time.Second, cfg.Email.Timeout())
	assert.Equal(t, 5*time.Second, cfg.Notify.ShutdownTimeout())
	assert.True(t, cfg.Notify.Embedded)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Empty(t, cfg.Monitor.WebhookURL)
	assert.Equal(t, 24, cfg.Monitor.LookbackWindowHours)
	assert.Equal(t, 3, cfg.Monitor.FailureThreshold)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
email:
  recipients:
    - ops@example.test
    - dev@example.test
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "countrysync.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"ops@example.test", "dev@example.test"}, cfg.Email.Recipients)
	// Defaults still apply for unset values
	assert.Equal(t, "UST", cfg.Email.Brand)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("COUNTRYSYNC_STORE_DRIVER", "postgres")
	t.Setenv("COUNTRYSYNC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvList(t *testing.T) {
	chdirTemp(t)
	t.Setenv("COUNTRYSYNC_EMAIL_RECIPIENTS", "a@example.test, b@example.test")
	t.Setenv("COUNTRYSYNC_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.test", "b@example.test"}, cfg.Email.Recipients)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadBadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Store.DatabaseURL = "postgres://localhost/countrysync"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidate_SQLiteNeedsNoURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url"},
		{"bad cron", func(c *Config) { c.Schedule.Ingest = "every hour" }, "schedule.ingest"},
		{"zero source timeout", func(c *Config) { c.Source.TimeoutSecs = 0 }, "source.timeout_secs"},
		{"negative email timeout", func(c *Config) { c.Email.TimeoutSecs = -1 }, "email.timeout_secs"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no source", func(c *Config) { c.Source.URL = "" }, "source.url"},
		{"negative retries", func(c *Config) { c.Source.MaxRetries = -1 }, "source.max_retries"},
		{"webhook without threshold", func(c *Config) {
			c.Monitor.WebhookURL = "http://hooks.example/x"
			c.Monitor.FailureThreshold = 0
		}, "monitor.failure_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
