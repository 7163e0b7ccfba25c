// Package config loads countrysync settings from config.yaml and
// COUNTRYSYNC_* environment variables.
package config

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/countrysync/internal/scheduler"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Email    EmailConfig    `yaml:"email" mapstructure:"email"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Monitor  MonitorConfig  `yaml:"monitor" mapstructure:"monitor"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures the external country dataset.
type SourceConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns TimeoutSecs as a duration.
func (s SourceConfig) Timeout() time.Duration { return secs(s.TimeoutSecs) }

// ScheduleConfig configures the reconciliation trigger.
type ScheduleConfig struct {
	Ingest     string `yaml:"ingest" mapstructure:"ingest"`
	RunOnStart bool   `yaml:"run_on_start" mapstructure:"run_on_start"`
}

// RedisConfig configures the event channel. An empty URL selects the
// in-process bus.
type RedisConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	Channel         string `yaml:"channel" mapstructure:"channel"`
	PoolSize        int    `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeoutSecs int    `yaml:"dial_timeout_secs" mapstructure:"dial_timeout_secs"`
}

// DialTimeout returns DialTimeoutSecs as a duration.
func (r RedisConfig) DialTimeout() time.Duration { return secs(r.DialTimeoutSecs) }

// EmailConfig configures outbound notifications. An empty SMTPHost makes
// sending a logged no-op.
type EmailConfig struct {
	SMTPHost    string   `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort    int      `yaml:"smtp_port" mapstructure:"smtp_port"`
	SMTPUser    string   `yaml:"smtp_user" mapstructure:"smtp_user"`
	SMTPPass    string   `yaml:"smtp_pass" mapstructure:"smtp_pass"`
	From        string   `yaml:"from" mapstructure:"from"`
	Recipients  []string `yaml:"recipients" mapstructure:"recipients"`
	Brand       string   `yaml:"brand" mapstructure:"brand"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns TimeoutSecs as a duration.
func (e EmailConfig) Timeout() time.Duration { return secs(e.TimeoutSecs) }

// NotifyConfig configures the notification consumer.
type NotifyConfig struct {
	ShutdownTimeoutSecs int  `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	Embedded            bool `yaml:"embedded" mapstructure:"embedded"`
}

// ShutdownTimeout returns ShutdownTimeoutSecs as a duration.
func (n NotifyConfig) ShutdownTimeout() time.Duration { return secs(n.ShutdownTimeoutSecs) }

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// ShutdownTimeout returns ShutdownTimeoutSecs as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration { return secs(s.ShutdownTimeoutSecs) }

// MonitorConfig configures the sync health checker. An empty WebhookURL
// disables it.
type MonitorConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureThreshold    int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	StaleAfterHours     int    `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// Load reads configuration from config.yaml (if present), environment
// variables (COUNTRYSYNC_ prefix), and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COUNTRYSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("source.url", "https://www.apicountries.com/countries")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.user_agent", "countrysync/1.0")
	v.SetDefault("source.rate_per_sec", 5)
	v.SetDefault("schedule.ingest", "0 0 * * * *")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "country_events")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout_secs", 5)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_user", "")
	v.SetDefault("email.smtp_pass", "")
	v.SetDefault("email.from", "admin@countrysync.example")
	v.SetDefault("email.recipients", []string{"admin@countrysync.example"})
	v.SetDefault("email.brand", "UST")
	v.SetDefault("email.timeout_secs", 15)
	v.SetDefault("notify.shutdown_timeout_secs", 5)
	v.SetDefault("notify.embedded", true)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("monitor.webhook_url", "")
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.failure_threshold", 3)
	v.SetDefault("monitor.stale_after_hours", 6)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Email.Recipients = splitList(cfg.Email.Recipients)
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	if cfg.Store.Driver == "sqlite" && cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = "countrysync.db"
	}

	return &cfg, nil
}

// splitList accepts both YAML lists and comma-separated environment values
// such as COUNTRYSYNC_EMAIL_RECIPIENTS="a@x,b@x".
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings every process role depends on.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	case "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite, got "+c.Store.Driver)
	}
	if c.Source.URL == "" {
		problems = append(problems, "source.url is required")
	}
	if err := scheduler.ValidateSpec(c.Schedule.Ingest); err != nil {
		problems = append(problems, "schedule.ingest: "+err.Error())
	}
	for key, v := range map[string]int{
		"source.timeout_secs":          c.Source.TimeoutSecs,
		"email.timeout_secs":           c.Email.TimeoutSecs,
		"notify.shutdown_timeout_secs": c.Notify.ShutdownTimeoutSecs,
		"server.shutdown_timeout_secs": c.Server.ShutdownTimeoutSecs,
		"redis.dial_timeout_secs":      c.Redis.DialTimeoutSecs,
	} {
		if v <= 0 {
			problems = append(problems, key+" must be positive")
		}
	}
	if c.Monitor.WebhookURL != "" && c.Monitor.FailureThreshold <= 0 {
		problems = append(problems, "monitor.failure_threshold must be positive")
	}
	if c.Source.MaxRetries < 1 {
		problems = append(problems, "source.max_retries must be at least 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return eris.Errorf("config: invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
