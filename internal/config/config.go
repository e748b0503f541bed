package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fxwatcher/internal/logging"
	"fxwatcher/internal/pair"
)

// ErrInvalidConfig is matched by every ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError reports a missing or out-of-range setting.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidConfig) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Config materialises application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Logging   logging.Config   `mapstructure:"logging"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Monitor   MonitoringConfig `mapstructure:"monitor"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	Alerting  AlertingConfig   `mapstructure:"alerting"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the notification audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MonitoringConfig governs what is polled and how often.
type MonitoringConfig struct {
	Pair            string  `mapstructure:"pair"`
	APIURL          string  `mapstructure:"api_url"`
	APIKey          string  `mapstructure:"api_key"`
	IntervalMinutes int     `mapstructure:"interval_minutes"`
	Threshold       float64 `mapstructure:"threshold"`
	MaxAttempts     int     `mapstructure:"max_attempts"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	UserAgent       string  `mapstructure:"user_agent"`
}

// Interval is the pause between poll cycles.
func (m MonitoringConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMinutes) * time.Minute
}

// Timeout is the per-request HTTP timeout.
func (m MonitoringConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// SchedulerConfig tunes the poll loop.
type SchedulerConfig struct {
	ErrorCooldown   time.Duration `mapstructure:"error_cooldown"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Timezone string      `mapstructure:"timezone"`
	Email    EmailConfig `mapstructure:"email"`
}

// Location resolves Timezone; empty or "Local" means the host zone.
func (a AlertingConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// EmailConfig describes the outbound mail transport.
type EmailConfig struct {
	Provider       string   `mapstructure:"provider"`
	Sender         string   `mapstructure:"sender"`
	SenderName     string   `mapstructure:"sender_name"`
	AppPassword    string   `mapstructure:"app_password"`
	Recipients     []string `mapstructure:"recipients"`
	SMTPHost       string   `mapstructure:"smtp_host"`
	SMTPPort       int      `mapstructure:"smtp_port"`
	SendgridAPIKey string   `mapstructure:"sendgrid_api_key"`
}

// RecipientList returns trimmed, non-empty recipients, falling back to the sender.
func (e EmailConfig) RecipientList() []string {
	out := make([]string, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 && e.Sender != "" {
		out = append(out, e.Sender)
	}
	return out
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load builds configuration from .env, environment, file, and defaults,
// then validates it. Invalid configuration is never returned.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation.
func Read(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("FXWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Monitor.APIURL == "" {
		if p, err := pair.Lookup(cfg.Monitor.Pair); err == nil {
			cfg.Monitor.APIURL = p.DefaultURL()
		}
	}

	return &cfg, nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fxwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file", "")

	v.SetDefault("monitor.pair", pair.CADRMB.Code())
	v.SetDefault("monitor.api_url", "")
	v.SetDefault("monitor.api_key", "")
	v.SetDefault("monitor.interval_minutes", 60)
	v.SetDefault("monitor.threshold", 5.05)
	v.SetDefault("monitor.max_attempts", 3)
	v.SetDefault("monitor.timeout_seconds", 30)
	v.SetDefault("monitor.user_agent", "fxwatcher/1.0")

	v.SetDefault("scheduler.error_cooldown", "5m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0))

	v.SetDefault("alerting.timezone", "Local")
	v.SetDefault("alerting.email.provider", "smtp")
	v.SetDefault("alerting.email.sender", "")
	v.SetDefault("alerting.email.sender_name", "fxwatcher")
	v.SetDefault("alerting.email.app_password", "")
	v.SetDefault("alerting.email.recipients", []string{})
	v.SetDefault("alerting.email.sendgrid_api_key", "")
	v.SetDefault("alerting.email.smtp_host", "smtp.gmail.com")
	v.SetDefault("alerting.email.smtp_port", 587)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("metrics.listen_addr", "")
}

// bindLegacyEnv keeps the environment names of earlier deployments working.
// The FXWATCHER_* name always wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	prefix := pair.EnvPrefix(v.GetString("monitor.pair"))
	bindings := map[string][]string{
		"monitor.interval_minutes":        {prefix + "_MONITORING_INTERVAL"},
		"monitor.threshold":               {prefix + "_THRESHOLD"},
		"monitor.max_attempts":            {prefix + "_MAX_ATTEMPTS"},
		"monitor.timeout_seconds":         {prefix + "_TIMEOUT"},
		"monitor.api_key":                 {"EXCHANGE_API_KEY"},
		"logging.file":                    {prefix + "_LOG_FILE"},
		"logging.level":                   {prefix + "_LOG_LEVEL"},
		"alerting.email.sender":           {"CURRENCY_NOTIFICATION_EMAIL"},
		"alerting.email.app_password":     {"CURRENCY_GMAIL_APP_PASSWORD"},
		"alerting.email.recipients":       {"CURRENCY_RECIPIENT_EMAILS"},
		"alerting.email.sendgrid_api_key": {"SENDGRID_API_KEY"},
	}
	for key, legacy := range bindings {
		primary := "FXWATCHER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, primary}, legacy...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks and fails closed on anything required
// for the monitor to run.
func (c *Config) Validate() error {
	m := c.Monitor
	if _, err := pair.Lookup(m.Pair); err != nil {
		return &ValidationError{Key: "monitor.pair", Reason: err.Error()}
	}
	if m.APIURL == "" {
		return &ValidationError{Key: "monitor.api_url", Reason: "must be configured"}
	}
	if m.IntervalMinutes < 1 {
		return &ValidationError{Key: "monitor.interval_minutes", Reason: "must be at least 1"}
	}
	if m.Threshold <= 0 {
		return &ValidationError{Key: "monitor.threshold", Reason: "must be greater than zero"}
	}
	if m.MaxAttempts < 1 {
		return &ValidationError{Key: "monitor.max_attempts", Reason: "must be at least 1"}
	}
	if m.TimeoutSeconds < 1 {
		return &ValidationError{Key: "monitor.timeout_seconds", Reason: "must be at least 1"}
	}
	if c.Scheduler.ErrorCooldown <= 0 {
		return &ValidationError{Key: "scheduler.error_cooldown", Reason: "must be greater than zero"}
	}
	if _, err := c.Alerting.Location(); err != nil {
		return &ValidationError{Key: "alerting.timezone", Reason: err.Error()}
	}
	return c.validateEmail()
}

func (c *Config) validateEmail() error {
	e := c.Alerting.Email
	if e.Sender == "" {
		return &ValidationError{Key: "alerting.email.sender", Reason: "must be configured"}
	}
	switch strings.ToLower(e.Provider) {
	case "smtp", "gmail":
		if e.AppPassword == "" {
			return &ValidationError{Key: "alerting.email.app_password", Reason: "required when email.sender is set"}
		}
		if e.SMTPHost == "" || e.SMTPPort <= 0 {
			return &ValidationError{Key: "alerting.email.smtp_host", Reason: "smtp host and port must be configured"}
		}
	case "sendgrid":
		if e.SendgridAPIKey == "" {
			return &ValidationError{Key: "alerting.email.sendgrid_api_key", Reason: "required for the sendgrid provider"}
		}
	default:
		return &ValidationError{Key: "alerting.email.provider", Reason: fmt.Sprintf("unknown provider %q", e.Provider)}
	}
	return nil
}
