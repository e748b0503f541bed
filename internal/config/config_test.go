package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefaults(t *testing.T) {
	cfg, err := Read("")
	require.NoError(t, err)

	assert.Equal(t, "CAD-RMB", cfg.Monitor.Pair)
	assert.Equal(t, "https://api.exchangerate-api.com/v4/latest/CAD", cfg.Monitor.APIURL)
	assert.Equal(t, 60, cfg.Monitor.IntervalMinutes)
	assert.Equal(t, 5.05, cfg.Monitor.Threshold)
	assert.Equal(t, 3, cfg.Monitor.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Timeout())
	assert.Equal(t, time.Hour, cfg.Monitor.Interval())
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ErrorCooldown)
	assert.Equal(t, "smtp.gmail.com", cfg.Alerting.Email.SMTPHost)
	assert.Equal(t, 587, cfg.Alerting.Email.SMTPPort)
}

func TestLegacyEnvironment(t *testing.T) {
	t.Setenv("CAD_RMB_THRESHOLD", "5.10")
	t.Setenv("CAD_RMB_MONITORING_INTERVAL", "15")
	t.Setenv("CAD_RMB_MAX_ATTEMPTS", "5")
	t.Setenv("CAD_RMB_TIMEOUT", "12")
	t.Setenv("EXCHANGE_API_KEY", "secret")
	t.Setenv("CURRENCY_NOTIFICATION_EMAIL", "bot@example.com")
	t.Setenv("CURRENCY_GMAIL_APP_PASSWORD", "app-pass")
	t.Setenv("CURRENCY_RECIPIENT_EMAILS", "a@example.com, b@example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5.10, cfg.Monitor.Threshold)
	assert.Equal(t, 15, cfg.Monitor.IntervalMinutes)
	assert.Equal(t, 5, cfg.Monitor.MaxAttempts)
	assert.Equal(t, 12, cfg.Monitor.TimeoutSeconds)
	assert.Equal(t, "secret", cfg.Monitor.APIKey)
	assert.Equal(t, "bot@example.com", cfg.Alerting.Email.Sender)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Alerting.Email.RecipientList())
}

func TestPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("CAD_RMB_THRESHOLD", "5.10")
	t.Setenv("FXWATCHER_MONITOR_THRESHOLD", "5.20")

	cfg, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, 5.20, cfg.Monitor.Threshold)
}

func TestPrefixedEnvironmentWithoutConfigFile(t *testing.T) {
	t.Setenv("FXWATCHER_MONITOR_API_URL", "https://rates.example.test/latest/CAD")
	t.Setenv("FXWATCHER_DATABASE_DSN", "postgres://fx:fx@localhost:5432/fxwatcher")
	t.Setenv("FXWATCHER_METRICS_LISTEN_ADDR", ":9102")
	t.Setenv("FXWATCHER_LOGGING_PRETTY", "true")
	t.Setenv("FXWATCHER_LOGGING_TIME_FORMAT", time.RFC3339Nano)

	cfg, err := Read("")
	require.NoError(t, err)

	assert.Equal(t, "https://rates.example.test/latest/CAD", cfg.Monitor.APIURL)
	assert.Equal(t, "postgres://fx:fx@localhost:5432/fxwatcher", cfg.Database.DSN)
	assert.Equal(t, ":9102", cfg.Metrics.ListenAddr)
	assert.True(t, cfg.Logging.PrettyPrint)
	assert.Equal(t, time.RFC3339Nano, cfg.Logging.TimeFormat)
}

func TestReadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fxwatcher.yaml")
	body := []byte(`
monitor:
  threshold: 4.9
  interval_minutes: 10
alerting:
  timezone: UTC
  email:
    provider: sendgrid
    sender: bot@example.com
    sendgrid_api_key: SG.key
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4.9, cfg.Monitor.Threshold)
	assert.Equal(t, 10, cfg.Monitor.IntervalMinutes)
	assert.Equal(t, "sendgrid", cfg.Alerting.Email.Provider)

	loc, err := cfg.Alerting.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidateFailsClosed(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Monitor: MonitoringConfig{
				Pair:            "CAD-RMB",
				APIURL:          "https://example.test/latest/CAD",
				IntervalMinutes: 60,
				Threshold:       5.05,
				MaxAttempts:     3,
				TimeoutSeconds:  30,
			},
			Scheduler: SchedulerConfig{ErrorCooldown: 5 * time.Minute},
			Alerting: AlertingConfig{Email: EmailConfig{
				Provider:    "smtp",
				Sender:      "bot@example.com",
				AppPassword: "pw",
				SMTPHost:    "smtp.gmail.com",
				SMTPPort:    587,
			}},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"monitor.pair":                    func(c *Config) { c.Monitor.Pair = "EUR-USD" },
		"monitor.api_url":                 func(c *Config) { c.Monitor.APIURL = "" },
		"monitor.interval_minutes":        func(c *Config) { c.Monitor.IntervalMinutes = 0 },
		"monitor.threshold":               func(c *Config) { c.Monitor.Threshold = 0 },
		"monitor.max_attempts":            func(c *Config) { c.Monitor.MaxAttempts = 0 },
		"monitor.timeout_seconds":         func(c *Config) { c.Monitor.TimeoutSeconds = 0 },
		"scheduler.error_cooldown":        func(c *Config) { c.Scheduler.ErrorCooldown = 0 },
		"alerting.timezone":               func(c *Config) { c.Alerting.Timezone = "Mars/Olympus" },
		"alerting.email.sender":           func(c *Config) { c.Alerting.Email.Sender = "" },
		"alerting.email.app_password":     func(c *Config) { c.Alerting.Email.AppPassword = "" },
		"alerting.email.provider":         func(c *Config) { c.Alerting.Email.Provider = "pigeon" },
		"alerting.email.sendgrid_api_key": func(c *Config) { c.Alerting.Email.Provider = "sendgrid" },
	}
	for key, mutate := range cases {
		t.Run(key, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, key, vErr.Key)
		})
	}
}

func TestRecipientListFallsBackToSender(t *testing.T) {
	e := EmailConfig{Sender: "bot@example.com", Recipients: []string{" ", ""}}
	assert.Equal(t, []string{"bot@example.com"}, e.RecipientList())
}
