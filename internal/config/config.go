// Package config loads service configuration from defaults, an optional
// config file, a .env file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	HTTP        HTTPConfig       `mapstructure:"http"`
	Database    DatabaseConfig   `mapstructure:"database"`
	StoreDriver string           `mapstructure:"store_driver"`
	Log         LogConfig        `mapstructure:"log"`
	Scheduler   SchedulerConfig  `mapstructure:"scheduler"`
	Escalation  EscalationConfig `mapstructure:"escalation"`
	Breaker     BreakerConfig    `mapstructure:"breaker"`
	CallTimeout time.Duration    `mapstructure:"call_timeout"`
	Allocation  AllocationConfig `mapstructure:"allocation"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// MigrationURL builds the URL golang-migrate's pgx/v5 driver expects.
func (c DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig holds the cron schedule of every escalation job.
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	Schedules  Schedules     `mapstructure:"schedules"`
}

// Schedules is one cron expression per job. An empty string disables the
// job's trigger.
type Schedules struct {
	ReminderPending   string `mapstructure:"reminder_pending"`
	LastNoticePending string `mapstructure:"last_notice_pending"`
	ExpirePending     string `mapstructure:"expire_pending"`
	ExpireWaitinglist string `mapstructure:"expire_waitinglist"`
}

// EscalationConfig tunes the escalation pipeline and approval processor.
type EscalationConfig struct {
	AdminEmails []string `mapstructure:"admin_emails"`
	// SeparateLastNoticeCounter makes an approved last notice increment
	// LastNoticesSent instead of RemindersSent.
	SeparateLastNoticeCounter bool `mapstructure:"separate_last_notice_counter"`
}

// BreakerConfig configures the circuit breaker around the notifier.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinRequests      uint32        `mapstructure:"min_requests"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// AllocationConfig bounds the allocate-and-create retry loop.
type AllocationConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "regflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("store_driver", DriverPostgres)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.job_timeout", 5*time.Minute)
	v.SetDefault("scheduler.schedules.reminder_pending", "0 6 * * *")
	v.SetDefault("scheduler.schedules.last_notice_pending", "10 6 * * *")
	v.SetDefault("scheduler.schedules.expire_pending", "20 6 * * *")
	v.SetDefault("scheduler.schedules.expire_waitinglist", "30 6 * * *")

	v.SetDefault("escalation.admin_emails", []string{})
	v.SetDefault("escalation.separate_last_notice_counter", false)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.min_requests", 5)
	v.SetDefault("breaker.failure_threshold", 5)

	v.SetDefault("call_timeout", 10*time.Second)
	v.SetDefault("allocation.max_attempts", 5)
	v.SetDefault("allocation.initial_interval", 100*time.Millisecond)
}

// legacyEnv maps keys onto the plain variable names used by earlier
// deployments, next to the REGFLOW_-prefixed ones.
var legacyEnv = map[string]string{
	"http.port":         "PORT",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",
	"database.sslmode":  "DB_SSLMODE",
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and environment variables are used.
func Load(path string) (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REGFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		envName := "REGFLOW_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store_driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call_timeout must be positive"))
	}
	if c.Allocation.MaxAttempts == 0 {
		errs = append(errs, errors.New("allocation.max_attempts must be at least 1"))
	}
	for _, email := range c.Escalation.AdminEmails {
		if !strings.Contains(email, "@") {
			errs = append(errs, fmt.Errorf("escalation.admin_emails: %q is not an email address", email))
		}
	}
	return errors.Join(errs...)
}
