package config

import (
	"errors"
	"fmt"
	"time"
)

// EnvPrefix prefixes every environment override of the application config,
// e.g. SYMPHONY_POOL_WORKERS or SYMPHONY_AUDIT_DSN.
const EnvPrefix = "SYMPHONY"

// Config is the configuration of the symphony binary.
// Durations are strings accepted by time.ParseDuration; empty means zero.
type Config struct {
	Pool     PoolConfig     `yaml:"pool" json:"pool"`
	Listener ListenerConfig `yaml:"listener" json:"listener"`
	Page     PageConfig     `yaml:"page" json:"page"`
	Admin    AdminConfig    `yaml:"admin" json:"admin"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Audit    AuditConfig    `yaml:"audit" json:"audit"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
}

// PoolConfig configures the thread pool.
type PoolConfig struct {
	Workers             int    `yaml:"workers" json:"workers"`
	QueueCapacity       int    `yaml:"queue_capacity" json:"queue_capacity"`
	ResultQueueCapacity int    `yaml:"result_queue_capacity" json:"result_queue_capacity"`
	QueuePolicy         string `yaml:"queue_policy" json:"queue_policy"`
	WatchDelay          string `yaml:"watch_delay" json:"watch_delay"`
	ShutdownTimeout     string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ListenerConfig configures the TCP listener that turns connections into jobs.
type ListenerConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	MaxConns     int    `yaml:"max_conns" json:"max_conns"`
	ServeLimit   int    `yaml:"serve_limit" json:"serve_limit"`
	ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
}

// PageConfig configures the demo page job.
type PageConfig struct {
	TemplateDir string `yaml:"template_dir" json:"template_dir"`
	SleepDelay  string `yaml:"sleep_delay" json:"sleep_delay"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Addr       string `yaml:"addr" json:"addr"`
	JWTSecret  string `yaml:"jwt_secret" json:"jwt_secret"`
	APIKeyHash string `yaml:"api_key_hash" json:"api_key_hash"`
}

// LogConfig configures logging. Results enables the log result sink.
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Results bool   `yaml:"results" json:"results"`
}

// AuditConfig selects the audit store. An empty driver disables auditing.
type AuditConfig struct {
	Driver       string `yaml:"driver" json:"driver"`
	DSN          string `yaml:"dsn" json:"dsn"`
	Table        string `yaml:"table" json:"table"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

// NATSConfig configures result publishing. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url" json:"url"`
	Subject string `yaml:"subject" json:"subject"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:         4,
			QueuePolicy:     "block",
			ShutdownTimeout: "30s",
		},
		Listener: ListenerConfig{
			Addr:         "127.0.0.1:1666",
			ReadTimeout:  "5s",
			WriteTimeout: "5s",
		},
		Page: PageConfig{
			SleepDelay: "8s",
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level:   "info",
			Results: true,
		},
		Audit: AuditConfig{
			Table:        "job_results",
			MaxOpenConns: 10,
		},
		NATS: NATSConfig{
			Subject: "symphony.results",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "symphony",
		},
	}
}

// LoadApp builds the application config: defaults, then the file at path if
// any, then SYMPHONY_* environment overrides. The result is validated.
func LoadApp(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := Load(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnvOverrides(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	validators := []Validator{
		RequiredFields("Listener.Addr"),
		RangeValidator("Pool.Workers", 0, 4096),
		RangeValidator("Pool.QueueCapacity", 0, 1<<24),
		RangeValidator("Pool.ResultQueueCapacity", 0, 1<<24),
		RangeValidator("Listener.MaxConns", 0, 1<<20),
		RangeValidator("Listener.ServeLimit", 0, 1<<31-1),
		RangeValidator("Tracing.SampleRatio", 0, 1),
		OneOfValidator("Pool.QueuePolicy", "", "block", "reject"),
		OneOfValidator("Log.Level", "", "debug", "info", "warn", "warning", "error"),
		OneOfValidator("Audit.Driver", "", "sqlite3", "postgres", "pgx"),
		OneOfValidator("Tracing.Exporter", "", "none", "stdout", "zipkin", "jaeger"),
		DurationValidator("Pool.WatchDelay"),
		DurationValidator("Pool.ShutdownTimeout"),
		DurationValidator("Listener.ReadTimeout"),
		DurationValidator("Listener.WriteTimeout"),
		DurationValidator("Page.SleepDelay"),
	}
	if c.Audit.Driver != "" {
		validators = append(validators, RequiredFields("Audit.DSN", "Audit.Table"))
	}
	if c.NATS.URL != "" {
		validators = append(validators, RequiredFields("NATS.Subject"))
	}
	if c.Admin.Enabled {
		validators = append(validators, RequiredFields("Admin.Addr"))
	}
	if c.Admin.JWTSecret != "" {
		validators = append(validators, StringLengthValidator("Admin.JWTSecret", 32, 512))
	}
	if c.Tracing.Exporter == "zipkin" || c.Tracing.Exporter == "jaeger" {
		validators = append(validators, RequiredFields("Tracing.Endpoint"))
	}

	var errs []error
	for _, v := range validators {
		if err := v.Validate(c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseDuration parses a config duration. Empty means zero; negative
// durations are rejected.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// mustDuration is used on validated configs only.
func mustDuration(s string) time.Duration {
	d, _ := ParseDuration(s)
	return d
}

// WatchDelayDuration returns the parsed watch delay.
func (p PoolConfig) WatchDelayDuration() time.Duration { return mustDuration(p.WatchDelay) }

// ShutdownTimeoutDuration returns the parsed shutdown timeout. Zero waits forever.
func (p PoolConfig) ShutdownTimeoutDuration() time.Duration { return mustDuration(p.ShutdownTimeout) }

// ReadTimeoutDuration returns the parsed per-connection read timeout.
func (l ListenerConfig) ReadTimeoutDuration() time.Duration { return mustDuration(l.ReadTimeout) }

// WriteTimeoutDuration returns the parsed per-connection write timeout.
func (l ListenerConfig) WriteTimeoutDuration() time.Duration { return mustDuration(l.WriteTimeout) }

// SleepDelayDuration returns the parsed /sleep delay.
func (p PageConfig) SleepDelayDuration() time.Duration { return mustDuration(p.SleepDelay) }
