package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"roster/internal/application/scheduler"
)

// Store drivers
const (
	driverSQLite = "sqlite"
	driverMySQL  = "mysql"
	driverBolt   = "bolt"
)

// defaultDSNs are used when no DSN is configured.
var defaultDSNs = map[string]string{
	driverSQLite: "roster.db",
	driverMySQL:  "roster:roster@tcp(localhost:3307)/Alumnos",
	driverBolt:   "roster.bolt",
}

// Config is the process configuration. Environment variables provide the
// defaults and command-line flags override them.
type Config struct {
	Driver      string
	DSN         string
	Workers     int
	QueueSize   int
	JobTimeout  time.Duration
	MetricsAddr string
	LogLevel    slog.Level
	Seed        bool
	HistoryFile string
}

// loadConfig reads ROSTER_* variables, then applies args.
// POST: returns a validated Config, pflag.ErrHelp for --help, or the joined parse errors
func loadConfig(args []string) (Config, error) {
	var (
		cfg      Config
		errs     []error
		logLevel string
	)
	workers, err := envInt("ROSTER_WORKERS", scheduler.DefaultWorkers)
	errs = append(errs, err)
	queueSize, err := envInt("ROSTER_QUEUE_SIZE", scheduler.DefaultQueueSize)
	errs = append(errs, err)
	timeout, err := envDuration("ROSTER_JOB_TIMEOUT", scheduler.DefaultJobTimeout)
	errs = append(errs, err)
	seed, err := envBool("ROSTER_SEED", true)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	fs := pflag.NewFlagSet("roster", pflag.ContinueOnError)
	fs.StringVar(&cfg.Driver, "driver", envOrDefault("ROSTER_DB_DRIVER", driverSQLite), "store driver: sqlite, mysql or bolt")
	fs.StringVar(&cfg.DSN, "dsn", envOrDefault("ROSTER_DB_DSN", ""), "data source name or file path (driver default when empty)")
	fs.IntVar(&cfg.Workers, "workers", workers, "storage worker goroutines")
	fs.IntVar(&cfg.QueueSize, "queue-size", queueSize, "pending job capacity before requests are rejected")
	fs.DurationVar(&cfg.JobTimeout, "job-timeout", timeout, "deadline for a single storage call")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", envOrDefault("ROSTER_METRICS_ADDR", ""), "serve Prometheus /metrics on this address (disabled when empty)")
	fs.StringVar(&logLevel, "log-level", envOrDefault("ROSTER_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.BoolVar(&cfg.Seed, "seed", seed, "insert the initial people into an empty store")
	fs.StringVar(&cfg.HistoryFile, "history", envOrDefault("ROSTER_HISTORY", ""), "command history file (disabled when empty)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return Config{}, fmt.Errorf("log level: %w", err)
	}
	if cfg.DSN == "" {
		cfg.DSN = defaultDSNs[cfg.Driver]
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, ok := defaultDSNs[c.Driver]; !ok {
		errs = append(errs, fmt.Errorf("driver %q must be sqlite, mysql or bolt", c.Driver))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", c.QueueSize))
	}
	if c.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("job timeout must be positive, got %s", c.JobTimeout))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
