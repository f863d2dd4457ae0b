package main

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

// TestLoadConfig_Defaults verifies the values used with no environment or flags.
func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := Config{
		Driver:     "sqlite",
		DSN:        "roster.db",
		Workers:    4,
		QueueSize:  64,
		JobTimeout: 10 * time.Second,
		LogLevel:   slog.LevelInfo,
		Seed:       true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

// TestLoadConfig_EnvAndFlags verifies flags override environment variables.
func TestLoadConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("ROSTER_DB_DRIVER", "mysql")
	t.Setenv("ROSTER_WORKERS", "8")
	t.Setenv("ROSTER_QUEUE_SIZE", "5")
	t.Setenv("ROSTER_JOB_TIMEOUT", "2s")
	t.Setenv("ROSTER_LOG_LEVEL", "debug")
	t.Setenv("ROSTER_SEED", "false")
	t.Setenv("ROSTER_METRICS_ADDR", ":9100")

	cfg, err := loadConfig([]string{"--workers=2", "--driver", "bolt"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := Config{
		Driver:      "bolt",
		DSN:         "roster.bolt",
		Workers:     2,
		QueueSize:   5,
		JobTimeout:  2 * time.Second,
		MetricsAddr: ":9100",
		LogLevel:    slog.LevelDebug,
		Seed:        false,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

// TestLoadConfig_MySQLDefaultDSN points at the local Alumnos MariaDB database.
func TestLoadConfig_MySQLDefaultDSN(t *testing.T) {
	cfg, err := loadConfig([]string{"--driver=mysql"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !strings.Contains(cfg.DSN, "localhost:3307") || !strings.HasSuffix(cfg.DSN, "/Alumnos") {
		t.Errorf("DSN = %q", cfg.DSN)
	}
}

// TestLoadConfig_Errors covers malformed input.
func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantSub string
	}{
		{"bad workers env", map[string]string{"ROSTER_WORKERS": "many"}, nil, "ROSTER_WORKERS"},
		{"bad timeout env", map[string]string{"ROSTER_JOB_TIMEOUT": "soon"}, nil, "ROSTER_JOB_TIMEOUT"},
		{"bad seed env", map[string]string{"ROSTER_SEED": "perhaps"}, nil, "ROSTER_SEED"},
		{"bad log level", nil, []string{"--log-level=loud"}, "log level"},
		{"unknown driver", nil, []string{"--driver=postgres"}, "driver"},
		{"zero workers", nil, []string{"--workers=0"}, "workers"},
		{"negative timeout", nil, []string{"--job-timeout=-1s"}, "job timeout"},
		{"unknown flag", nil, []string{"--verbose"}, "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantSub)
			}
		})
	}
}

// TestLoadConfig_Help surfaces pflag's help sentinel.
func TestLoadConfig_Help(t *testing.T) {
	if _, err := loadConfig([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("error = %v, want pflag.ErrHelp", err)
	}
}

// TestConfig_Validate reports every problem at once.
func TestConfig_Validate(t *testing.T) {
	err := Config{Driver: "oracle"}.Validate()
	if err == nil {
		t.Fatal("Validate accepted an empty config")
	}
	for _, want := range []string{"driver", "dsn", "workers", "queue size", "job timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
