package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"roster/internal/adapters/console"
	"roster/internal/adapters/perf"
	"roster/internal/adapters/storage"
	personStore "roster/internal/adapters/storage/person"
	"roster/internal/application/roster"
	"roster/internal/application/scheduler"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// drainTimeout bounds how long shutdown waits for accepted jobs.
const drainTimeout = 15 * time.Second

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "roster: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := run(cfg); err != nil {
		slog.Error("roster_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("roster_starting", "version", version, "driver", cfg.Driver, "workers", cfg.Workers, "queue_size", cfg.QueueSize, "job_timeout", cfg.JobTimeout)

	// Performance instrumentation shared by the SQL wrapper and the scheduler
	collector := perf.NewCollector(perf.DefaultRingSize)

	gateway, closeStore, err := openStore(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sched := scheduler.New(scheduler.Config{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout,
		Metrics:    scheduler.NewMetrics(reg),
		Collector:  collector,
		Logger:     slog.Default(),
	})
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := sched.Shutdown(dctx); err != nil {
			slog.Warn("scheduler_drain_incomplete", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer srv.Close()
	}

	if cfg.Seed {
		if _, err := roster.ExecuteSeed(ctx, roster.SeedDeps{Gateway: gateway, Scheduler: sched, Logger: slog.Default()}); err != nil {
			return err
		}
	}

	rl, err := console.NewReadline(cfg.HistoryFile, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		return fmt.Errorf("opening console: %w", err)
	}
	defer rl.Close()

	cons := console.New(console.Deps{Out: rl.Stdout(), Collector: collector, Pool: sched})
	coord := roster.NewCoordinator(roster.CoordinatorDeps{
		Gateway:   gateway,
		Scheduler: sched,
		Listener:  cons,
		Logger:    slog.Default(),
	})
	cons.Attach(coord)

	loopDone := make(chan error, 1)
	go func() { loopDone <- coord.Run(context.Background()) }()
	coord.RequestList()

	replErr := cons.Run(ctx, rl)

	// Drain accepted jobs, apply their completions, then stop the loop.
	dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := sched.Shutdown(dctx); err != nil {
		slog.Warn("scheduler_drain_incomplete", "error", err)
	}
	if err := coord.Sync(dctx); err != nil {
		slog.Warn("coordinator_sync_failed", "error", err)
	}
	coord.Close()
	<-loopDone

	if replErr != nil && !errors.Is(replErr, context.Canceled) {
		return replErr
	}
	slog.Info("roster_stopped")
	return nil
}

// openStore builds the gateway for cfg.Driver and returns its close func.
func openStore(ctx context.Context, cfg Config, collector *perf.Collector) (roster.Gateway, func() error, error) {
	if cfg.Driver == driverBolt {
		s, err := personStore.OpenBolt(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}

	dialect, err := storage.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(ctx, dialect, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	timed := storage.NewTimedDB(db, collector)
	// One connection per worker plus one for startup work
	timed.SetMaxOpenConns(cfg.Workers + 1)
	timed.SetMaxIdleConns(cfg.Workers + 1)

	if err := storage.InitDB(ctx, timed, dialect); err != nil {
		timed.Close()
		return nil, nil, err
	}
	slog.Info("store_ready", "driver", cfg.Driver)
	return personStore.NewSQLStore(timed), timed.Close, nil
}

// serveMetrics exposes reg on /metrics in the background.
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("metrics_serving", "addr", addr)
	return srv
}
