// File: cmd/framebench/main.go
// Package main
// Frame pipeline benchmark: producers lease shm frames from a fixed pool and
// hand them to consumers through a blocking queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/shmstack/control"
	"github.com/momentics/shmstack/internal/bench"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "", "Path to a TOML/YAML/JSON configuration file")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	metricsAddr = flag.String("metrics-addr", "", "Prometheus listen address override, e.g. :9464")
	printConfig = flag.Bool("print-config", false, "Print the default configuration as TOML and exit")
)

func main() {
	flag.Parse()

	if *printConfig {
		if err := control.WriteDefaultConfig(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	loader, err := control.NewLoader(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loader.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, err := control.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting framebench",
		zap.String("configFile", *configFile),
		zap.Int("frames", cfg.Pool.Count),
		zap.Int("frameSize", cfg.Pool.FrameSize),
		zap.Bool("heapOnly", cfg.Pool.HeapOnly),
		zap.Duration("duration", cfg.Bench.Duration),
	)

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	runner := bench.NewRunner(cfg, logger, metrics)
	control.RegisterPlatformProbes(probes)
	control.RegisterPoolProbes(probes, "frames", runner)

	store := control.NewConfigStore(cfg)
	store.OnReload(func(next control.Config) {
		runner.Retune(next.Bench.ProduceInterval, next.Bench.ConsumeInterval)
	})
	loader.Watch(store, logger)

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, runner, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports, err := runner.RunAll(ctx, bench.ScenariosFor(cfg.Bench))
	for _, rep := range reports {
		fmt.Printf("%-26s produced=%-6d consumed=%-6d dropped=%-6d leftover=%d\n",
			rep.Scenario, rep.Produced, rep.Consumed, rep.Dropped, rep.Leftover)
	}
	logger.Debug("final state", zap.Any("probes", probes.DumpState()))
	if err != nil {
		logger.Error("Benchmark failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("framebench finished", zap.Int("scenarios", len(reports)))
}

func startMetricsServer(addr string, runner *bench.Runner, logger *zap.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		control.NewPoolCollector("frames", runner),
		control.NewFrameCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("Starting metrics server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
