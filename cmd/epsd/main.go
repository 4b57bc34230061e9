// Command epsd runs the events-per-second admission control daemon: it
// loads the configured limit, serves its HTTP control surface and
// Prometheus metrics, and hot-reloads on configuration file changes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wazuh-go/epsd/internal/config"
	"github.com/wazuh-go/epsd/internal/epslimiter"
	"github.com/wazuh-go/epsd/internal/httpapi"
	"github.com/wazuh-go/epsd/internal/metrics"
)

func main() {
	appCfg := config.Get()

	daemonName := flag.String("daemon", appCfg.Limits.DaemonName, "name this limiter reports to the configuration source")
	configPath := flag.String("config", appCfg.Limits.Path, "path to the eps_limits YAML file")
	addr := flag.String("addr", appCfg.Server.Addr, "HTTP listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configPath)
	reg := prometheus.NewRegistry()
	promMetrics := metrics.New(reg)
	recorder := metrics.NewRecorder(promMetrics, *daemonName)

	limiter := epslimiter.New(*daemonName, logger, recorder)
	if err := limiter.Load(loader); err != nil {
		logger.Error("initial load failed", "error", err)
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(*configPath, logger)
	if err != nil {
		logger.Warn("config watcher unavailable, hot-reload disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watcher != nil {
		if err := watcher.Start(ctx, func() {
			if err := limiter.Load(loader); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}); err != nil {
			logger.Warn("config watcher failed to start", "error", err)
		}
		defer watcher.Stop()
	}

	apiServer := httpapi.NewServer(limiter, reloaderFunc(func() error {
		return limiter.Load(loader)
	}), logger)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info("epsd listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownTimeout := time.Duration(appCfg.Server.ShutdownSec) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	cancel()
	limiter.Shutdown()
}

type reloaderFunc func() error

func (f reloaderFunc) Reload() error { return f() }
