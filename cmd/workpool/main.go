package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/workpool/pkg/config"
	"github.com/fluxorio/workpool/pkg/core"
	"github.com/fluxorio/workpool/pkg/observability/otel"
	promexport "github.com/fluxorio/workpool/pkg/observability/prometheus"
	"github.com/fluxorio/workpool/pkg/web"
	"github.com/fluxorio/workpool/pkg/web/health"
	"github.com/fluxorio/workpool/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	workers := flag.Int("workers", 0, "number of workers (overrides config)")
	writeConfig := flag.String("write-config", "", "write the effective config to this YAML or JSON file and exit")
	flag.Parse()

	// used until the configured logger exists
	bootstrap := core.NewLogger(core.LoggerConfig{Level: "INFO"})

	cfg, err := loadConfig(*configPath, *addr, *workers)
	if err != nil {
		bootstrap.Error(fmt.Sprintf("failed to load config: %v", err))
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := config.Save(*writeConfig, cfg); err != nil {
			bootstrap.Error(fmt.Sprintf("failed to write config: %v", err))
			os.Exit(1)
		}
		bootstrap.Info(fmt.Sprintf("wrote config to %s", *writeConfig))
		return
	}

	if err := run(cfg); err != nil {
		bootstrap.Error(fmt.Sprintf("workpool: %v", err))
		os.Exit(1)
	}
}

func loadConfig(path, addr string, workers int) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if workers != 0 {
		cfg.Pool.Size = workers
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config) error {
	logger := core.NewLogger(core.LoggerConfig{
		JSONOutput: cfg.Log.JSON,
		Level:      cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing := otel.DefaultConfig()
	tracing.ServiceName = cfg.Tracing.ServiceName
	tracing.Exporter = otel.Exporter(cfg.Tracing.Exporter)
	tracing.Endpoint = cfg.Tracing.Endpoint
	tracing.Environment = cfg.Tracing.Environment
	tracing.SampleRate = cfg.Tracing.SampleRate
	if err := otel.Initialize(ctx, tracing, os.Stdout); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("tracer shutdown: %v", err))
		}
	}()

	registry := promexport.DefaultRegistry
	pool, err := worker.NewPool(cfg.Pool.Size,
		worker.WithQueueCapacity(cfg.Pool.QueueCapacity),
		worker.WithLogger(logger),
		worker.WithObserver(promexport.NewPoolMetrics(registry)),
	)
	if err != nil {
		return err
	}
	promexport.RegisterPoolGauges(registry, pool)
	connMetrics := promexport.NewConnMetrics(registry)

	handler := web.NewConnHandler(web.HandlerConfig{
		DocRoot:      cfg.Server.DocRoot,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		SleepDelay:   cfg.Server.SleepDelay.Std(),
	}, logger, connMetrics)
	server := web.NewServer(cfg.Server.Addr, pool, handler, logger, connMetrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	if cfg.Admin.Enabled {
		checks := health.NewRegistry()
		checks.Register("worker_pool", health.PoolCheck(pool))
		logger.Info(fmt.Sprintf("health checks: %s", strings.Join(checks.Names(), ", ")))
		admin := web.NewAdminServer(registry, health.NewAggregator(checks), func() interface{} {
			return pool.Stats()
		}, logger)
		g.Go(func() error {
			return admin.ListenAndServe(gctx, cfg.Admin.Addr)
		})
	}

	serveErr := g.Wait()
	logger.Info("no longer accepting connections, draining worker pool")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pool.ShutdownTimeout.Std())
	defer cancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker pool did not drain: %w", err)
	}

	logger.Info(fmt.Sprintf("shut down cleanly: %+v", pool.Stats()))
	return serveErr
}
