package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/config"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/handler"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/repository"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/telemetry"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

func main() {
	// Create a basic logger for startup (before OTel is initialized)
	startupLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		startupLogger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	startupLogger.Info("starting application",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("remote", cfg.Remote),
	)

	ctx := context.Background()

	tp, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		startupLogger.Error("failed to initialize tracer provider", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			startupLogger.Error("failed to shutdown tracer provider", slog.Any("error", err))
		}
	}()

	mp, err := telemetry.InitMeterProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		startupLogger.Error("failed to initialize meter provider", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mp.Shutdown(ctx); err != nil {
			startupLogger.Error("failed to shutdown meter provider", slog.Any("error", err))
		}
	}()

	// Initialize logger provider after the others for log-trace correlation
	lp, logger, err := telemetry.InitLoggerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		startupLogger.Error("failed to initialize logger provider", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := lp.Shutdown(ctx); err != nil {
			startupLogger.Error("failed to shutdown logger provider", slog.Any("error", err))
		}
	}()

	local, err := repository.OpenBoltDataSource(cfg.LocalDBPath)
	if err != nil {
		logger.Error("failed to open local store", slog.Any("error", err))
		os.Exit(1)
	}
	defer local.Close()

	remote, closeRemote, err := openRemote(ctx, cfg)
	if err != nil {
		logger.Error("failed to open remote store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeRemote.Close()

	logStoreSize(ctx, logger, "local", local)
	logStoreSize(ctx, logger, cfg.Remote, remote)

	taskRepo := repository.NewTasksRepository(local, remote, logger)

	meter := otel.Meter(cfg.ServiceName)
	metrics, err := telemetry.NewMetrics(meter, taskRepo.Count)
	if err != nil {
		logger.Error("failed to create metrics", slog.Any("error", err))
		os.Exit(1)
	}

	// Periodically force the next list to reload from the remote store
	scheduler := cron.New()
	if cfg.RefreshSchedule != "" && remote != nil {
		if _, err := scheduler.AddFunc(cfg.RefreshSchedule, func() {
			taskRepo.RefreshTasks()
			logger.Debug("task cache marked dirty")
		}); err != nil {
			logger.Error("invalid refresh schedule", slog.String("schedule", cfg.RefreshSchedule), slog.Any("error", err))
			os.Exit(1)
		}
	}
	scheduler.Start()

	taskHandler := handler.NewTaskHandler(taskRepo, logger, metrics, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint (excluded from tracing)
	r.Get("/health", taskHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/tasks", taskHandler.Routes())
	})

	otelHandler := otelhttp.NewHandler(r, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	// Let loads started by finished requests deliver before the stores close
	taskRepo.Wait()

	logger.Info("server stopped")
}

// openRemote connects the remote data source selected by cfg.Remote. It
// returns a nil source for config.RemoteNone.
func openRemote(ctx context.Context, cfg *config.Config) (repository.TasksDataSource, io.Closer, error) {
	switch cfg.Remote {
	case config.RemoteNone:
		return nil, io.NopCloser(nil), nil
	case config.RemoteMemory:
		return repository.NewMemoryDataSource(), io.NopCloser(nil), nil
	case config.RemotePostgres:
		pg, err := repository.NewPostgresDataSource(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, closerFunc(pg.Close), nil
	case config.RemoteRedis:
		rd, err := repository.NewRedisDataSource(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rd, rd, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote %q", cfg.Remote)
	}
}

// logStoreSize logs how many tasks a store holds, for stores that can tell.
func logStoreSize(ctx context.Context, logger *slog.Logger, name string, store repository.TasksDataSource) {
	if c, ok := store.(interface{ Count() int64 }); ok {
		logger.InfoContext(ctx, "task store opened", slog.String("store", name), slog.Int64("tasks", c.Count()))
	}
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
