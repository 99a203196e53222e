package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/calder-io/flume/internal/api"
	"github.com/calder-io/flume/internal/config"
	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/connector/builtin"
	"github.com/calder-io/flume/internal/db"
	"github.com/calder-io/flume/internal/engine"
	"github.com/calder-io/flume/internal/repository"
	"github.com/calder-io/flume/internal/scheduler"
	"github.com/calder-io/flume/internal/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("flume v0.1.0")
	fmt.Println("Usage: flume serve")
}

func serve() {
	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log.Level)

	ctx := context.Background()

	store, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		slog.Error("storage error", "err", err)
		os.Exit(1)
	}

	registry := connector.NewRegistry()
	builtin.RegisterAll(registry, store)

	workflows, executions, closeDB, err := buildRepositories(ctx, cfg)
	if err != nil {
		slog.Error("database error", "err", err)
		os.Exit(1)
	}
	defer closeDB()

	eng := engine.New(workflows, executions, registry, engine.Options{
		MaxParallel: cfg.Engine.MaxParallel,
		Limits: engine.ConcurrencyLimits{
			GlobalMax:   cfg.Engine.GlobalMax,
			PerWorkflow: cfg.Engine.PerWorkflow,
		},
	})

	sched := scheduler.New(workflows, eng)
	if err := sched.Start(ctx); err != nil {
		slog.Error("scheduler error", "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := api.NewServer(eng, workflows)
	srv.SetScheduler(sched)
	srv.SetStorage(store)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	go func() {
		slog.Info("starting flume server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// buildRepositories selects PostgreSQL when a database URL is configured,
// in-memory stores otherwise.
func buildRepositories(ctx context.Context, cfg *config.Config) (repository.WorkflowRepository, repository.ExecutionRepository, func(), error) {
	if cfg.Database.URL == "" {
		slog.Info("no database configured, using in-memory repositories")
		return repository.NewMemoryWorkflowRepository(), repository.NewMemoryExecutionRepository(), func() {}, nil
	}

	pool, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	slog.Info("connected to PostgreSQL")
	return db.NewWorkflowRepository(pool), db.NewExecutionRepository(pool), func() { pool.Close() }, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})
	slog.SetDefault(slog.New(handler))
}
