package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cafesys/internal/audit"
	"cafesys/internal/auth"
	"cafesys/internal/config"
	"cafesys/internal/credits"
	"cafesys/internal/directory"
	"cafesys/internal/notify"
	"cafesys/internal/routing"
	"cafesys/internal/scheduling"
	"cafesys/internal/tasks"
	"cafesys/internal/telephony"
	"cafesys/pkg/logger"
	"cafesys/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	mux := tasks.NewMux()
	scheduler, cleanup, err := openScheduler(rootCtx, cfg, mux, log)
	if err != nil {
		log.Error("task scheduler init failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	var sink notify.Sink = notify.LogSink{Log: log}
	if cfg.Slack.PhoneWebhookURL != "" {
		sink = notify.NewSlackSink(cfg.Slack.PhoneWebhookURL)
	}

	callRouter := routing.NewRouter(
		scheduling.NewPostgresService(db),
		directory.NewPostgresStore(db),
		scheduler,
		sink,
	)
	callRouter.Location = cfg.Phone.Location()
	callRouter.Timeout = cfg.Phone.Timeout
	callRouter.TimeoutMargin = cfg.Phone.TimeoutMargin
	callRouter.BaseURL = cfg.Phone.PublicBaseURL
	callRouter.RegisterTasks(mux)

	allowed := cfg.Phone.ElksAllowedIPs
	if len(allowed) == 0 {
		allowed = telephony.DefaultElksIPs
	}

	creditSvc := credits.NewService(
		credits.NewPostgresStore(db),
		audit.NewService(audit.NewPostgresRepo(db)),
		credits.Config{Currency: cfg.Credits.Currency, LegacyRate: cfg.Credits.LegacyRate},
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		DB:     db,
		AuthMW: auth.RequireAccessToken(authManager),
		Verifier: telephony.SourceVerifier{
			Enabled:    cfg.Phone.VerifyElksIP,
			AllowedIPs: allowed,
		},
		Phone: telephony.ElksWebhookHandler{
			Router:    callRouter,
			Extension: cfg.Phone.Extension,
			MaxLength: cfg.Phone.MaxLength,
		},
		Credits: creditSvc,
		Tokens:  authManager,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "tasks_backend", cfg.Tasks.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

}

// openScheduler returns the missed-call timer backend. With redis a cron
// runner polls for due tasks; the returned cleanup stops it.
func openScheduler(ctx context.Context, cfg config.Config, mux *tasks.Mux, log *slog.Logger) (tasks.Scheduler, func(), error) {
	if cfg.Tasks.Backend == config.TasksBackendMemory {
		s := tasks.NewMemoryScheduler(mux, log)
		return s, func() {}, nil
	}

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		return nil, nil, err
	}
	s := tasks.NewRedisScheduler(rdb)
	runner := tasks.NewRunner(s, mux, log, cfg.Tasks.PollSpec)
	if err := runner.Start(logger.With(ctx, log)); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return s, func() {
		runner.Stop()
		_ = rdb.Close()
	}, nil
}

// pingDB backs the health check.
func pingDB(ctx context.Context, db *sql.DB) error {
	return utils.HealthCheck(ctx, db, 2*time.Second)
}
