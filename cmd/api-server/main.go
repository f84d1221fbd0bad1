package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/directory"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("timezone", cfg.Location.String()),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	lg.Info("connected to Postgres")

	var (
		locker      redisclient.Locker
		windowCache schedule.WindowCache
		redisProbe  redis.Cmdable
	)
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			lg.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("error closing redis", zap.Error(err))
			}
		}()
		lg.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		windowCache = redisclient.NewWindowCache(rdb, cfg.WindowCacheTTL)
		redisProbe = rdb
	}

	windows := schedule.NewStore(schedule.NewPgWindowRepository(pgPool), windowCache, lg.Named("windows"))
	appts := appointment.NewPgRepository(pgPool)
	checker := schedule.NewChecker(windows, appts)
	bookingChecker := schedule.NewChecker(windows.Direct(), appts)
	slots := schedule.NewSlotGenerator(windows, appts, schedule.WithClock(schedule.WallClock(cfg.Location)))
	dir := directory.NewPgDirectory(pgPool)

	svc := appointment.NewService(appointment.Dependencies{
		Repo:          appts,
		Checker:       bookingChecker,
		Services:      dir,
		Professionals: dir,
		Patients:      dir,
		Notifier:      notify.NewOutboxNotifier(notify.NewPgOutbox(pgPool)),
		Locker:        locker,
		Logger:        lg.Named("appointments"),
	}, cfg)

	router := api.NewRouter(api.RouterConfig{
		Windows:      windows,
		Slots:        slots,
		Checker:      checker,
		Appointments: svc,
		SlotLength:   cfg.SlotLengthMinutes,
		Postgres:     pgPool,
		Redis:        redisProbe,
		Logger:       lg.Named("http"),
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		lg.Info("shutdown signal received")
	case err := <-errCh:
		lg.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}

	lg.Info("api-server stopped")
}
