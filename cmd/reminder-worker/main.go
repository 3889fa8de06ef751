package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
	"github.com/hackgods/calendar-proxy-scheduling/internal/credential"
	"github.com/hackgods/calendar-proxy-scheduling/internal/db"
	"github.com/hackgods/calendar-proxy-scheduling/internal/logging"
	redisclient "github.com/hackgods/calendar-proxy-scheduling/internal/redis"
	"github.com/hackgods/calendar-proxy-scheduling/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("dev").Fatal("config load error", zap.Error(err))
	}

	logger := logging.Must(cfg.Env).With(zap.String("service", "reminder-worker"))
	defer func() { _ = logger.Sync() }()

	logger.Info("reminder worker starting",
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("hours_before", cfg.ReminderHoursBefore),
		zap.Duration("window", cfg.ReminderWindow),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	redisOpts := redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}
	rdb, err := redisclient.NewRedisClient(rootCtx, redisOpts)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	cipher, err := credential.NewCipher([]byte(cfg.EncryptionKey))
	if err != nil {
		logger.Fatal("credential cipher", zap.Error(err))
	}
	proxy := credential.NewProxy(
		credential.NewPgStore(pgPool, cipher),
		credential.NewGoogleOAuth(credential.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}),
		logger.Named("credential"),
		credential.WithCallTimeout(cfg.ExternalCallTimeout),
	)

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool, cfg.Availability),
		redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		proxy,
		cfg,
		logger.Named("appointment"),
	)

	client := asynq.NewClient(redisOpts.AsynqOpt())
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("error closing asynq client", zap.Error(err))
		}
	}()

	scheduler := reminder.NewScheduler(client, svc, logger.Named("scheduler"))
	handler := reminder.NewHandler(svc, reminder.LogNotifier{Logger: logger.Named("notifier")}, logger.Named("handler"))
	srv := reminder.NewServer(redisOpts.AsynqOpt(), reminder.ServerConfig{Concurrency: 5}, logger.Named("asynq"))

	if err := srv.Start(reminder.NewMux(handler)); err != nil {
		logger.Fatal("start asynq server", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		// Run once at startup
		runOnce(ctx, scheduler, logger)

		ticker := time.NewTicker(cfg.WorkerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce(ctx, scheduler, logger)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("reminder worker stopped", zap.Error(err))
	}

	logger.Info("shutdown signal received, stopping reminder worker")
	srv.Shutdown()
}

func runOnce(ctx context.Context, scheduler *reminder.Scheduler, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	queued, err := scheduler.Scan(runCtx)
	if err != nil {
		logger.Error("reminder scan error", zap.Int("queued", queued), zap.Error(err))
		return
	}
	logger.Info("reminder scan complete", zap.Int("queued", queued), zap.Duration("took", time.Since(start)))
}
