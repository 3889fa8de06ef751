package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/api"
	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
	"github.com/hackgods/calendar-proxy-scheduling/internal/credential"
	"github.com/hackgods/calendar-proxy-scheduling/internal/db"
	"github.com/hackgods/calendar-proxy-scheduling/internal/logging"
	redisclient "github.com/hackgods/calendar-proxy-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("dev").Fatal("config load error", zap.Error(err))
	}

	logger := logging.Must(cfg.Env).With(zap.String("service", "api-server"))
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up", zap.String("http_port", cfg.HTTPPort), zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err == nil {
		err = db.Migrate(pgCtx, pgPool)
	}
	cancelPg()
	if err != nil {
		logger.Fatal("postgres setup error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
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

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Calendar: proxy,
		States:   redisclient.NewStateStore(rdb, cfg.OAuthStateTTL),
		Health: api.NewHealthHandler(
			pgPool.Ping,
			func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			cfg.Env,
			version,
		),
		Logger: logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()
	logger.Info("http server listening", zap.String("addr", srv.Addr))

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
