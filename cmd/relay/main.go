package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/google"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/session"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/state"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/config"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/monitor"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/upstream"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/version"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	gormLevel := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		gormLevel = gormlogger.Info
	}
	database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, gormLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	states, closeStates, err := newStateStore(ctx, cfg, database, logger)
	if err != nil {
		return err
	}
	defer closeStates()

	httpClient := &http.Client{Timeout: cfg.OutboundTimeout}
	oauthConfig := google.NewOAuthConfig(cfg)
	provider := google.NewProvider(oauthConfig, cfg.GoogleUserInfoURL, httpClient)
	sessions := session.NewManager(database, provider, states, cfg.SessionTTL, logger)

	client := upstream.NewClient(httpClient, cfg.ScriptMetricsBaseURL)
	runner := monitor.NewRunner(database, upstream.NewTokenRefresher(oauthConfig, httpClient), client, client, logger)

	sweeper, err := monitor.NewSweeper(database, runner, cfg.SweepSchedule, logger)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(api.Deps{
			DB:             database,
			Sessions:       sessions,
			Checker:        runner,
			FrontendOrigin: cfg.FrontendOrigin,
			RateLimitRPM:   cfg.RateLimitRPM,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("relay listening",
			zap.String("addr", srv.Addr),
			zap.String("version", version.String()),
			zap.String("database", cfg.DatabaseDriver),
			zap.String("sweep_schedule", cfg.SweepSchedule),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		logger.Warn("sweeper shutdown", zap.Error(err))
	}
	return nil
}

// newStateStore uses Redis when REDIS_ADDR is set and the database otherwise.
func newStateStore(ctx context.Context, cfg config.Config, database *gorm.DB, logger *zap.Logger) (state.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return state.NewGormStore(database), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("oauth state stored in redis", zap.String("addr", cfg.RedisAddr))
	return state.NewRedisStore(client), func() { client.Close() }, nil
}
