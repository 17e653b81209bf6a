package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/alert"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/api"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/config"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/daemon"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/database"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/gateway"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/logging"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/metrics"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/notify"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/quality"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/queuestore"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/registry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()

	if err := prepareDirectories(cfg); err != nil {
		logger.Error().Err(err).Msg("directory preparation failed")
		return err
	}

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := queuestore.Open(queuestore.Options{
		Path:       cfg.Queue.Path,
		SyncWrites: cfg.Queue.SyncWrites == nil || *cfg.Queue.SyncWrites,
	}, baseLogger)
	if err != nil {
		logger.Error().Err(err).Msg("queue store initialization failed")
		return err
	}
	defer store.Close()

	db, err := database.NewDB(cfg.Database.Path, baseLogger)
	if err != nil {
		logger.Error().Err(err).Msg("database initialization failed")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	notifier := initNotifier(redisClient, baseLogger)

	alerter := initAlerter(cfg, baseLogger)

	syncDaemon := daemon.New(store, notifier, db, alerter, redisClient, daemon.Options{
		HealthURL:          healthURL(cfg),
		HeartbeatInterval:  cfg.Sync.HeartbeatInterval(),
		ProbePolicy:        daemon.RetryPolicy{InitialDelay: cfg.Sync.ProbeInitialDelay(), MaxDelay: cfg.Sync.ProbeMaxDelay(), BackoffFactor: cfg.Sync.ProbeBackoff},
		AlertAfterAttempts: cfg.Sync.AlertAfterAttempts,
	}, baseLogger)
	go syncDaemon.Start(ctx)

	gw := gateway.New(store, syncDaemon, cfg.Backend.SubmitTimeout(), baseLogger)

	reg := registry.New(db, store, gw, quality.Sharpness{}, notifier,
		registry.Routes{BaseURL: cfg.Backend.BaseURL}, cfg.Categories, baseLogger)
	reg.AttachBus(notifier.Bus())

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, reg, store, syncDaemon, baseLogger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, baseLogger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("queue", cfg.Queue.Path).
		Bool("api", cfg.API.Enabled).
		Msg("capture agent started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	// One last flush so a restart resumes from the latest state.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.PersistNow(flushCtx); err != nil {
		logger.Error().Err(err).Msg("final snapshot flush failed")
	}
	return nil
}

func prepareDirectories(cfg *config.Config) error {
	for _, dir := range []string{
		filepath.Dir(cfg.Database.Path),
		cfg.Queue.Path,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if cfg.Backup.Enabled && cfg.Backup.StoragePath != "" {
		return os.MkdirAll(cfg.Backup.StoragePath, 0o755)
	}
	return nil
}

func healthURL(cfg *config.Config) string {
	if cfg.Backend.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(cfg.Backend.BaseURL, "/") + cfg.Backend.HealthPath
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, cross-process notifications disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, continuing with in-process notifications only")
	}
	return client
}

func initNotifier(redisClient *redis.Client, logger *zerolog.Logger) *notify.Fanout {
	bus := notify.NewBus()
	var remote notify.Publisher
	if redisClient != nil {
		remote = notify.NewRedisPublisher(redisClient, notify.DefaultChannel)
	}
	return notify.NewFanout(bus, remote, logger)
}

func initAlerter(cfg *config.Config, logger *zerolog.Logger) *alert.TelegramAlerter {
	if cfg.Alerts.TelegramToken == "" || cfg.Alerts.TelegramChatID == 0 {
		return nil
	}
	alerter, err := alert.NewTelegram(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram alerter unavailable")
		return nil
	}
	return alerter
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
