package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	commoncfg "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/config"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/database"
	mqttcommon "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/mqtt"
	commonredis "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/redis"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/config"
	httpapi "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/http"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/ingest"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/metrics"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/notify"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/service"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/store"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/worker"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/migrations"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when enabled, the MQTT ingest consumer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	logger.Info("Connected to PostgreSQL", zap.String("dsn", cfg.Database.Redacted()))

	if serveMigrate {
		if _, err := migrations.Apply(ctx, db, logger); err != nil {
			return err
		}
	}

	redisClient, err := connectRedis(ctx, &cfg.Redis, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	m := metrics.New()

	// Drained before Redis closes so queued stream publishes still go out.
	pool, err := worker.NewPool(context.Background(), "notify", cfg.Worker.PoolSize, logger)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Shutdown(cfg.HTTP.ShutdownTimeout)

	var (
		sinks  []notify.Sink
		podium service.PodiumCache
	)
	if cfg.Discord.WebhookURL != "" {
		sinks = append(sinks, notify.NewDiscordSink(cfg.Discord.WebhookURL, cfg.Discord.FrontendURL, cfg.Discord.Timeout))
		logger.Info("Discord notifications enabled")
	}
	if redisClient != nil {
		podium = store.NewPodiumCache(store.NewRedisKV(redisClient), cfg.Podium.CacheTTL)
		sinks = append(sinks, notify.NewStreamSink(redisClient, cfg.Stream.Name, cfg.Stream.MaxLen))
	}

	dispatcher := notify.NewDispatcher(pool, cfg.Discord.Timeout, m, logger, sinks...)
	devices := repository.NewPostgresDevicesRepository(db)
	svc := service.NewFallEventService(
		repository.NewPostgresFallEventsRepository(db),
		devices,
		podium,
		dispatcher,
		m,
		logger,
	)

	srv := service.NewServer(cfg.HTTP.Addr, buildHandler(cfg, db, svc, devices, m, logger), logger)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()

	var consumer *ingest.MQTTConsumer
	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		consumer = ingest.NewMQTTConsumer(client, svc, devices, cfg.MQTT.Topic, cfg.MQTT.QoS, logger)
		go func() { errCh <- consumer.Start(ctx) }()
	}

	runErr := waitForStop(ctx, errCh, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if consumer != nil {
		consumer.Stop()
	}
	return runErr
}

// waitForStop blocks until ctx is done or a component exits. A component
// exit is reported as an error so the process ends non-zero.
func waitForStop(ctx context.Context, errCh <-chan error, logger *zap.Logger) error {
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		return nil
	case err := <-errCh:
		if err == nil {
			if ctx.Err() != nil {
				logger.Info("Shutdown signal received")
				return nil
			}
			err = errors.New("component stopped unexpectedly")
		}
		logger.Error("Component failed", zap.Error(err))
		return fmt.Errorf("serve: %w", err)
	}
}

// connectRedis nil client when Redis is disabled.
func connectRedis(ctx context.Context, cfg *commoncfg.RedisConfig, logger *zap.Logger) (*commonredis.Client, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled; podium cache and event stream are off")
		return nil, nil
	}
	client := commonredis.NewRedisClient(cfg)
	if err := commonredis.Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr))
	return client, nil
}

func buildHandler(cfg *config.Config, db *sql.DB, svc service.FallEventService, devices repository.DevicesRepository, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	router := httpapi.NewRouter(logger)
	router.RegisterEventRoutes(
		httpapi.NewFallEventHandler(svc, logger),
		httpapi.BearerAuth(tokens, logger),
		httpapi.DeviceAuth(devices, logger),
	)
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(db, logger))
	router.RegisterMetrics(m.Handler())

	return httpapi.Chain(router,
		httpapi.Recover(logger),
		httpapi.RequestLogger(logger),
		httpapi.CORS(cfg.HTTP.CORSOrigin),
		httpapi.Instrument(m),
		httpapi.Timeout(cfg.HTTP.RequestTimeout),
	)
}
