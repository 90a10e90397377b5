package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grillbook/internal/api"
	"grillbook/internal/availability"
	"grillbook/internal/codegen"
	"grillbook/internal/config"
	"grillbook/internal/database"
	"grillbook/internal/database/postgres"
	"grillbook/internal/domain"
	"grillbook/internal/events"
	"grillbook/internal/logging"
	"grillbook/internal/metrics"
	"grillbook/internal/models"
	"grillbook/internal/notification"
	"grillbook/internal/repository"
	"grillbook/internal/service"
	"grillbook/internal/timeutil"
	"grillbook/internal/validator"
	"grillbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.SystemClock{Location: loc}
	store, storeCloser, err := initStore(ctx, cfg, loc, clock, &logger)
	if err != nil {
		return err
	}
	defer storeCloser.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	backend := initBackend(redisClient, &logger)
	cachedStore := repository.NewCachedStore(store, backend, logging.Component(&logger, "cache"))

	engineCfg, err := engineConfig(cfg.Schedule, loc)
	if err != nil {
		return err
	}
	codes, err := codegen.New(cfg.Cancellation.CodeLength)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus()
	notifications := worker.NewNotificationWorker(initAnnouncer(cfg, loc, &logger), redisClient, worker.RetryPolicy{}, logging.Component(&logger, "notification-worker"))
	notifications.OnResult(func(success bool) { metrics.IncNotification("telegram", success) })
	notifications.Subscribe(eventBus)
	go notifications.Start(ctx)

	svc := service.NewReservationService(service.Deps{
		Store:     cachedStore,
		Engine:    availability.NewEngine(engineCfg, clock),
		Validator: validator.New(engineCfg.MaxDuration, loc, clock),
		Codes:     codes,
		Notifier:  notification.NewEmailNotifier(cfg.Email, cfg.App.PublicURL, loc, logging.Component(&logger, "email")),
		Events:    eventBus,
		Limiter:   backend,
		Clock:     clock,
	}, service.Options{
		Apartments:        cfg.Apartments,
		CancelMaxAttempts: cfg.Cancellation.MaxAttempts,
		CancelWindow:      cfg.Cancellation.AttemptWindow,
		UpcomingDays:      cfg.Schedule.UpcomingDays,
	}, logging.Component(&logger, "reservations"))

	if db, ok := store.(*database.DB); ok && cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, logging.Component(&logger, "http"))
	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Port != 0 {
		grpcServer, err = api.NewGRPCServer(cfg.API.GRPC, svc, logging.Component(&logger, "grpc"))
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.Watch(ctx)
	}
	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, logger, closer, nil
}

func initStore(ctx context.Context, cfg *config.Config, loc *time.Location, clock timeutil.Clock, logger *zerolog.Logger) (domain.ReservationStore, io.Closer, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Database.Postgres, loc, logging.Component(logger, "postgres"), postgres.WithClock(clock))
		if err != nil {
			logger.Error().Err(err).Msg("init postgres")
			return nil, nil, err
		}
		return store, store, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "sqlite"), database.WithLocation(loc), database.WithClock(clock))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, nil, err
		}
		return db, db, nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initBackend prefers Redis and falls back to process memory.
func initBackend(redisClient *redis.Client, logger *zerolog.Logger) repository.Backend {
	memory := repository.NewMemoryRepository(models.ListCacheTTL)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRepository(
		repository.NewRedisRepository(redisClient, models.ListCacheTTL),
		memory,
		logging.Component(logger, "redis-failover"),
	)
}

func initAnnouncer(cfg *config.Config, loc *time.Location, logger *zerolog.Logger) domain.Announcer {
	if !cfg.Telegram.Enabled() {
		return notification.NewLogAnnouncer(logging.Component(logger, "announcer"))
	}
	bot, err := notification.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, announcements go to the log")
		return notification.NewLogAnnouncer(logging.Component(logger, "announcer"))
	}
	logger.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram announcements enabled")
	return notification.NewTelegramAnnouncer(bot, cfg.Telegram.ChatID, loc)
}

func engineConfig(s config.ScheduleConfig, loc *time.Location) (availability.Config, error) {
	open, err := s.OpenOffset()
	if err != nil {
		return availability.Config{}, err
	}
	closeAt, err := s.CloseOffset()
	if err != nil {
		return availability.Config{}, err
	}
	engineCfg := availability.Config{
		Open:        open,
		Close:       closeAt,
		Granularity: s.Granularity(),
		MaxDuration: s.MaxDuration(),
		Location:    loc,
	}
	if err := engineCfg.Validate(); err != nil {
		return availability.Config{}, fmt.Errorf("schedule: %w", err)
	}
	return engineCfg, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)
	go func() {
		errCh <- httpServer.Start()
	}()
	grpcAddr := ""
	if grpcServer != nil {
		grpcAddr = grpcServer.Addr()
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("grpc_addr", grpcAddr).Str("driver", cfg.Database.Driver).Msg("grillbook server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("grillbook server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
