package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/audit"
	"github.com/openclaw/userbot-server-go/internal/config"
	"github.com/openclaw/userbot-server-go/internal/database"
	"github.com/openclaw/userbot-server-go/internal/dispatcher"
	"github.com/openclaw/userbot-server-go/internal/handler"
	"github.com/openclaw/userbot-server-go/internal/jobs"
	"github.com/openclaw/userbot-server-go/internal/middleware"
	"github.com/openclaw/userbot-server-go/internal/redis"
	"github.com/openclaw/userbot-server-go/internal/repository"
	"github.com/openclaw/userbot-server-go/internal/service"
	"github.com/openclaw/userbot-server-go/internal/sse"
	"github.com/openclaw/userbot-server-go/internal/store"
	"github.com/openclaw/userbot-server-go/internal/upstream/gateway"
)

func main() {
	startedAt := time.Now()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var (
		db        *database.DB
		eventRepo repository.AuthEventRepository
	)
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		cancel()

		eventRepo = repository.NewAuthEventRepository(db.DB)
		log.Info().Msg("database connected")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	gatewayOpts := gateway.Options{
		BaseURL:      cfg.GatewayURL,
		Timeout:      cfg.GatewayTimeout(),
		PollInterval: cfg.PollInterval(),
	}
	if cfg.PushDelivery() {
		gatewayOpts.Redis = redisClient
	}
	connector := gateway.NewConnector(gatewayOpts)
	log.Info().
		Str("gateway", cfg.GatewayURL).
		Bool("push", cfg.PushDelivery()).
		Msg("gateway configured")

	sessions := store.NewMemory()
	recorder := audit.NewRecorder(eventRepo)
	if !recorder.Persistent() {
		log.Info().Msg("DATABASE_URL not set, audit events are logged only")
	}

	commands := dispatcher.New(dispatcher.Options{
		UnknownCommandMode: cfg.UnknownCommandMode,
		StartedAt:          startedAt,
	}, sessions, broker)

	authService := service.NewAuthService(sessions, connector, commands, broker, recorder, service.AuthOptions{
		SecondFactorEnabled: cfg.SecondFactorEnabled,
	})

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminAPIKeyHash)
	if !adminAuthMiddleware.Enabled() {
		log.Info().Msg("ADMIN_API_KEY_HASH not set, admin API disabled")
	}

	var healthDB handler.Pinger
	if db != nil {
		healthDB = db
	}

	router := handler.NewRouter(handler.RouterDeps{
		Auth:            handler.NewAuthHandler(authService),
		Sessions:        handler.NewSessionsHandler(authService, broker),
		Health:          handler.NewHealthHandler(authService, healthDB, broker, startedAt),
		Admin:           handler.NewAdminHandler(authService, eventRepo, adminAuthMiddleware.Handler),
		BodyLimit:       middleware.NewBodyLimitMiddleware(0),
		SecurityHeaders: middleware.NewSecurityHeadersMiddleware(isProduction),
	})

	var auditCleaner jobs.AuditCleaner
	if eventRepo != nil {
		auditCleaner = eventRepo
	}
	reaper := jobs.NewReaper(authService, sessions, auditCleaner, jobs.ReaperOptions{
		Interval:       cfg.ReaperInterval(),
		PendingTTL:     cfg.PendingAuthTTL(),
		ProbeLive:      cfg.ReaperProbeLive,
		AuditRetention: cfg.AuditRetention(),
	})
	reaper.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Terminates open event streams so Shutdown does not wait on them.
	broker.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	reaper.Stop()

	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), config.SessionShutdownTimeout)
	defer sessionCancel()
	authService.Shutdown(sessionCtx)

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
