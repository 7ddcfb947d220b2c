package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/config"
	"github.com/signalix/accounts/internal/credential"
	"github.com/signalix/accounts/internal/db"
	"github.com/signalix/accounts/internal/events"
	httphandler "github.com/signalix/accounts/internal/http"
	"github.com/signalix/accounts/internal/http/handlers"
	"github.com/signalix/accounts/internal/logging"
	"github.com/signalix/accounts/internal/mailer"
	"github.com/signalix/accounts/internal/metrics"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/repo"
)

func main() {
	// env vars override .env
	_ = godotenv.Load(".env")

	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	gormDB, err := db.Gorm(database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open gorm session")
	}

	m := metrics.New()

	bus, redisClient, err := newBus(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up event bus")
	}

	mail, err := newMailer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up mailer")
	}

	consumer := events.NewEmailConsumer(mail, bus,
		events.WithRetryDelay(cfg.EmailRetryDelay),
		events.WithResultHook(m.ObserveEmail),
	)
	consumer.Register(bus)
	if err := bus.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start event consumer")
	}

	userRepo := repo.NewUserRepo(gormDB)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL, userRepo)
	accountService := auth.NewAccountService(userRepo, jwtService, bus,
		auth.WithOTPOptions(credential.OTPOptions{Digits: cfg.OTPDigits, Step: cfg.OTPStep}),
		auth.WithLoginObserver(m.ObserveLogin),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	defer limiter.Close()

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:     handlers.NewAuthHandler(accountService),
		Health:   handlers.NewHealthHandler(database, redisClient),
		Verifier: jwtService,
		Limiter:  limiter,
		Metrics:  m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := bus.Close(); err != nil {
		log.Error().Err(err).Msg("Event bus did not close cleanly")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info().Msg("Server exited")
}

// newBus picks the asynq transport when Redis is configured and the
// in-process bus otherwise. The Redis client is returned for readiness checks.
func newBus(cfg *config.Config) (events.Bus, *redis.Client, error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, using in-process event bus")
		return events.NewLocalBus(), nil, nil
	}

	bus, err := events.NewAsynqBus(cfg.RedisURL, 5)
	if err != nil {
		return nil, nil, err
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return bus, redis.NewClient(opt), nil
}

func newMailer(cfg *config.Config) (events.Mailer, error) {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, err
	}
	mcfg := mailer.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUser,
		Password:  cfg.SMTPPassword,
		Secure:    cfg.SMTPSecure,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailName,
	}
	if cfg.SMTPHost == "" {
		if cfg.IsProduction() {
			return nil, errors.New("SMTP_HOST is required in production")
		}
		log.Warn().Msg("SMTP_HOST not set, emails will only be logged")
		return mailer.NewLogMailer(mcfg, renderer), nil
	}
	return mailer.NewSMTPMailer(mcfg, renderer), nil
}
