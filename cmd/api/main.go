package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/soundscapes/server/internal/admin"
	"github.com/soundscapes/server/internal/auth"
	"github.com/soundscapes/server/internal/config"
	"github.com/soundscapes/server/internal/db"
	httphandler "github.com/soundscapes/server/internal/http"
	"github.com/soundscapes/server/internal/http/handlers"
	"github.com/soundscapes/server/internal/namespace"
	"github.com/soundscapes/server/internal/notify"
	"github.com/soundscapes/server/internal/repo"
)

func main() {
	// Load .env from CWD or backend/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("backend/.env")

	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	challenges, closeStore, err := openChallengeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	store, err := namespace.NewStore(cfg.Root, cfg.AllowedExts, logger.With("component", "namespace"))
	if err != nil {
		return err
	}
	logger.Info("namespace ready", "root", store.Root(), "extensions", strings.Join(store.AllowedExtensions(), ","))

	sender := newSender(cfg, logger)
	authenticator := auth.NewAuthenticator(challenges, sender, auth.AuthenticatorConfig{
		AllowedPhone:    cfg.AdminPhone,
		Salt:            cfg.OTPSalt,
		TTL:             cfg.OTPTTL,
		DeliveryTimeout: cfg.SMSTimeout,
		ExposeCode:      cfg.DevShowCode,
	}, logger.With("component", "otp"))
	if cfg.AdminPhone == "" {
		logger.Warn("ADMIN_E164 is not set; SMS login is disabled")
	}
	if cfg.DevShowCode {
		logger.Warn("DEV_SHOW_CODE is enabled; login codes are returned to clients")
	}

	codec := auth.NewTokenCodec(cfg.TokenSecret, auth.PurposeAdminLogin)
	issuer := auth.NewAuthService(
		codec,
		auth.NewOTPStrategy(authenticator),
		auth.NewPasswordStrategy(cfg.AdminPassword, cfg.AdminPasswordHash, cfg.TwilioStrict),
		logger.With("component", "auth"),
	)
	svc := admin.NewService(authenticator, issuer, codec, store, cfg.TokenTTL, logger.With("component", "admin"))

	authHandler := handlers.NewAuthHandler(svc, logger)
	defer authHandler.Close()

	router := httphandler.NewRouter(httphandler.RouterConfig{
		Auth:        authHandler,
		Namespace:   handlers.NewNamespaceHandler(svc, cfg.MaxUploadBytes, logger),
		Public:      handlers.NewPublicHandler(svc, cfg.ExternalBaseURL, cfg.TwilioConfigured(), logger),
		StaticRoot:  store.Root(),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.With("component", "http"),
	})

	go auth.RunSweeper(ctx, challenges, cfg.SweepInterval, logger.With("component", "sweeper"))

	// Uploads can be large, so there is no write timeout on the server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "challenge_store", cfg.ChallengeStore, "twilio", cfg.TwilioConfigured())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

// openChallengeStore builds the configured ChallengeStore and a func that releases it.
func openChallengeStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.ChallengeStore, func(), error) {
	switch cfg.ChallengeStore {
	case config.StorePostgres:
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(database); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return repo.NewChallengeRepo(database), closer(database), nil

	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
		return repo.NewRedisChallengeStore(client), func() { _ = client.Close() }, nil

	default:
		return auth.NewMemoryChallengeStore(), func() {}, nil
	}
}

func closer(database *sql.DB) func() {
	return func() { _ = database.Close() }
}

// newSender returns the Twilio client when SMS delivery is enabled and
// configured, otherwise a sender that only logs.
func newSender(cfg *config.Config, logger *slog.Logger) auth.Sender {
	if cfg.TwilioConfigured() {
		return notify.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, cfg.TwilioBaseURL, cfg.SMSTimeout)
	}
	if cfg.TwilioEnabled {
		logger.Warn("TWILIO_ENABLED is set but credentials are incomplete; codes will not be sent")
	}
	return notify.LogSender{Logger: logger.With("component", "sms")}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
