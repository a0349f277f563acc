package tests

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/soundscapes/server/internal/admin"
	"github.com/soundscapes/server/internal/auth"
	httphandler "github.com/soundscapes/server/internal/http"
	"github.com/soundscapes/server/internal/http/handlers"
	"github.com/soundscapes/server/internal/namespace"
	"github.com/soundscapes/server/internal/notify"
)

// Options configures a fully wired server for black-box tests.
type Options struct {
	Root            string
	Challenges      auth.ChallengeStore
	Sender          auth.Sender
	AdminPhone      string
	Password        string
	Strict          bool
	ExposeCode      bool
	TokenSecret     string
	TokenTTL        time.Duration
	OTPTTL          time.Duration
	MaxUploadBytes  int64
	ExternalBaseURL string
}

// NewHandler wires the same components as cmd/api over opts and returns
// the router plus a func releasing its background goroutines.
func NewHandler(opts Options, logger *slog.Logger) (http.Handler, func(), error) {
	if opts.Challenges == nil {
		opts.Challenges = auth.NewMemoryChallengeStore()
	}
	if opts.Sender == nil {
		opts.Sender = notify.LogSender{Logger: logger}
	}
	if opts.TokenSecret == "" {
		opts.TokenSecret = "test-token-secret"
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1 << 20
	}

	store, err := namespace.NewStore(opts.Root, nil, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("namespace store: %w", err)
	}
	authenticator := auth.NewAuthenticator(opts.Challenges, opts.Sender, auth.AuthenticatorConfig{
		AllowedPhone: opts.AdminPhone,
		Salt:         "test-otp-salt",
		TTL:          opts.OTPTTL,
		ExposeCode:   opts.ExposeCode,
	}, logger)
	codec := auth.NewTokenCodec(opts.TokenSecret, auth.PurposeAdminLogin)
	issuer := auth.NewAuthService(codec, auth.NewOTPStrategy(authenticator), auth.NewPasswordStrategy(opts.Password, "", opts.Strict), logger)
	svc := admin.NewService(authenticator, issuer, codec, store, opts.TokenTTL, logger)

	authHandler := handlers.NewAuthHandler(svc, logger)
	router := httphandler.NewRouter(httphandler.RouterConfig{
		Auth:       authHandler,
		Namespace:  handlers.NewNamespaceHandler(svc, opts.MaxUploadBytes, logger),
		Public:     handlers.NewPublicHandler(svc, opts.ExternalBaseURL, false, logger),
		StaticRoot: store.Root(),
		Logger:     logger,
	})
	return router, authHandler.Close, nil
}

// TruncateChallenges empties the challenge table for a clean test state.
func TruncateChallenges(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE otp_challenges"); err != nil {
		return fmt.Errorf("truncate otp_challenges: %w", err)
	}
	return nil
}
