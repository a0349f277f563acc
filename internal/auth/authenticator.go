package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundscapes/server/internal/apperr"
	"github.com/soundscapes/server/internal/model"
)

const (
	defaultOTPTTL          = 10 * time.Minute
	defaultDeliveryTimeout = 10 * time.Second
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, body string) error
}

// AuthenticatorConfig configures an Authenticator.
type AuthenticatorConfig struct {
	// AllowedPhone is the single phone identity allowed to log in.
	AllowedPhone string
	// Salt is mixed into the stored code hash.
	Salt string
	// TTL is how long an issued code stays usable. Defaults to 10 minutes.
	TTL time.Duration
	// DeliveryTimeout bounds a single Sender call. Defaults to 10 seconds.
	DeliveryTimeout time.Duration
	// ExposeCode returns the generated code to the caller. Development only.
	ExposeCode bool
}

// Started describes a freshly issued challenge.
type Started struct {
	ExpiresAt time.Time
	// DevCode is the plaintext code, set only when ExposeCode is enabled.
	DevCode string
}

// Authenticator runs the one-time-code challenge/response flow for the admin phone.
type Authenticator struct {
	store  ChallengeStore
	sender Sender
	cfg    AuthenticatorConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthenticator creates a new Authenticator
func NewAuthenticator(store ChallengeStore, sender Sender, cfg AuthenticatorConfig, logger *slog.Logger) *Authenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultOTPTTL
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	cfg.AllowedPhone = NormalizePhone(cfg.AllowedPhone)
	return &Authenticator{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// TTL returns the lifetime of an issued code.
func (a *Authenticator) TTL() time.Duration { return a.cfg.TTL }

// StartChallenge issues a new code for phone and hands it to the Sender.
// The challenge is stored before delivery and is kept if delivery fails.
func (a *Authenticator) StartChallenge(ctx context.Context, phone string) (Started, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return Started{}, apperr.Validation("missing phone")
	}
	if a.cfg.AllowedPhone == "" || phone != a.cfg.AllowedPhone {
		a.logger.Warn("challenge rejected for phone not allowed", "phone", MaskPhone(phone))
		return Started{}, apperr.Unauthorized("unauthorized phone")
	}

	code, err := generateOTPCode()
	if err != nil {
		return Started{}, err
	}
	now := a.now()
	ch := model.Challenge{
		PhoneNumber: phone,
		CodeHash:    hashOTPBytes(phone, code, a.cfg.Salt),
		ExpiresAt:   now.Add(a.cfg.TTL),
		CreatedAt:   now,
	}
	if err := a.store.Put(ctx, ch); err != nil {
		return Started{}, fmt.Errorf("store challenge: %w", err)
	}
	a.logger.Info("challenge issued", "phone", MaskPhone(phone), "expires_at", ch.ExpiresAt.UTC())

	sendCtx, cancel := context.WithTimeout(ctx, a.cfg.DeliveryTimeout)
	defer cancel()
	body := fmt.Sprintf("Ermine Soundscapes admin code: %s (valid %d min)", code, int(a.cfg.TTL/time.Minute))
	if err := a.sender.Send(sendCtx, phone, body); err != nil {
		a.logger.Error("code delivery failed", "phone", MaskPhone(phone), "error", err)
		return Started{}, apperr.Wrap(apperr.KindDelivery, err, "failed to send code")
	}

	started := Started{ExpiresAt: ch.ExpiresAt}
	if a.cfg.ExposeCode {
		started.DevCode = code
	}
	return started, nil
}

// VerifyChallenge checks code against the pending challenge for phone.
// A mismatch leaves the challenge in place; success and expiry remove it.
func (a *Authenticator) VerifyChallenge(ctx context.Context, phone, code string) error {
	phone = NormalizePhone(phone)
	if phone == "" {
		return apperr.Unauthorized("invalid phone or code")
	}
	provided := hashOTPBytes(phone, code, a.cfg.Salt)
	now := a.now()

	err := a.store.Resolve(ctx, phone, func(ch model.Challenge) (bool, error) {
		if ch.Expired(now) {
			return true, apperr.New(apperr.KindExpired, "code expired")
		}
		if !constantTimeCompare(provided, ch.CodeHash) {
			return false, apperr.New(apperr.KindMismatch, "invalid code")
		}
		return true, nil
	})
	switch {
	case errors.Is(err, ErrNoChallenge):
		return apperr.Unauthorized("invalid phone or code")
	case err != nil:
		a.logger.Warn("challenge verification failed", "phone", MaskPhone(phone), "error", err)
		return err
	}
	a.logger.Info("challenge verified", "phone", MaskPhone(phone))
	return nil
}
