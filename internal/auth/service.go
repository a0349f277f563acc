package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/soundscapes/server/internal/apperr"
	"github.com/soundscapes/server/internal/model"
)

// Method names an issuance strategy.
type Method string

const (
	MethodOTP      Method = "otp"
	MethodPassword Method = "password"
)

// Credentials carries whatever a strategy needs to authenticate the caller.
type Credentials struct {
	Phone    string
	Code     string
	Password string
}

// Strategy authenticates credentials and returns the claims to sign.
type Strategy interface {
	Authenticate(ctx context.Context, creds Credentials) (model.AdminClaims, error)
}

// OTPStrategy issues credentials after a successful one-time-code verification.
type OTPStrategy struct {
	authenticator *Authenticator
}

// NewOTPStrategy wraps an Authenticator as a Strategy.
func NewOTPStrategy(a *Authenticator) *OTPStrategy {
	return &OTPStrategy{authenticator: a}
}

// Authenticate verifies the phone/code pair.
func (s *OTPStrategy) Authenticate(ctx context.Context, creds Credentials) (model.AdminClaims, error) {
	if err := s.authenticator.VerifyChallenge(ctx, creds.Phone, creds.Code); err != nil {
		return model.AdminClaims{}, err
	}
	return model.AdminClaims{Role: model.RoleAdmin, PhoneNumber: NormalizePhone(creds.Phone)}, nil
}

// PasswordStrategy is the legacy shared-secret login. It refuses every call
// while strict mode is on.
type PasswordStrategy struct {
	password string
	hash     []byte
	strict   bool
}

// NewPasswordStrategy accepts either a bcrypt hash or a plaintext secret;
// the hash wins when both are set.
func NewPasswordStrategy(password, bcryptHash string, strict bool) *PasswordStrategy {
	s := &PasswordStrategy{password: password, strict: strict}
	if h := strings.TrimSpace(bcryptHash); h != "" {
		s.hash = []byte(h)
	}
	return s
}

// Authenticate compares the password against the configured secret.
func (s *PasswordStrategy) Authenticate(ctx context.Context, creds Credentials) (model.AdminClaims, error) {
	if s.strict {
		return model.AdminClaims{}, apperr.New(apperr.KindForbidden, "password login disabled; use SMS OTP")
	}
	if creds.Password == "" || !s.matches(creds.Password) {
		return model.AdminClaims{}, apperr.Unauthorized("invalid credentials")
	}
	return model.AdminClaims{Role: model.RoleAdmin}, nil
}

func (s *PasswordStrategy) matches(password string) bool {
	if s.hash != nil {
		return bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
	}
	if s.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
}

// AuthService orchestrates credential issuance across strategies
type AuthService struct {
	codec      *TokenCodec
	strategies map[Method]Strategy
	logger     *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(codec *TokenCodec, otp *OTPStrategy, password *PasswordStrategy, logger *slog.Logger) *AuthService {
	return &AuthService{
		codec: codec,
		strategies: map[Method]Strategy{
			MethodOTP:      otp,
			MethodPassword: password,
		},
		logger: logger,
	}
}

// Issue authenticates creds with the named strategy and signs a credential.
func (s *AuthService) Issue(ctx context.Context, method Method, creds Credentials) (string, error) {
	strategy, ok := s.strategies[method]
	if !ok {
		return "", apperr.Validation("unknown login method %q", method)
	}
	claims, err := strategy.Authenticate(ctx, creds)
	if err != nil {
		return "", err
	}
	token, err := s.codec.Issue(claims)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	s.logger.Info("admin token issued", "method", string(method), "phone", maskOptional(claims.PhoneNumber))
	return token, nil
}

func maskOptional(phone string) string {
	if phone == "" {
		return "-"
	}
	return MaskPhone(phone)
}
