package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/soundscapes/server/internal/apperr"
	"github.com/soundscapes/server/internal/model"
)

// PurposeAdminLogin separates admin credentials from any other use of the secret.
const PurposeAdminLogin = "admin-login"

// TokenClaims is the JWT payload of an admin credential. It carries no exp:
// the verifier decides the maximum age.
type TokenClaims struct {
	Role        string `json:"role"`
	PhoneNumber string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies stateless admin credentials
type TokenCodec struct {
	key     []byte
	purpose string
	now     func() time.Time
}

// NewTokenCodec derives a purpose-bound signing key from secret.
func NewTokenCodec(secret, purpose string) *TokenCodec {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(purpose))
	return &TokenCodec{
		key:     mac.Sum(nil),
		purpose: purpose,
		now:     time.Now,
	}
}

// Issue signs claims with the current time as issued-at.
func (c *TokenCodec) Issue(claims model.AdminClaims) (string, error) {
	now := c.now()
	tc := &TokenClaims{
		Role:        claims.Role,
		PhoneNumber: claims.PhoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Audience: jwt.ClaimStrings{c.purpose},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	tokenString, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the signature of credential and that it is at most maxAge old.
func (c *TokenCodec) Verify(credential string, maxAge time.Duration) (model.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(credential, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(c.purpose),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return model.AdminClaims{}, apperr.Wrap(apperr.KindInvalid, err, "invalid token")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.IssuedAt == nil {
		return model.AdminClaims{}, apperr.Wrap(apperr.KindInvalid, errors.New("missing issued-at"), "invalid token")
	}

	issuedAt := claims.IssuedAt.Time.UTC()
	if c.now().Sub(issuedAt) > maxAge {
		return model.AdminClaims{}, apperr.New(apperr.KindExpired, "token expired")
	}

	return model.AdminClaims{
		Role:        claims.Role,
		PhoneNumber: claims.PhoneNumber,
		IssuedAt:    issuedAt,
	}, nil
}
