package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/soundscapes/server/internal/admin"
	"github.com/soundscapes/server/internal/auth"
	"github.com/soundscapes/server/internal/middleware"
)

// AuthHandler handles the admin login endpoints
type AuthHandler struct {
	admin           *admin.Service
	ipLimiter       *middleware.RateLimiter
	verifyIPLimiter *middleware.RateLimiter
	phoneLimiter    *middleware.RateLimiter
	logger          *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *admin.Service, logger *slog.Logger) *AuthHandler {
	// 10 per 10min for login_start per IP, 5 per 10min per phone, 20 per 10min for verify and login per IP
	return &AuthHandler{
		admin:           svc,
		ipLimiter:       middleware.NewRateLimiter(10*time.Minute, 10),
		verifyIPLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
		phoneLimiter:    middleware.NewRateLimiter(10*time.Minute, 5),
		logger:          logger,
	}
}

// Close stops the limiter cleanup goroutines.
func (h *AuthHandler) Close() {
	h.ipLimiter.Stop()
	h.verifyIPLimiter.Stop()
	h.phoneLimiter.Stop()
}

// LoginRateLimit limits login_verify and the legacy login per client IP.
func (h *AuthHandler) LoginRateLimit() func(http.Handler) http.Handler {
	return middleware.RateLimitMiddleware(h.verifyIPLimiter, middleware.GetIPKey)
}

// loginStartResponse is the JSON response for login_start
type loginStartResponse struct {
	OK        bool   `json:"ok"`
	ExpiresIn int    `json:"expires_in"`
	DevCode   string `json:"dev_code,omitempty"`
}

// tokenResponse is the JSON response for the login endpoints
type tokenResponse struct {
	Token string `json:"token"`
}

// HandleLoginStart handles POST /api/admin/login_start
func (h *AuthHandler) HandleLoginStart(w http.ResponseWriter, r *http.Request) {
	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var in admin.StartChallengeInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	if phone := auth.NormalizePhone(in.Phone); phone != "" && !h.phoneLimiter.Allow(middleware.GetPhoneKey(phone)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	started, err := h.admin.StartChallenge(r.Context(), in)
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginStartResponse{
		OK:        true,
		ExpiresIn: int(time.Until(started.ExpiresAt).Round(time.Second).Seconds()),
		DevCode:   started.DevCode,
	})
}

// HandleLoginVerify handles POST /api/admin/login_verify
func (h *AuthHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var in admin.VerifyChallengeInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}

	token, err := h.admin.VerifyChallenge(r.Context(), in)
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// HandlePasswordLogin handles POST /api/admin/login
func (h *AuthHandler) HandlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	var in admin.PasswordLoginInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}

	token, err := h.admin.PasswordLogin(r.Context(), in)
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tokenResponse{Token: token})
}
