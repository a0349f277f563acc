package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/soundscapes/server/internal/admin"
)

const serviceName = "soundscapes-backend"

// PublicHandler serves the unauthenticated endpoints
type PublicHandler struct {
	admin           *admin.Service
	externalBaseURL string
	smsEnabled      bool
	logger          *slog.Logger
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(svc *admin.Service, externalBaseURL string, smsEnabled bool, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{admin: svc, externalBaseURL: externalBaseURL, smsEnabled: smsEnabled, logger: logger}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// HandleRoot handles GET /
func (h *PublicHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"service":        serviceName,
		"time":           nowISO(),
		"twilio_enabled": h.smsEnabled,
		"docs":           "/api/health, /api/soundscapes, /api/admin/*",
	})
}

// HandleHealth handles GET /api/health
func (h *PublicHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "time": nowISO()})
}

// HandleListSoundscapes handles GET /api/soundscapes
func (h *PublicHandler) HandleListSoundscapes(w http.ResponseWriter, r *http.Request) {
	listing, err := h.admin.ListNamespace(BaseURL(r, h.externalBaseURL))
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	files := 0
	for _, c := range listing.Categories {
		files += len(c.Files)
	}
	h.logger.Debug("soundscapes listed", "categories", len(listing.Categories), "files", files)
	respondWithJSON(w, http.StatusOK, listing)
}

// StaticFiles serves category files read-only from root with byte-range
// support. Directory listings and hidden entries are not served.
func StaticFiles(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == "" || strings.HasSuffix(p, "/") || hasHiddenSegment(p) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Accept-Ranges", "bytes")
		fs.ServeHTTP(w, r)
	})
}

func hasHiddenSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
