package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soundscapes/server/internal/http/handlers"
	"github.com/soundscapes/server/internal/middleware"
)

// RouterConfig carries the handlers and settings NewRouter wires together.
type RouterConfig struct {
	Auth        *handlers.AuthHandler
	Namespace   *handlers.NamespaceHandler
	Public      *handlers.PublicHandler
	StaticRoot  string
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.NoCache)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	apiCORS := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		MaxAge:         600,
	})
	staticCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Range"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
	})

	r.Get("/", cfg.Public.HandleRoot)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiCORS)
		r.Get("/health", cfg.Public.HandleHealth)
		r.Get("/soundscapes", cfg.Public.HandleListSoundscapes)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login_start", cfg.Auth.HandleLoginStart)
			r.With(cfg.Auth.LoginRateLimit()).Post("/login_verify", cfg.Auth.HandleLoginVerify)
			r.With(cfg.Auth.LoginRateLimit()).Post("/login", cfg.Auth.HandlePasswordLogin)

			// Protected routes (require a bearer credential)
			r.Group(func(r chi.Router) {
				r.Use(middleware.BearerAuth)
				r.Post("/create_category", cfg.Namespace.HandleCreateCategory)
				r.Post("/rename_category", cfg.Namespace.HandleRenameCategory)
				r.Post("/delete_category", cfg.Namespace.HandleDeleteCategory)
				r.Post("/upload", cfg.Namespace.HandleUpload)
				r.Post("/rename_file", cfg.Namespace.HandleRenameFile)
				r.Post("/move_file", cfg.Namespace.HandleMoveFile)
				r.Post("/delete_file", cfg.Namespace.HandleDeleteFile)
			})
		})
	})

	r.With(staticCORS).Handle("/static/soundscapes/*",
		http.StripPrefix("/static/soundscapes", handlers.StaticFiles(cfg.StaticRoot)))

	return r
}
