package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openmaw-ai/openmaw/internal/api/handlers"
	"github.com/openmaw-ai/openmaw/internal/api/middleware"
	"github.com/openmaw-ai/openmaw/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Transcript dispatch
		r.Post("/transcripts", h.HandleTranscript)

		// Installed plugins
		r.Route("/plugins", func(r chi.Router) {
			r.Get("/", h.ListPlugins)
			r.Post("/reload", h.ReloadPlugins)
			r.Route("/{pluginID}", func(r chi.Router) {
				r.Delete("/", h.UninstallPlugin)
				r.Post("/enable", h.EnablePlugin)
				r.Post("/disable", h.DisablePlugin)
				r.Get("/settings", h.GetSettings)
				r.Put("/settings", h.PutSettings)
			})
		})

		// Remote registry
		r.Route("/registry", func(r chi.Router) {
			r.Get("/search", h.SearchRegistry)
			r.Get("/featured", h.FeaturedRegistry)
			r.Get("/updates", h.CheckUpdates)
			r.Post("/install", h.InstallPlugin)
		})

		// Conversations
		r.Delete("/conversations/{pluginID}", h.ClearConversation)

		// Usage
		r.Get("/usage", h.GetUsage)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "openmaw",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "openmaw",
		})
	}
}
