package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lunara-health/lunara-platform/internal/http/handlers"
	httpmiddleware "github.com/lunara-health/lunara-platform/internal/http/middleware"
	"github.com/lunara-health/lunara-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimit requests/sec per caller; zero disables limiting.
	RateLimit      float64
	RateLimitBurst int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Chat API, scoped to the authenticated user.
	if cfg.ChatHandler != nil {
		r.Route("/api/v1", func(api chi.Router) {
			api.Use(httpmiddleware.RequireUser)
			if cfg.RateLimit > 0 {
				burst := cfg.RateLimitBurst
				if burst <= 0 {
					burst = int(cfg.RateLimit)
				}
				api.Use(httpmiddleware.RateLimit(cfg.RateLimit, burst))
			}

			api.Post("/conversations", cfg.ChatHandler.CreateConversation)
			api.Route("/conversations/{conversationID}", func(conv chi.Router) {
				conv.Get("/messages", cfg.ChatHandler.GetHistory)
				conv.Post("/messages", cfg.ChatHandler.SendMessages)
				conv.Post("/messages/{messageID}/edit", cfg.ChatHandler.EditMessage)
				conv.Post("/options", cfg.ChatHandler.GenerateOptions)
				conv.Post("/options/commit", cfg.ChatHandler.CommitOption)
				conv.Post("/auto-reply", cfg.ChatHandler.AutoReply)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
