package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dentbot/internal/compliance"
	"github.com/wolfman30/dentbot/internal/conversation"
	httpmiddleware "github.com/wolfman30/dentbot/internal/http/middleware"
	"github.com/wolfman30/dentbot/internal/webchat"
	"github.com/wolfman30/dentbot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebChatHandler      *webchat.Handler
	AuditHandler        *compliance.AuditHandler
	MetricsHandler      http.Handler
	Health              HealthConfig

	// PatientAuthSecret enables patient JWT auth on session routes when set.
	PatientAuthSecret string
	AdminAuthSecret   string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Health))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Patient-facing routes
	r.Group(func(patient chi.Router) {
		patient.Use(httpmiddleware.PatientJWT(cfg.PatientAuthSecret))
		if cfg.ConversationHandler != nil {
			cfg.ConversationHandler.Routes(patient)
		}
		if cfg.WebChatHandler != nil {
			patient.Get("/v1/chat/ws", cfg.WebChatHandler.HandleWebSocket)
		}
	})

	// Operator routes
	if cfg.AuditHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/audit", cfg.AuditHandler.ListEvents)
		})
	}

	return r
}
