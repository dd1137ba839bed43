// Package router assembles the chi router from the configured handlers.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/confirmline/confirmline/internal/http/handlers"
	httpmiddleware "github.com/confirmline/confirmline/internal/http/middleware"
	"github.com/confirmline/confirmline/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Uploads        *handlers.UploadHandler
	Calls          *handlers.CallHandler
	TwilioWebhooks *handlers.TwilioWebhookHandler
	Health         *handlers.HealthHandler
	MetricsHandler http.Handler

	// AdminAuthSecret protects the operator API when set; empty leaves
	// the API open for single-operator local deployments.
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Webhook rate limiting (requests/sec + burst per IP). Zero disables.
	WebhookRateLimit float64
	WebhookBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

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

	// Public endpoints: provider webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/healthz", cfg.Health.HandleHealthz)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.TwilioWebhooks != nil {
			public.Route("/twilio", func(r chi.Router) {
				if cfg.WebhookRateLimit > 0 {
					r.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookBurst))
				}
				r.Post("/voice", cfg.TwilioWebhooks.HandleVoice)
				r.Post("/gather", cfg.TwilioWebhooks.HandleGather)
				r.Post("/status", cfg.TwilioWebhooks.HandleStatus)
				r.Post("/dial-status", cfg.TwilioWebhooks.HandleDialStatus)
			})
		}
	})

	// Operator API.
	r.Route("/api", func(api chi.Router) {
		if cfg.AdminAuthSecret != "" {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}
		if cfg.Uploads != nil {
			api.Post("/upload", cfg.Uploads.HandleUpload)
			api.Get("/appointments", cfg.Uploads.HandleListAppointments)
			api.Get("/uploads", cfg.Uploads.HandleRecentUploads)
		}
		if cfg.Calls != nil {
			api.Post("/call/{appointmentID}", cfg.Calls.HandleStartCall)
			api.Get("/appointments/{appointmentID}/history", cfg.Calls.HandleCallHistory)
			api.Route("/calls", func(r chi.Router) {
				r.Post("/batch", cfg.Calls.HandleStartBatch)
				r.Get("/batch", cfg.Calls.HandleBatchStatus)
				r.Delete("/batch", cfg.Calls.HandleCancelBatch)
				r.Get("/{callSID}/events", cfg.Calls.HandleCallEvents)
			})
		}
	})

	return r
}
