package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	httpmiddleware "github.com/wolfman30/barbershop-scheduler/internal/http/middleware"
	"github.com/wolfman30/barbershop-scheduler/internal/http/respond"
	"github.com/wolfman30/barbershop-scheduler/internal/payments"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Bookings        *bookings.Handler
	Catalog         *catalog.Handler
	Payments        *payments.Handler
	PaymentsWebhook *payments.WebhookHandler
	FakePayments    *payments.FakePaymentsHandler
	JWTSecret       string
	RateLimiter     *httpmiddleware.RateLimiter
	MetricsHandler  http.Handler
	CORS            httpmiddleware.CORSOptions
	Readiness       map[string]ReadinessCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORS))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.Readiness))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.PaymentsWebhook != nil {
			public.Post("/webhooks/mercadopago", cfg.PaymentsWebhook.Handle)
		}
		if cfg.FakePayments != nil {
			public.Mount("/demo", cfg.FakePayments.Routes())
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(open chi.Router) {
			if cfg.RateLimiter != nil {
				open.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			if cfg.Bookings != nil {
				open.Get("/barbers/{id}/availability/{date}", cfg.Bookings.GetAvailability)
			}
			if cfg.Catalog != nil {
				open.Get("/barbers/{id}", cfg.Catalog.GetProvider)
				open.Get("/barbers/{id}/schedule", cfg.Catalog.GetSchedule)
				open.Get("/services", cfg.Catalog.ListServices)
				open.Get("/services/{id}", cfg.Catalog.GetService)
			}
		})

		api.Group(func(authed chi.Router) {
			authed.Use(httpmiddleware.ActorJWT(cfg.JWTSecret))
			if cfg.RateLimiter != nil {
				authed.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}

			if cfg.Bookings != nil {
				authed.Route("/bookings", func(b chi.Router) {
					b.Post("/", cfg.Bookings.CreateBooking)
					b.Get("/", cfg.Bookings.ListBookings)
					b.Get("/{id}", cfg.Bookings.GetBooking)
					b.Put("/{id}/status", cfg.Bookings.UpdateStatus)
					b.Delete("/{id}", cfg.Bookings.CancelBooking)
				})
			}

			if cfg.Payments != nil {
				authed.Route("/payments", func(p chi.Router) {
					p.With(httpmiddleware.RequireRole(scheduling.RoleClient)).Post("/", cfg.Payments.Initiate)
					p.Get("/status/{bookingID}", cfg.Payments.Status)
				})
			}

			if cfg.Catalog != nil {
				authed.Get("/barbers", cfg.Catalog.ListProviders)
				authed.Group(func(admin chi.Router) {
					admin.Use(httpmiddleware.RequireRole(scheduling.RoleAdmin))
					admin.Post("/barbers", cfg.Catalog.CreateProvider)
					admin.Put("/barbers/{id}/toggle-status", cfg.Catalog.ToggleProviderStatus)
					admin.Put("/barbers/{id}/schedule", cfg.Catalog.ReplaceSchedule)
					admin.Post("/services", cfg.Catalog.CreateService)
					admin.Put("/services/{id}", cfg.Catalog.UpdateService)
					admin.Delete("/services/{id}", cfg.Catalog.DeactivateService)
				})
			}
		})
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		respond.JSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
	}
}
