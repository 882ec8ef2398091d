package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sessionbill/sessionbill-backend/api/controllers"
	"github.com/sessionbill/sessionbill-backend/api/middleware"
	"github.com/sessionbill/sessionbill-backend/internal/clients"
	"github.com/sessionbill/sessionbill-backend/internal/invoices"
	"github.com/sessionbill/sessionbill-backend/internal/profile"
	"github.com/sessionbill/sessionbill-backend/internal/sessions"
	"github.com/sessionbill/sessionbill-backend/internal/templates"
	"github.com/sessionbill/sessionbill-backend/pkg/config"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
	pkgredis "github.com/sessionbill/sessionbill-backend/pkg/redis"
)

// Services bundles the domain services the router exposes.
type Services struct {
	Clients   clients.Service
	Sessions  sessions.Service
	Templates templates.Service
	Invoices  invoices.Service
	Profile   profile.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database controllers.Pinger,
	cache controllers.Pinger,
	idempotencyStore pkgredis.IdempotencyStore,
	rateLimiter *pkgredis.Client,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, database, cache))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if rateLimiter != nil {
			policy := middleware.NewRateLimitPolicy("api", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimit)
			r.Use(middleware.RateLimit(policy, rateLimiter, logg))
		}
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Invoicing.IdempotencyTTL, logg))

		r.Route("/clients", func(r chi.Router) {
			r.Post("/", controllers.ClientCreate(svcs.Clients, logg))
			r.Get("/", controllers.ClientList(svcs.Clients, logg))
			r.Route("/{clientID}", func(r chi.Router) {
				r.Get("/", controllers.ClientGet(svcs.Clients, logg))
				r.Patch("/", controllers.ClientUpdate(svcs.Clients, logg))
				r.Delete("/", controllers.ClientDelete(svcs.Clients, logg))
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", controllers.SessionCreate(svcs.Sessions, logg))
			r.Get("/", controllers.SessionList(svcs.Sessions, logg))
			r.Get("/week", controllers.SessionWeek(svcs.Sessions, logg))
			r.Post("/template", controllers.SessionTemplateApply(svcs.Templates, logg))
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", controllers.SessionGet(svcs.Sessions, logg))
				r.Patch("/", controllers.SessionUpdate(svcs.Sessions, logg))
				r.Delete("/", controllers.SessionDelete(svcs.Sessions, logg))
				r.Post("/complete", controllers.SessionComplete(svcs.Sessions, logg))
				r.Post("/cancel", controllers.SessionCancel(svcs.Sessions, logg))
			})
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", controllers.InvoiceGenerate(svcs.Invoices, logg))
			r.Get("/", controllers.InvoiceList(svcs.Invoices, logg))
			r.Route("/{invoiceID}", func(r chi.Router) {
				r.Get("/", controllers.InvoiceGet(svcs.Invoices, logg))
				r.Patch("/status", controllers.InvoiceUpdateStatus(svcs.Invoices, logg))
			})
		})

		r.Get("/dashboard", controllers.Dashboard(svcs.Invoices, logg))

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", controllers.ProfileGet(svcs.Profile, logg))
			r.Put("/", controllers.ProfileUpdate(svcs.Profile, logg))
		})
	})

	return r
}
