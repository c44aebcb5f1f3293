package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/api/handlers"
	mw "github.com/vitrinehq/vitrine/internal/api/middleware"
	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/service"
	"github.com/vitrinehq/vitrine/internal/store"
)

// App wires stores, services, and handlers into the HTTP router.
type App struct {
	Router *chi.Mux
}

// Clients groups the external-system clients the services need. They are
// constructed in main so tests can substitute fakes.
type Clients struct {
	Cluster   domain.ClusterClient
	Releases  domain.ReleaseClient
	Databases domain.DatabaseProvisioner
	Setup     domain.SetupRunner
}

func NewApp(db *pgxpool.Pool, cfg *config.Config, clients Clients, logger *zap.Logger) *App {
	// Stores
	tenantStore := store.NewTenantStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)
	logStore := store.NewProvisioningLogStore(db)

	// Services
	provisioningSvc := service.NewProvisioningService(
		tenantStore, subscriptionStore, logStore,
		clients.Cluster, clients.Releases, clients.Databases, clients.Setup,
		cfg, logger,
	)
	billingSvc := service.NewBillingService(provisioningSvc, tenantStore, subscriptionStore, cfg, logger)

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantStore, provisioningSvc, clients.Cluster)
	webhookHandler := handlers.NewWebhookHandler(billingSvc, cfg.WebhookSecret, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Billing webhook (shared-secret checked in handler; signature
	// verification happens at the gateway)
	r.Post("/webhooks/billing", webhookHandler.Handle)

	// Operator API
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.AdminAuth(cfg.AdminToken))

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", tenantHandler.List)
			r.Post("/provision", tenantHandler.Provision)
			r.Get("/namespace/{namespace}", tenantHandler.GetByNamespace)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tenantHandler.GetByID)
				r.Delete("/", tenantHandler.Delete)
				r.Get("/status", tenantHandler.Status)
				r.Post("/suspend", tenantHandler.Suspend)
				r.Post("/resume", tenantHandler.Resume)
			})
		})
	})

	return &App{Router: r}
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
