package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RippnerLabs/stervault/gateway/middleware"
	"github.com/RippnerLabs/stervault/native/common"
	"github.com/RippnerLabs/stervault/native/lending"
)

// Config assembles the collaborators the gateway router mounts.
type Config struct {
	Engine        *lending.Engine
	Banks         BankLister
	Fees          FeeReader
	BorrowQuota   common.Quota
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	AdminScopes   []string
}

// New builds the gateway HTTP handler: public lending routes under
// /v1/lending, authenticated administration under /v1/admin, plus health and
// metrics endpoints.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	lendingBridge := newLendingRoutes(cfg.Engine, cfg.Banks, cfg.BorrowQuota)
	r.Route("/v1/lending", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("lending"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("lending"))
		}
		lendingBridge.mount(sr)
	})

	adminBridge := newAdminRoutes(cfg.Engine, cfg.Fees, lendingBridge)
	r.Route("/v1/admin", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("admin"))
		}
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware(cfg.AdminScopes...))
		}
		if obs != nil {
			sr.Use(obs.Middleware("admin"))
		}
		adminBridge.mount(sr)
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r
}
