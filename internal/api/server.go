// Package api exposes enrichment, scoring and ICP operations over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/leadscore/internal/enrichment"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/monitoring"
	"github.com/sells-group/leadscore/internal/scoring"
	"github.com/sells-group/leadscore/internal/store"
)

// TenantHeader names the request header carrying the tenant id.
const TenantHeader = "X-Tenant-ID"

// Options configures the router.
type Options struct {
	// APIToken enables bearer auth on every route except /health and
	// /metrics when set.
	APIToken      string
	CORSOrigins   []string
	DefaultTenant string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	svc       *enrichment.Service
	store     store.Store
	configs   *scoring.ConfigStore
	collector *monitoring.Collector
	opts      Options
}

// New creates a Server.
func New(svc *enrichment.Service, st store.Store, configs *scoring.ConfigStore, collector *monitoring.Collector, opts Options) *Server {
	if opts.DefaultTenant == "" {
		opts.DefaultTenant = model.DefaultTenant
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{svc: svc, store: st, configs: configs, collector: collector, opts: opts}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", TenantHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.opts.APIToken))
		r.Use(tenant(s.opts.DefaultTenant))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/contacts/enrich/batch", s.handleEnrichBatch)
		r.Put("/contacts/{id}", s.handleUpsertContact)
		r.Get("/contacts/{id}", s.handleGetContact)
		r.Post("/contacts/{id}/enrich", s.handleEnrich)
		r.Get("/contacts/{id}/enrich/status", s.handleEnrichStatus)
		r.Get("/enrich/stats", s.handleStats)

		r.Get("/settings/scoring-weights", s.handleGetWeights)
		r.Put("/settings/scoring-weights", s.handlePutWeights)

		r.Get("/icps/{id}", s.handleGetICP)
		r.Put("/icps/{id}", s.handlePutICP)
		r.Post("/icps/{id}/match", s.handleMatchICP)
	})

	return r
}
