package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Ranker/internal/broker"
	"github.com/MikeSquared-Agency/Ranker/internal/config"
	"github.com/MikeSquared-Agency/Ranker/internal/hermes"
	"github.com/MikeSquared-Agency/Ranker/internal/store"
)

func NewRouter(s store.Store, h hermes.Client, b *broker.Broker, cfg config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(cfg.RateLimit))

	projects := NewProjectsHandler(s, h, logger)
	calculations := NewCalculationsHandler(s, b)
	explain := NewExplainHandler(s)
	csv := NewCSVHandler(s, h, logger)
	admin := NewAdminHandler(s)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/projects", projects.Create)
		r.Get("/projects", projects.List)

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", projects.Get)
			r.Patch("/", projects.Rename)
			r.Delete("/", projects.Delete)

			r.Post("/criteria", projects.AddCriterion)
			r.Delete("/criteria/{cid}", projects.DeleteCriterion)
			r.Post("/alternatives", projects.AddAlternative)
			r.Delete("/alternatives/{aid}", projects.DeleteAlternative)

			r.Post("/calculate", calculations.Calculate)
			r.Get("/results", calculations.Results)
			r.Get("/explain", explain.Explain)
		})

		r.Post("/compute", calculations.Compute)
		r.Post("/csv/preview", csv.Preview)
		r.Post("/csv/import", csv.Import)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminToken))
			r.Get("/admin/stats", admin.Stats)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
