package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/observability"
	"github.com/garagedesk/garagedesk/internal/platform/httpx"
	"github.com/garagedesk/garagedesk/internal/records"
	"github.com/garagedesk/garagedesk/jobs"
	"github.com/garagedesk/garagedesk/web"
)

// HealthCheck probes one runtime dependency.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	BillingHandler *billing.Handler
	RecordsHandler *records.Handler
	BookingHandler *records.BookingHandler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	HealthChecks   map[string]HealthCheck
}

// NewRouter constructs the chi.Router with GarageDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config != nil && !params.Config.IsProduction() && !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", healthHandler(params.HealthChecks))

	r.Route("/api", func(r chi.Router) {
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.RecordsHandler != nil {
			params.RecordsHandler.MountRoutes(r)
		}
		if params.BookingHandler != nil {
			r.Route("/public", params.BookingHandler.MountAPI)
		}
	})

	if params.BookingHandler != nil {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/book", http.StatusSeeOther)
		})
		params.BookingHandler.MountPages(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports ok only when every dependency answers within two seconds.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		report := healthReport{Status: "ok"}
		if len(names) > 0 {
			report.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				report.Status = "degraded"
				report.Checks[name] = err.Error()
				continue
			}
			report.Checks[name] = "ok"
		}
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, report)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
