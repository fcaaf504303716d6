package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/threeway/internal/audit/http"
	"github.com/odyssey-erp/threeway/internal/observability"
	"github.com/odyssey-erp/threeway/internal/platform/httpx"
	"github.com/odyssey-erp/threeway/internal/procurement"
	threewayhttp "github.com/odyssey-erp/threeway/internal/threeway/http"
	"github.com/odyssey-erp/threeway/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	ProcurementHandler *procurement.Handler
	ThreeWayHandler    *threewayhttp.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/purchase-orders", func(r chi.Router) {
		if params.ThreeWayHandler != nil {
			params.ThreeWayHandler.MountPurchaseOrderRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
	})
	r.Route("/three-way-match", func(r chi.Router) {
		if params.ThreeWayHandler != nil {
			params.ThreeWayHandler.MountRoutes(r)
		}
		params.AuditHandler.MountRoutes(r)
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
