package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CherreraTEG/OneSite/internal/platform/health"
	"github.com/CherreraTEG/OneSite/internal/platform/middleware"
	"github.com/CherreraTEG/OneSite/pkg/platform/httputil"
	"github.com/CherreraTEG/OneSite/pkg/platform/middleware/metadata"
	"github.com/CherreraTEG/OneSite/pkg/platform/middleware/requesttime"
)

// APIPrefix is where every Registrar is mounted.
const APIPrefix = "/api/v1"

// Registrar is implemented by each domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// Deps are the process-level pieces the router serves directly.
type Deps struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Health   *health.Registry
}

// NewRouter wires the shared middleware chain, the operational endpoints and
// the API handlers.
func NewRouter(deps Deps, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", health.Liveness)
	if deps.Health != nil {
		r.Get("/readyz", deps.Health.Handler())
	}
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(APIPrefix, func(r chi.Router) {
		for _, h := range handlers {
			h.Register(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteErrorCode(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})
	return r
}
