package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"troupon/internal/platform/config"
	"troupon/internal/platform/metrics"
	"troupon/internal/platform/middleware"
	"troupon/pkg/platform/httputil"
)

const defaultRequestTimeout = 30 * time.Second

// Routes is implemented by every feature handler.
type Routes interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs from main.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Session        config.SessionConfig
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthCheck
	Handlers       []Routes
}

// NewRouter builds the public HTTP surface. Browser-facing routes run inside
// the session middleware; /healthz and /metrics do not.
func NewRouter(d Deps) http.Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger, d.Metrics))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.RequestTime)
	if d.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(d.Metrics))
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Get("/healthz", healthHandler(d.HealthChecks))

	r.Group(func(r chi.Router) {
		r.Use(middleware.BrowserSession(d.Session, d.Logger))
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})

	return otelhttp.NewHandler(r, "troupon",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
