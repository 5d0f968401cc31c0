package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintech-id/internal/platform/metrics"
	"fintech-id/internal/platform/middleware"
	"fintech-id/internal/transport/http/shared"
	"fintech-id/pkg/platform/middleware/auth"
	"fintech-id/pkg/platform/middleware/metadata"
	"fintech-id/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.TokenValidator
	CookieName     string
	RequestTimeout time.Duration

	// Public routes are open; Protected routes require a valid token.
	Public    []Registrar
	Protected []Registrar

	Health map[string]HealthCheck
	Info   map[string]string
}

// NewRouter builds the user-service HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger, cfg.Metrics))
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteErrorMessage(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Group(func(r chi.Router) {
		for _, reg := range cfg.Public {
			reg.Register(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.CookieName, logger))
		for _, reg := range cfg.Protected {
			reg.Register(r)
		}
	})

	r.Get("/actuator/health", healthHandler(cfg.Health, logger))
	r.Get("/actuator/info", infoHandler(cfg.Info))
	r.Handle("/metrics", cfg.Metrics.Handler())
	return r
}

type componentStatus struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// healthHandler is reachable through the gateway, so check errors are logged
// and never written to the body.
func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "UP", Components: make(map[string]componentStatus, len(checks))}
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "health check failed",
					"component", name,
					"error", err,
				)
				resp.Status = "DOWN"
				resp.Components[name] = componentStatus{Status: "DOWN"}
				continue
			}
			resp.Components[name] = componentStatus{Status: "UP"}
		}
		status := http.StatusOK
		if resp.Status != "UP" {
			status = http.StatusServiceUnavailable
		}
		shared.WriteJSON(w, status, resp)
	}
}

func infoHandler(info map[string]string) http.HandlerFunc {
	if info == nil {
		info = map[string]string{}
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, info)
	}
}
