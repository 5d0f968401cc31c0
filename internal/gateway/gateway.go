// Package gateway is the edge process: it authenticates requests, throttles
// anonymous traffic and proxies to backend services.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintech-id/internal/platform/config"
	"fintech-id/internal/platform/metrics"
	"fintech-id/internal/platform/middleware"
	"fintech-id/pkg/platform/middleware/auth"
	"fintech-id/pkg/platform/middleware/metadata"
)

// Config wires the gateway handler.
type Config struct {
	Routes     config.GatewayRoutes
	Validator  auth.TokenValidator
	CookieName string

	// TrustedProxies lists peers (CIDR or address) whose X-Forwarded-For is
	// believed. Empty means the socket peer is always the client.
	TrustedProxies []string

	PublicRPS        float64
	PublicBurst      int
	BreakerThreshold int
	BreakerTimeout   time.Duration
	RequestTimeout   time.Duration

	Transport http.RoundTripper
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Info      map[string]string
}

// Gateway is the assembled edge handler.
type Gateway struct {
	handler http.Handler
	proxy   *Proxy
	limiter *IPRateLimiter
}

// New builds the filter chain: edge filter, public-path throttle, then the
// route table. The gateway's own probes and /metrics bypass the chain.
func New(cfg Config) (*Gateway, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	proxyOpts := []ProxyOption{
		WithProxyLogger(logger),
		WithProxyMetrics(cfg.Metrics),
		WithBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout),
	}
	if cfg.Transport != nil {
		proxyOpts = append(proxyOpts, WithTransport(cfg.Transport))
	}
	proxy, err := NewProxy(cfg.Routes, proxyOpts...)
	if err != nil {
		return nil, err
	}
	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	public := NewPublicPaths(cfg.Routes.Public)
	filter := NewEdgeFilter(public, cfg.Validator, cfg.CookieName, logger, cfg.Metrics)
	limiter := NewIPRateLimiter(cfg.PublicRPS, cfg.PublicBurst, public,
		WithRateLimiterLogger(logger),
		WithRateLimiterMetrics(cfg.Metrics),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(trusted.Middleware)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger, cfg.Metrics))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/actuator/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "UP",
			"upstreams": proxy.BreakerStates(),
		})
	})
	r.Get("/actuator/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, cfg.Info)
	})
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Group(func(g chi.Router) {
		g.Use(RejectDotSegments)
		g.Use(filter.Middleware)
		g.Use(limiter.Middleware)
		g.Handle("/*", proxy)
	})

	return &Gateway{handler: r, proxy: proxy, limiter: limiter}, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

// Limiter exposes the public-path throttle so main can run its cleanup loop.
func (g *Gateway) Limiter() *IPRateLimiter {
	return g.limiter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
