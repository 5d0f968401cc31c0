package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fintech-id/internal/platform/config"
	"fintech-id/internal/platform/metrics"
	"fintech-id/internal/platform/middleware"
	"fintech-id/pkg/platform/middleware/metadata"
	"fintech-id/pkg/requestcontext"
)

var tracer = otel.Tracer("fintech-id/gateway")

const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second

	unavailableMessage = "service unavailable"
	badGatewayMessage  = "upstream request failed"
	notFoundMessage    = "resource not found"
)

var errUpstreamStatus = errors.New("upstream returned server error")

type upstream struct {
	name    string
	proxy   *httputil.ReverseProxy
	breaker *gobreaker.CircuitBreaker
}

type route struct {
	prefix   string
	rewrite  string
	upstream *upstream
}

// Proxy forwards requests to the upstream of the longest matching route
// prefix. Each upstream sits behind its own circuit breaker.
type Proxy struct {
	routes    []route
	upstreams map[string]*upstream
	logger    *slog.Logger
	metrics   *metrics.Metrics
	transport http.RoundTripper
	threshold uint32
	timeout   time.Duration
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithProxyMetrics(m *metrics.Metrics) ProxyOption {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// WithBreaker opens an upstream's breaker after threshold consecutive
// failures and keeps it open for timeout before probing again.
func WithBreaker(threshold int, timeout time.Duration) ProxyOption {
	return func(p *Proxy) {
		if threshold > 0 {
			p.threshold = uint32(min(threshold, 1<<16)) //nolint:gosec // bounded above
		}
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithTransport replaces http.DefaultTransport for upstream calls.
func WithTransport(rt http.RoundTripper) ProxyOption {
	return func(p *Proxy) {
		p.transport = rt
	}
}

// NewProxy builds the route table. Routes sharing an upstream URL share one
// breaker.
func NewProxy(table config.GatewayRoutes, opts ...ProxyOption) (*Proxy, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	p := &Proxy{
		upstreams: make(map[string]*upstream),
		logger:    slog.Default(),
		transport: http.DefaultTransport,
		threshold: defaultBreakerThreshold,
		timeout:   defaultBreakerTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, spec := range table.Routes {
		up, ok := p.upstreams[spec.Upstream]
		if !ok {
			target, err := url.Parse(spec.Upstream)
			if err != nil || target.Scheme == "" || target.Host == "" {
				return nil, fmt.Errorf("gateway route %s: invalid upstream %q", spec.Prefix, spec.Upstream)
			}
			up = p.newUpstream(target)
			p.upstreams[spec.Upstream] = up
		}
		p.routes = append(p.routes, route{prefix: spec.Prefix, rewrite: spec.Rewrite, upstream: up})
	}

	sort.SliceStable(p.routes, func(i, j int) bool {
		return len(p.routes[i].prefix) > len(p.routes[j].prefix)
	})
	return p, nil
}

func (p *Proxy) newUpstream(target *url.URL) *upstream {
	up := &upstream{name: target.Host}
	up.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = target.Host
			pr.SetXForwarded()
			if ip := metadata.ClientIP(pr.In.Context()); ip != "" {
				pr.Out.Header.Set("X-Forwarded-For", ip)
			}
			if id := requestcontext.RequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
		},
		Transport: p.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.WarnContext(r.Context(), "upstream request failed",
				"upstream", up.name,
				"path", r.URL.Path,
				"error", err,
			)
			middleware.WriteErrorMessage(w, http.StatusBadGateway, badGatewayMessage)
		},
	}

	threshold := p.threshold
	up.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        up.name,
		MaxRequests: 1,
		Timeout:     p.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("upstream breaker state change",
				"upstream", name,
				"from", from.String(),
				"to", to.String(),
			)
			p.metrics.SetBreakerState(name, int(to))

			_, span := tracer.Start(context.Background(), "gateway.breaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("breaker.name", name),
				attribute.String("breaker.from", from.String()),
				attribute.String("breaker.to", to.String()),
			))
			span.End()
		},
	})
	p.metrics.SetBreakerState(up.name, int(gobreaker.StateClosed))
	return up
}

// BreakerStates reports each upstream's breaker state by name.
func (p *Proxy) BreakerStates() map[string]string {
	out := make(map[string]string, len(p.upstreams))
	for _, up := range p.upstreams {
		out[up.name] = up.breaker.State().String()
	}
	return out
}

func (p *Proxy) match(path string) (route, bool) {
	for _, rt := range p.routes {
		if strings.HasPrefix(path, rt.prefix) {
			return rt, true
		}
	}
	return route{}, false
}

// ServeHTTP rewrites the path for the matched route and forwards through the
// upstream's breaker. 5xx responses and transport errors count as failures.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := p.match(r.URL.Path)
	if !ok {
		middleware.WriteErrorMessage(w, http.StatusNotFound, notFoundMessage)
		return
	}

	out := r
	if rt.rewrite != "" {
		out = r.Clone(r.Context())
		out.URL.Path = rewritePath(r.URL.Path, rt.prefix, rt.rewrite)
		out.URL.RawPath = ""
	}

	sw := &captureWriter{ResponseWriter: w}
	_, err := rt.upstream.breaker.Execute(func() (any, error) {
		rt.upstream.proxy.ServeHTTP(sw, out)
		if sw.status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %d", errUpstreamStatus, sw.status)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.WarnContext(r.Context(), "upstream breaker rejected request",
			"upstream", rt.upstream.name,
			"path", r.URL.Path,
			"state", rt.upstream.breaker.State().String(),
		)
		if !sw.wroteHeader {
			middleware.WriteErrorMessage(w, http.StatusServiceUnavailable, unavailableMessage)
		}
	}
}

// rewritePath replaces prefix with rewrite, keeping exactly one slash at the
// join.
func rewritePath(path, prefix, rewrite string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return rewrite
	}
	return strings.TrimSuffix(rewrite, "/") + "/" + rest
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *captureWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
