package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fintech-id/internal/platform/metrics"
	"fintech-id/internal/platform/middleware"
	"fintech-id/pkg/platform/middleware/metadata"
)

const (
	throttledMessage = "too many requests, try again later"

	defaultClientTTL = 10 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter throttles public paths per client IP. Authenticated traffic
// is not limited here. The IP comes from the request context, as resolved by
// metadata.TrustedProxies, and falls back to the socket peer.
type IPRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	clientTTL time.Duration
	public    *PublicPaths
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// RateLimiterOption configures an IPRateLimiter.
type RateLimiterOption func(*IPRateLimiter)

func WithRateLimiterLogger(logger *slog.Logger) RateLimiterOption {
	return func(l *IPRateLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithRateLimiterMetrics(m *metrics.Metrics) RateLimiterOption {
	return func(l *IPRateLimiter) {
		l.metrics = m
	}
}

// WithClientTTL sets how long an idle client's bucket is kept.
func WithClientTTL(ttl time.Duration) RateLimiterOption {
	return func(l *IPRateLimiter) {
		if ttl > 0 {
			l.clientTTL = ttl
		}
	}
}

func withLimiterClock(now func() time.Time) RateLimiterOption {
	return func(l *IPRateLimiter) {
		l.now = now
	}
}

// NewIPRateLimiter allows rps requests per second with the given burst for
// each client IP hitting a public path.
func NewIPRateLimiter(rps float64, burst int, public *PublicPaths, opts ...RateLimiterOption) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &IPRateLimiter{
		clients:   make(map[string]*limiterEntry),
		rps:       rate.Limit(rps),
		burst:     burst,
		clientTTL: defaultClientTTL,
		public:    public,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow takes one token from ip's bucket.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Cleanup drops buckets idle for longer than the client TTL and returns how
// many were removed.
func (l *IPRateLimiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, entry := range l.clients {
		if now.Sub(entry.lastAccess) > l.clientTTL {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until stop is closed.
func (l *IPRateLimiter) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.logger.Debug("rate limiter buckets expired", "removed", n)
			}
		case <-stop:
			return
		}
	}
}

// Middleware answers 429 once a client exceeds its public-path budget.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.public.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		ip := metadata.ClientIP(r.Context())
		if ip == "" {
			ip = metadata.RemoteIP(r)
		}
		if !l.Allow(ip) {
			l.metrics.IncGatewayDecision(decisionThrottled)
			l.logger.WarnContext(r.Context(), "rate limit exceeded",
				"client_ip", ip,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", "1")
			middleware.WriteErrorMessage(w, http.StatusTooManyRequests, throttledMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}
