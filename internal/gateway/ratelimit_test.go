package gateway

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintech-id/internal/platform/config"
	"fintech-id/internal/platform/metrics"
	"fintech-id/pkg/platform/middleware/metadata"
	httptestutil "fintech-id/pkg/testutil"
)

func newLimitedHandler(l *IPRateLimiter, proxies ...string) http.Handler {
	trusted, err := metadata.ParseTrustedProxies(proxies)
	if err != nil {
		panic(err)
	}
	return trusted.Middleware(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
}

func requestFrom(t *testing.T, ip, path string) *http.Request {
	t.Helper()
	req := httptestutil.NewRequestWithBody(t, http.MethodPost, path, "{}")
	req.RemoteAddr = ip + ":40000"
	return req
}

func TestRateLimiterThrottlesPublicPathsPerIP(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, 2, NewPublicPaths(config.DefaultPublicPaths()),
		WithRateLimiterMetrics(m),
		withLimiterClock(func() time.Time { return now }),
	)
	handler := newLimitedHandler(limiter)

	for range 2 {
		rr := httptestutil.DoRequest(handler, requestFrom(t, "10.0.0.1", "/public/users/authorization"))
		httptestutil.AssertStatus(t, rr, http.StatusOK)
	}

	rr := httptestutil.DoRequest(handler, requestFrom(t, "10.0.0.1", "/public/users/authorization"))
	httptestutil.AssertStatusAndMessage(t, rr, http.StatusTooManyRequests, throttledMessage)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayDecisions.WithLabelValues(decisionThrottled)))

	rr = httptestutil.DoRequest(handler, requestFrom(t, "10.0.0.2", "/public/users/authorization"))
	httptestutil.AssertStatus(t, rr, http.StatusOK)

	now = now.Add(time.Second)
	rr = httptestutil.DoRequest(handler, requestFrom(t, "10.0.0.1", "/public/users/authorization"))
	httptestutil.AssertStatus(t, rr, http.StatusOK)
}

func TestRateLimiterSkipsProtectedPaths(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, NewPublicPaths(config.DefaultPublicPaths()))
	handler := newLimitedHandler(limiter)

	for range 5 {
		rr := httptestutil.DoRequest(handler, requestFrom(t, "10.0.0.1", "/auth/users/otp/creation"))
		httptestutil.AssertStatus(t, rr, http.StatusOK)
	}
}

func TestRateLimiterIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, 2, NewPublicPaths(config.DefaultPublicPaths()),
		withLimiterClock(func() time.Time { return now }),
	)
	handler := newLimitedHandler(limiter)

	allowed := 0
	for i := range 50 {
		req := requestFrom(t, "10.0.0.1", "/public/users/authorization")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		if httptestutil.DoRequest(handler, req).Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "rotating forwarding headers must not open new buckets")
}

func TestRateLimiterUsesForwardedForFromTrustedProxy(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, NewPublicPaths(config.DefaultPublicPaths()))
	handler := newLimitedHandler(limiter, "10.0.0.0/8")

	first := requestFrom(t, "10.0.0.1", "/public/users/registration")
	first.Header.Set("X-Forwarded-For", "203.0.113.7")
	httptestutil.AssertStatus(t, httptestutil.DoRequest(handler, first), http.StatusOK)

	second := requestFrom(t, "10.0.0.1", "/public/users/registration")
	second.Header.Set("X-Forwarded-For", "203.0.113.8")
	httptestutil.AssertStatus(t, httptestutil.DoRequest(handler, second), http.StatusOK)

	again := requestFrom(t, "10.0.0.1", "/public/users/registration")
	again.Header.Set("X-Forwarded-For", "203.0.113.7")
	httptestutil.AssertStatus(t, httptestutil.DoRequest(handler, again), http.StatusTooManyRequests)
}

func TestRateLimiterFallsBackToSocketPeer(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, NewPublicPaths(config.DefaultPublicPaths()))
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := requestFrom(t, "10.0.0.1", "/public/users/registration")
	first.Header.Set("X-Forwarded-For", "203.0.113.7")
	httptestutil.AssertStatus(t, httptestutil.DoRequest(handler, first), http.StatusOK)

	second := requestFrom(t, "10.0.0.1", "/public/users/registration")
	second.Header.Set("X-Forwarded-For", "203.0.113.8")
	httptestutil.AssertStatus(t, httptestutil.DoRequest(handler, second), http.StatusTooManyRequests)
}

func TestRateLimiterCleanupDropsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, 1, NewPublicPaths(config.DefaultPublicPaths()),
		WithClientTTL(time.Minute),
		withLimiterClock(func() time.Time { return now }),
	)

	require.True(t, limiter.Allow("10.0.0.1"))
	now = now.Add(30 * time.Second)
	require.True(t, limiter.Allow("10.0.0.2"))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, limiter.Cleanup())
	assert.Equal(t, 0, limiter.Cleanup())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, limiter.Cleanup())
}
