package gateway

import (
	"log/slog"
	"net/http"

	"fintech-id/internal/platform/metrics"
	"fintech-id/pkg/platform/middleware/auth"
	"fintech-id/pkg/requestcontext"
)

// UserIDHeader carries the authenticated client id to upstreams. Upstreams
// treat it as informational and validate the token themselves.
const UserIDHeader = "X-User-Id"

// Gateway decision labels.
const (
	decisionPublic       = "public"
	decisionAuthorized   = "authorized"
	decisionMissingToken = "missing_token"
	decisionInvalidToken = "invalid_token"
	decisionThrottled    = "throttled"
)

// EdgeFilter authenticates every non-public request before it reaches the
// route table.
type EdgeFilter struct {
	public     *PublicPaths
	validator  auth.TokenValidator
	cookieName string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewEdgeFilter builds the filter. A nil logger falls back to slog.Default.
func NewEdgeFilter(public *PublicPaths, validator auth.TokenValidator, cookieName string, logger *slog.Logger, m *metrics.Metrics) *EdgeFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EdgeFilter{
		public:     public,
		validator:  validator,
		cookieName: cookieName,
		logger:     logger,
		metrics:    m,
	}
}

// Middleware forwards public paths unchanged apart from dropping a spoofed
// X-User-Id. Protected paths need a valid
// token from the Authorization header or the access cookie; the resolved
// client id replaces any X-User-Id the caller sent. The incoming request is
// never modified: a clone goes downstream.
func (f *EdgeFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if f.public.IsPublic(r.URL.Path) {
			f.metrics.IncGatewayDecision(decisionPublic)
			if r.Header.Get(UserIDHeader) != "" {
				r = r.Clone(ctx)
				r.Header.Del(UserIDHeader)
			}
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.ExtractToken(r, f.cookieName)
		if !ok {
			f.metrics.IncGatewayDecision(decisionMissingToken)
			f.logger.WarnContext(ctx, "gateway rejected request - missing token",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			auth.WriteUnauthorized(w)
			return
		}

		claims, err := f.validator.ValidateToken(token)
		if err != nil {
			f.metrics.IncGatewayDecision(decisionInvalidToken)
			f.logger.WarnContext(ctx, "gateway rejected request - invalid token",
				"path", r.URL.Path,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			auth.WriteUnauthorized(w)
			return
		}

		f.metrics.IncGatewayDecision(decisionAuthorized)
		ctx = requestcontext.WithClientID(ctx, claims.ClientID)
		ctx = requestcontext.WithDisplayName(ctx, claims.DisplayName)
		out := r.Clone(ctx)
		out.Header.Del(UserIDHeader)
		out.Header.Set(UserIDHeader, claims.ClientID.String())
		next.ServeHTTP(w, out)
	})
}
