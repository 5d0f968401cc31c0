package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"fintech-id/pkg/requestcontext"
)

// UnauthorizedMessage is the body returned for every rejected request.
const UnauthorizedMessage = "authorization required, access denied"

// TokenValidator validates a raw token and returns the caller's claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims is the subset of token claims the middleware needs.
type Claims struct {
	ClientID    uuid.UUID
	DisplayName string
}

// ExtractToken reads the token from "Authorization: Bearer" first and falls
// back to the named cookie.
func ExtractToken(r *http.Request, cookieName string) (string, bool) {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if token := strings.TrimSpace(after); token != "" {
			return token, true
		}
	}
	if cookieName == "" {
		return "", false
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// WriteUnauthorized writes the 401 body shared by the gateway and backend.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"errorMessage": UnauthorizedMessage})
}

// RequireAuth rejects requests without a valid token and stores the client id
// and display name in the request context.
func RequireAuth(validator TokenValidator, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := ExtractToken(r, cookieName)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				WriteUnauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				WriteUnauthorized(w)
				return
			}

			ctx = requestcontext.WithClientID(ctx, claims.ClientID)
			ctx = requestcontext.WithDisplayName(ctx, claims.DisplayName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
