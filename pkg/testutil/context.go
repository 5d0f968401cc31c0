package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"fintech-id/pkg/requestcontext"
)

// WithClientID simulates the auth middleware for an authenticated request.
func WithClientID(req *http.Request, clientID uuid.UUID) *http.Request {
	return req.WithContext(requestcontext.WithClientID(req.Context(), clientID))
}

// WithAuth sets both the client id and display name on the request context.
func WithAuth(req *http.Request, clientID uuid.UUID, displayName string) *http.Request {
	ctx := requestcontext.WithClientID(req.Context(), clientID)
	ctx = requestcontext.WithDisplayName(ctx, displayName)
	return req.WithContext(ctx)
}
