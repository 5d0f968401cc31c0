// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them without importing net/http.
//
//	clientID := requestcontext.ClientID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	clientIDKey    struct{}
	displayNameKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// -----------------------------------------------------------------------------
// Auth context
// -----------------------------------------------------------------------------

// ClientID returns the authenticated client id, or uuid.Nil when unset.
func ClientID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(clientIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithClientID injects the authenticated client id.
func WithClientID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// DisplayName returns the authenticated user's display name.
func DisplayName(ctx context.Context) string {
	if name, ok := ctx.Value(displayNameKey{}).(string); ok {
		return name
	}
	return ""
}

// WithDisplayName injects the authenticated user's display name.
func WithDisplayName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, displayNameKey{}, name)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID returns the correlation id assigned by middleware.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now returns the request-scoped time, falling back to the wall clock.
// All operations within one request share the same "now".
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
