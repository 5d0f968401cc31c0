// Package jwttoken issues and validates the HS256 access and refresh tokens
// carried by clients of the identity service and checked at the gateway.
package jwttoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "fintech-id/pkg/domain-errors"
)

// MinKeyBytes is the smallest HMAC key accepted from configuration.
const MinKeyBytes = 32

// Claims is the token payload. ClientID duplicates Subject so consumers that
// only know the "clientId" claim can still resolve the caller.
type Claims struct {
	ClientID     string `json:"clientId"`
	UserFullName string `json:"userFullName"`
	jwt.RegisteredClaims
}

// TokenClaims is the decoded view returned by Claims.
type TokenClaims struct {
	SubjectID   uuid.UUID
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// ErrWeakKey is returned when strong keys are required and the configured one is not.
var ErrWeakKey = errors.New("jwt secret must be base64 encoding of at least 32 bytes")

// TokenService signs and verifies tokens. It holds no mutable state after
// construction and is safe for concurrent use.
type TokenService struct {
	signingKey        []byte
	now               func() time.Time
	logger            *slog.Logger
	requireStrongKey  bool
	ephemeralKeyInUse bool
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithLogger sets the logger used to report key degradation.
func WithLogger(logger *slog.Logger) Option {
	return func(s *TokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for iat, exp and validation.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRequireStrongKey makes construction fail on a short key instead of
// falling back to an ephemeral one. Verifiers that share a key with a separate
// issuer need this: a random key would reject every token.
func WithRequireStrongKey() Option {
	return func(s *TokenService) {
		s.requireStrongKey = true
	}
}

// NewTokenService builds a service from a base64 secret. An empty secret is an
// error. Key material shorter than MinKeyBytes is replaced by a random key for
// the life of the process unless WithRequireStrongKey is given.
func NewTokenService(secret string, opts ...Option) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &TokenService{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(key) < MinKeyBytes {
		if s.requireStrongKey {
			return nil, ErrWeakKey
		}
		key = make([]byte, MinKeyBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		s.ephemeralKeyInUse = true
		s.logger.Warn("configured jwt secret is too weak, using an ephemeral signing key",
			"min_bytes", MinKeyBytes,
		)
	}
	s.signingKey = key
	return s, nil
}

// EphemeralKey reports whether the service fell back to a generated key.
func (s *TokenService) EphemeralKey() bool {
	return s.ephemeralKeyInUse
}

// Issue signs a token for subjectID valid for lifetime.
func (s *TokenService) Issue(subjectID uuid.UUID, displayName string, lifetime time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClientID:     subjectID.String(),
		UserFullName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTokenGeneration, "could not generate jwt token")
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the subject. Every
// failure yields the same unauthorized error.
func (s *TokenService) Validate(tokenString string) (uuid.UUID, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return uuid.Nil, accessDenied(err)
	}
	id, err := subjectOf(claims)
	if err != nil {
		return uuid.Nil, accessDenied(err)
	}
	return id, nil
}

// Claims verifies the token and returns its decoded claims.
func (s *TokenService) Claims(tokenString string) (*TokenClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, accessDenied(err)
	}
	id, err := subjectOf(claims)
	if err != nil {
		return nil, accessDenied(err)
	}
	out := &TokenClaims{SubjectID: id, DisplayName: claims.UserFullName}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// IsExpired reports whether a correctly signed token is past its expiry.
func (s *TokenService) IsExpired(tokenString string) (bool, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return false, accessDenied(err)
	}
	if claims.ExpiresAt == nil {
		return true, nil
	}
	return !s.now().Before(claims.ExpiresAt.Time), nil
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	// jwt treats exp == now as still valid; tokens expire at exp.
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return claims, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrTokenUnverifiable
	}
	return s.signingKey, nil
}

// subjectOf prefers the clientId claim and falls back to sub.
func subjectOf(claims *Claims) (uuid.UUID, error) {
	raw := claims.ClientID
	if raw == "" {
		raw = claims.Subject
	}
	return uuid.Parse(raw)
}

func accessDenied(err error) error {
	return dErrors.Wrap(err, dErrors.CodeUnauthorized, "access denied")
}
