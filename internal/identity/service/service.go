package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,StoreTx,PasswordHasher,TokenIssuer,AuditPublisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/platform/logger"
	"fintech-id/internal/platform/metrics"
	audit "fintech-id/pkg/platform/audit"
	"fintech-id/pkg/platform/middleware/metadata"
	"fintech-id/pkg/requestcontext"
)

// Store is the credential store. Lookups return models.NotFound rather than
// an error when nothing matches.
type Store interface {
	SavePassport(ctx context.Context, passport *models.PassportData) error
	SaveAddress(ctx context.Context, address *models.Address) error
	SaveClient(ctx context.Context, client *models.Client) error
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
	PassportExists(ctx context.Context, passportNumber string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	FindIdentityByPhone(ctx context.Context, phone string) (models.Lookup, error)
	FindIdentityByPassport(ctx context.Context, passportNumber string) (models.Lookup, error)
}

// StoreTx runs fn inside one atomic unit of work. The Store handed to fn
// participates in it; a returned error rolls everything back.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(password, hash string) (bool, error)
}

type TokenIssuer interface {
	Issue(subjectID uuid.UUID, displayName string, lifetime time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service runs the registration and authorization pipelines.
type Service struct {
	store   Store
	tx      StoreTx
	hasher  PasswordHasher
	tokens  TokenIssuer
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   AuditPublisher
	tracer  trace.Tracer

	accessTTL  time.Duration
	refreshTTL time.Duration

	registration  []registrationStep
	authorization []authorizationStep
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// WithTokenLifetimes sets access and refresh token lifetimes. Non-positive
// values keep the defaults.
func WithTokenLifetimes(access, refresh time.Duration) Option {
	return func(s *Service) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

func New(store Store, tx StoreTx, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tx:         tx,
		hasher:     hasher,
		tokens:     tokens,
		logger:     slog.Default(),
		tracer:     otel.Tracer("fintech-id/identity"),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registration = mustBeOrdered([]registrationStep{
		createPassportData{},
		createRegistrationAddress{},
		createActualAddress{},
		createClient{},
		createUserProfile{hasher: s.hasher},
	})
	s.authorization = mustBeOrdered([]authorizationStep{
		validateParams{},
		resolveIdentity{store: s.store},
		verifyPassword{hasher: s.hasher},
		issueTokens{tokens: s.tokens, accessTTL: s.accessTTL, refreshTTL: s.refreshTTL},
	})
	return s
}

type ordered interface {
	Order() int
}

// mustBeOrdered returns steps unchanged. The literal is the execution order;
// a step whose Order does not strictly increase is a programming error.
func mustBeOrdered[T ordered](steps []T) []T {
	for i := 1; i < len(steps); i++ {
		if steps[i].Order() <= steps[i-1].Order() {
			panic(fmt.Sprintf("identity: pipeline step %d (order %d) follows order %d",
				i, steps[i].Order(), steps[i-1].Order()))
		}
	}
	return steps
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, clientID uuid.UUID, phone, reason string) {
	if s.audit == nil {
		return
	}
	event := audit.NewEvent(action, requestcontext.Now(ctx))
	event.ClientID = clientID
	event.Subject = logger.MaskPhone(phone)
	event.Reason = reason
	event.RequestID = requestcontext.RequestID(ctx)
	event.IP = metadata.ClientIP(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"error", err,
		)
	}
}
