package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Identities,Notifier,AuditPublisher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identitymodels "fintech-id/internal/identity/models"
	"fintech-id/internal/otp/models"
	"fintech-id/internal/platform/logger"
	"fintech-id/internal/platform/metrics"
	dErrors "fintech-id/pkg/domain-errors"
	audit "fintech-id/pkg/platform/audit"
	"fintech-id/pkg/platform/middleware/metadata"
	"fintech-id/pkg/platform/sentinel"
	"fintech-id/pkg/requestcontext"
)

const (
	msgPhoneNotFound = "mobile phone %s not found"
	msgIncorrectCode = "incorrect OTP code entered"
	msgTooMany       = "too many OTP code attempts"
	msgNoRecord      = "no record in the system, OTP code not found"

	DefaultTTL         = 120 * time.Second
	DefaultMaxAttempts = 3
	DefaultCodeLength  = 6

	withdrawTimeout = 2 * time.Second
)

// Store keeps one record per phone. Put overwrites any previous record and
// starts a fresh lifetime. Update applies fn atomically and returns
// sentinel.ErrNotFound when no live record exists. Delete of a missing record
// is not an error.
type Store interface {
	Put(ctx context.Context, phone string, record models.Record, ttl time.Duration) error
	Update(ctx context.Context, phone string, fn func(models.Record) (models.Record, models.Transition)) error
	Delete(ctx context.Context, phone string) error
}

// Identities answers whether a phone belongs to a registered client.
type Identities interface {
	PhoneExists(ctx context.Context, phone string) (bool, error)
}

// Notifier delivers a code out of band.
type Notifier interface {
	Notify(ctx context.Context, delivery models.Delivery) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service issues and verifies one-time codes.
type Service struct {
	store      Store
	identities Identities
	notifier   Notifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      AuditPublisher
	tracer     trace.Tracer
	random     io.Reader

	ttl         time.Duration
	maxAttempts int
	codeLength  int
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

// WithPolicy sets the code lifetime, attempt ceiling and code length.
// Non-positive values keep the defaults.
func WithPolicy(ttl time.Duration, maxAttempts, codeLength int) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if codeLength > 0 {
			s.codeLength = codeLength
		}
	}
}

// WithRandom replaces the code source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		s.random = r
	}
}

func New(store Store, identities Identities, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:       store,
		identities:  identities,
		notifier:    notifier,
		logger:      slog.Default(),
		tracer:      otel.Tracer("fintech-id/otp"),
		random:      rand.Reader,
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		codeLength:  DefaultCodeLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a code for a registered phone, stores it with attempts=0
// and hands it to the notifier. A previous code for the phone is replaced.
// When delivery fails the stored code is withdrawn, so the phone is left
// with no live code.
func (s *Service) Issue(ctx context.Context, req identitymodels.PhoneRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "otp.Issue")
	var err error
	defer func() { endSpan(span, err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return "", err
	}
	phone := req.MobilePhone

	exists, err := s.identities.PhoneExists(ctx, phone)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to check mobile phone")
		return "", err
	}
	if !exists {
		err = dErrors.New(dErrors.CodeNotFound, fmt.Sprintf(msgPhoneNotFound, phone))
		return "", err
	}

	code, err := s.generateCode()
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate otp code")
		return "", err
	}
	if err = s.store.Put(ctx, phone, models.Record{Code: code}, s.ttl); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to store otp code")
		return "", err
	}
	if err = s.notifier.Notify(ctx, models.NewDelivery(phone, code, s.ttl)); err != nil {
		s.withdraw(ctx, phone)
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver otp code")
		return "", err
	}

	s.metrics.IncOTPIssued()
	s.emit(ctx, audit.EventOTPIssued, phone, "")
	s.logger.InfoContext(ctx, "otp issued",
		"mobile_phone", logger.MaskPhone(phone),
		"ttl_seconds", int64(s.ttl/time.Second),
		"request_id", requestcontext.RequestID(ctx),
	)
	return phone, nil
}

// Verify checks code against the stored record. A match consumes the record;
// a mismatch burns one attempt and keeps the remaining lifetime.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "otp.Verify")
	var err error
	defer func() { endSpan(span, err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return "", err
	}
	phone := req.MobilePhone

	var outcome models.Outcome
	err = s.store.Update(ctx, phone, func(rec models.Record) (models.Record, models.Transition) {
		next, transition, o := rec.Check(req.OTPCode, s.maxAttempts)
		outcome = o
		return next, transition
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		outcome = models.OutcomeMissing
	} else if err != nil {
		s.metrics.IncOTPVerification("error")
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify otp code")
		return "", err
	}
	span.SetAttributes(attribute.String("otp.outcome", string(outcome)))
	s.metrics.IncOTPVerification(string(outcome))

	switch outcome {
	case models.OutcomeMatched:
		s.emit(ctx, audit.EventOTPVerified, phone, "")
		s.logger.InfoContext(ctx, "otp verified",
			"mobile_phone", logger.MaskPhone(phone),
			"request_id", requestcontext.RequestID(ctx),
		)
		return phone, nil
	case models.OutcomeMismatch:
		s.emit(ctx, audit.EventOTPRejected, phone, "mismatch")
		err = dErrors.New(dErrors.CodeConflict, msgIncorrectCode)
	case models.OutcomeExhausted:
		s.emit(ctx, audit.EventOTPExhausted, phone, "attempts_exhausted")
		s.logger.WarnContext(ctx, "otp attempts exhausted",
			"mobile_phone", logger.MaskPhone(phone),
			"request_id", requestcontext.RequestID(ctx),
		)
		err = dErrors.New(dErrors.CodeTooManyRequests, msgTooMany)
	default:
		err = dErrors.New(dErrors.CodeNotFound, msgNoRecord)
	}
	return "", err
}

// withdraw removes an undelivered code. It runs on a context detached from
// cancellation because delivery may have failed on a cancelled request.
func (s *Service) withdraw(ctx context.Context, phone string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), withdrawTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, phone); err != nil {
		s.logger.ErrorContext(ctx, "failed to withdraw undelivered otp code",
			"mobile_phone", logger.MaskPhone(phone),
			"error", err,
		)
	}
}

// generateCode draws each digit independently and uniformly from 0-9.
func (s *Service) generateCode() (string, error) {
	code := make([]byte, s.codeLength)
	ten := big.NewInt(10)
	for i := range code {
		n, err := rand.Int(s.random, ten)
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, phone, reason string) {
	if s.audit == nil {
		return
	}
	event := audit.NewEvent(action, requestcontext.Now(ctx))
	event.ClientID = requestcontext.ClientID(ctx)
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

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
