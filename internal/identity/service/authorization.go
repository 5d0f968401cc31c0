package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/platform/logger"
	audit "fintech-id/pkg/platform/audit"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/requestcontext"
)

const (
	msgMissingKeys   = "authorization request must contain passport number or mobile phone"
	msgAccountAbsent = "account does not exist"
	msgTokenFailure  = "could not generate jwt token"
)

// authorizationStep advances the authorization state by one stage.
type authorizationStep interface {
	Order() int
	Name() string
	Process(ctx context.Context, state models.AuthorizationState) (models.AuthorizationState, error)
}

// Authorize authenticates by phone or passport plus password and issues an
// access and refresh token pair.
func (s *Service) Authorize(ctx context.Context, req models.AuthorizationRequest) (models.AuthorizationResult, error) {
	ctx, span := s.startSpan(ctx, "identity.Authorize")
	var err error
	defer func() { endSpan(span, err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		s.metrics.IncAuthorization("invalid")
		return models.AuthorizationResult{}, err
	}

	state := models.AuthorizationState{Request: req}
	for _, step := range s.authorization {
		stepCtx, stepSpan := s.startSpan(ctx, "authorization."+step.Name())
		stepSpan.SetAttributes(attribute.Int("step.order", step.Order()))
		state, err = step.Process(stepCtx, state)
		endSpan(stepSpan, err)
		if err != nil {
			s.authorizationFailed(ctx, req, state, err)
			return models.AuthorizationResult{}, err
		}
	}

	s.metrics.IncAuthorization("success")
	s.emit(ctx, audit.EventAuthorizationSucceeded, state.ClientID, req.MobilePhone, "")
	s.logger.InfoContext(ctx, "client authorized",
		"client_id", state.ClientID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return state.Result(), nil
}

func (s *Service) authorizationFailed(ctx context.Context, req models.AuthorizationRequest, state models.AuthorizationState, err error) {
	de, _ := dErrors.From(err)
	outcome := "failed"
	if de != nil {
		outcome = string(de.Code)
	}
	s.metrics.IncAuthorization(outcome)

	if de != nil && de.Code == dErrors.CodeNotFound {
		s.emit(ctx, audit.EventAuthorizationFailed, state.ClientID, req.MobilePhone, "invalid_credentials")
		s.logger.WarnContext(ctx, "authorization rejected",
			"mobile_phone", logger.MaskPhone(req.MobilePhone),
			"by_passport", req.MobilePhone == "",
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	if de == nil || de.Code == dErrors.CodeInternal || de.Code == dErrors.CodeTokenGeneration {
		s.logger.ErrorContext(ctx, "authorization failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

type validateParams struct{}

func (validateParams) Order() int   { return 1 }
func (validateParams) Name() string { return "validateParams" }

func (validateParams) Process(_ context.Context, state models.AuthorizationState) (models.AuthorizationState, error) {
	if state.Request.MobilePhone == "" && state.Request.PassportNumber == "" {
		return state, dErrors.New(dErrors.CodeBadRequest, msgMissingKeys)
	}
	return state, nil
}

type resolveIdentity struct {
	store Store
}

func (resolveIdentity) Order() int   { return 2 }
func (resolveIdentity) Name() string { return "resolveIdentity" }

// Process prefers the phone when both keys are present.
func (r resolveIdentity) Process(ctx context.Context, state models.AuthorizationState) (models.AuthorizationState, error) {
	var (
		lookup models.Lookup
		err    error
	)
	if phone := state.Request.MobilePhone; phone != "" {
		lookup, err = r.store.FindIdentityByPhone(ctx, phone)
	} else {
		lookup, err = r.store.FindIdentityByPassport(ctx, state.Request.PassportNumber)
	}
	if err != nil {
		return state, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	state.Lookup = lookup
	return state, nil
}

type verifyPassword struct {
	hasher PasswordHasher
}

func (verifyPassword) Order() int   { return 3 }
func (verifyPassword) Name() string { return "verifyPassword" }

// Process rejects unknown identities and wrong passwords with the same error
// so callers cannot probe which accounts exist.
func (v verifyPassword) Process(_ context.Context, state models.AuthorizationState) (models.AuthorizationState, error) {
	var identity models.IdentityProjection
	switch l := state.Lookup.(type) {
	case models.Found:
		identity = l.Identity
	case models.NotFound, nil:
		return state, dErrors.New(dErrors.CodeNotFound, msgAccountAbsent)
	default:
		return state, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected lookup %T", l))
	}

	ok, err := v.hasher.Matches(state.Request.Password, identity.PasswordHash)
	if err != nil {
		return state, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	if !ok {
		return state, dErrors.New(dErrors.CodeNotFound, msgAccountAbsent)
	}
	state.ClientID = identity.ID
	state.DisplayName = identity.DisplayName()
	return state, nil
}

type issueTokens struct {
	tokens     TokenIssuer
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (issueTokens) Order() int   { return 4 }
func (issueTokens) Name() string { return "issueTokens" }

func (t issueTokens) Process(_ context.Context, state models.AuthorizationState) (models.AuthorizationState, error) {
	access, err := t.tokens.Issue(state.ClientID, state.DisplayName, t.accessTTL)
	if err != nil {
		return state, dErrors.Wrap(err, dErrors.CodeTokenGeneration, msgTokenFailure)
	}
	refresh, err := t.tokens.Issue(state.ClientID, state.DisplayName, t.refreshTTL)
	if err != nil {
		return state, dErrors.Wrap(err, dErrors.CodeTokenGeneration, msgTokenFailure)
	}
	state.AccessToken = access
	state.RefreshToken = refresh
	return state, nil
}
