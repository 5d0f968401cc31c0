package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/platform/logger"
	audit "fintech-id/pkg/platform/audit"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/platform/sentinel"
	"fintech-id/pkg/requestcontext"
)

const (
	msgPassportTaken = "client with this passport number already exists"
	msgPhoneTaken    = "user with this mobile phone already exists"
	msgEmailTaken    = "user with this email already exists"
)

// registrationStep persists one sub-entity and attaches it to the state.
type registrationStep interface {
	Order() int
	Name() string
	Process(ctx context.Context, store Store, req *models.RegistrationRequest, state models.RegistrationState) (models.RegistrationState, error)
}

// Register validates req and persists a new identity atomically. It returns
// the id of the new client.
func (s *Service) Register(ctx context.Context, req *models.RegistrationRequest) (uuid.UUID, error) {
	ctx, span := s.startSpan(ctx, "identity.Register")
	var err error
	defer func() { endSpan(span, err) }()

	req.Normalize()
	if err = req.Validate(requestcontext.Now(ctx)); err != nil {
		s.metrics.IncRegistration("invalid")
		return uuid.Nil, err
	}

	if err = s.ensureUnregistered(ctx, req); err != nil {
		s.metrics.IncRegistration("conflict")
		return uuid.Nil, err
	}

	var state models.RegistrationState
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		var runErr error
		state, runErr = s.runRegistration(ctx, store, req)
		return runErr
	})
	if err != nil {
		s.metrics.IncRegistration("failed")
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			s.logger.ErrorContext(ctx, "registration failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return uuid.Nil, err
	}

	clientID := state.Client.ID
	s.metrics.IncRegistration("success")
	s.emit(ctx, audit.EventRegistrationCompleted, clientID, req.MobilePhone, "")
	s.logger.InfoContext(ctx, "client registered",
		"client_id", clientID,
		"mobile_phone", logger.MaskPhone(req.MobilePhone),
		"request_id", requestcontext.RequestID(ctx),
	)
	return clientID, nil
}

func (s *Service) ensureUnregistered(ctx context.Context, req *models.RegistrationRequest) error {
	exists, err := s.store.PassportExists(ctx, req.PassportNumber)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check passport number")
	}
	if exists {
		return dErrors.New(dErrors.CodeConflict, msgPassportTaken)
	}
	exists, err = s.store.PhoneExists(ctx, req.MobilePhone)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check mobile phone")
	}
	if exists {
		return dErrors.New(dErrors.CodeConflict, msgPhoneTaken)
	}
	return nil
}

func (s *Service) runRegistration(ctx context.Context, store Store, req *models.RegistrationRequest) (models.RegistrationState, error) {
	var state models.RegistrationState
	for _, step := range s.registration {
		stepCtx, span := s.startSpan(ctx, "registration."+step.Name())
		span.SetAttributes(attribute.Int("step.order", step.Order()))
		next, err := step.Process(stepCtx, store, req, state)
		endSpan(span, err)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

// storeFailure maps a persistence error. Unique violations that slipped past
// the pre-check become conflicts with conflictMsg.
func storeFailure(err error, conflictMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrConflict) && conflictMsg != "" {
		return dErrors.Wrap(err, dErrors.CodeConflict, conflictMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func newAddress(ctx context.Context, f models.AddressFields) *models.Address {
	return &models.Address{
		ID:        uuid.New(),
		Country:   f.Country,
		City:      f.City,
		Street:    f.Street,
		House:     f.House,
		Hull:      f.Hull,
		Flat:      f.Flat,
		PostCode:  f.PostCode,
		UpdatedAt: requestcontext.Now(ctx),
	}
}

type createPassportData struct{}

func (createPassportData) Order() int   { return 1 }
func (createPassportData) Name() string { return "createPassportData" }

func (createPassportData) Process(ctx context.Context, store Store, req *models.RegistrationRequest, state models.RegistrationState) (models.RegistrationState, error) {
	passport := &models.PassportData{
		ID:             uuid.New(),
		PassportNumber: req.PassportNumber,
		IssuedBy:       req.IssuedBy,
		IssuedDate:     req.IssueDate.Time,
		DepartmentCode: req.DepartmentCode,
		BirthDate:      req.BirthDate.Time,
	}
	if err := store.SavePassport(ctx, passport); err != nil {
		return state, storeFailure(err, msgPassportTaken, "failed to save passport data")
	}
	state.Passport = passport
	return state, nil
}

type createRegistrationAddress struct{}

func (createRegistrationAddress) Order() int   { return 2 }
func (createRegistrationAddress) Name() string { return "createRegistrationAddress" }

func (createRegistrationAddress) Process(ctx context.Context, store Store, req *models.RegistrationRequest, state models.RegistrationState) (models.RegistrationState, error) {
	address := newAddress(ctx, req.RegistrationAddress())
	if err := store.SaveAddress(ctx, address); err != nil {
		return state, storeFailure(err, "", "failed to save registration address")
	}
	state.RegistrationAddress = address
	return state, nil
}

type createActualAddress struct{}

func (createActualAddress) Order() int   { return 3 }
func (createActualAddress) Name() string { return "createActualAddress" }

func (createActualAddress) Process(ctx context.Context, store Store, req *models.RegistrationRequest, state models.RegistrationState) (models.RegistrationState, error) {
	address := newAddress(ctx, req.ResolvedActualAddress())
	if err := store.SaveAddress(ctx, address); err != nil {
		return state, storeFailure(err, "", "failed to save actual address")
	}
	state.ActualAddress = address
	return state, nil
}

type createClient struct{}

func (createClient) Order() int   { return 4 }
func (createClient) Name() string { return "createClient" }

func (createClient) Process(ctx context.Context, store Store, req *models.RegistrationRequest, state models.RegistrationState) (models.RegistrationState, error) {
	if state.Passport == nil || state.RegistrationAddress == nil || state.ActualAddress == nil {
		return state, dErrors.New(dErrors.CodeInternal, "client step requires passport and addresses")
	}
	now := requestcontext.Now(ctx)
	client := &models.Client{
		ID:                    uuid.New(),
		PassportID:            state.Passport.ID,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		MiddleName:            req.MiddleName,
		MobilePhone:           req.MobilePhone,
		RegistrationAddressID: state.RegistrationAddress.ID,
		ActualAddressID:       state.ActualAddress.ID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := store.SaveClient(ctx, client); err != nil {
		return state, storeFailure(err, msgPhoneTaken, "failed to save client")
	}
	state.Client = client
	return state, nil
}

type createUserProfile struct {
	hasher PasswordHasher
}

func (createUserProfile) Order() int   { return 5 }
func (createUserProfile) Name() string { return "createUserProfile" }

func (c createUserProfile) Process(ctx context.Context, store Store, req *models.RegistrationRequest, state models.RegistrationState) (models.RegistrationState, error) {
	if state.Client == nil {
		return state, dErrors.New(dErrors.CodeInternal, "profile step requires a client")
	}
	hash, err := c.hasher.Hash(req.Password)
	if err != nil {
		if _, ok := dErrors.From(err); ok {
			return state, err
		}
		return state, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	profile := &models.UserProfile{
		ID:                uuid.New(),
		ClientID:          state.Client.ID,
		PasswordHash:      hash,
		Email:             req.Email,
		AuthorizationType: models.AuthorizationLogin,
	}
	if err := store.SaveProfile(ctx, profile); err != nil {
		return state, storeFailure(err, msgEmailTaken, "failed to save user profile")
	}
	state.Profile = profile
	return state, nil
}
