package service_test

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"fintech-id/internal/identity/models"
	audit "fintech-id/pkg/platform/audit"
	dErrors "fintech-id/pkg/domain-errors"
)

func (s *ServiceSuite) TestAuthorize_ByPhone() {
	clientID := uuid.New()
	s.mockStore.EXPECT().FindIdentityByPhone(gomock.Any(), "79991234567").Return(identity(clientID), nil)
	s.mockHasher.EXPECT().Matches("Secure1!pass", "hashed").Return(true, nil)
	s.mockTokens.EXPECT().Issue(clientID, "Ivan Petrov", 15*time.Minute).Return("access", nil)
	s.mockTokens.EXPECT().Issue(clientID, "Ivan Petrov", 7*24*time.Hour).Return("refresh", nil)
	s.expectAudit(audit.EventAuthorizationSucceeded)

	res, err := s.service.Authorize(s.ctx, models.AuthorizationRequest{
		Password:    "Secure1!pass",
		MobilePhone: "79991234567",
	})
	s.Require().NoError(err)
	s.Equal("access", res.AccessToken)
	s.Equal("refresh", res.RefreshToken)
	s.Equal(clientID, res.ClientID)
}

func (s *ServiceSuite) TestAuthorize_PhonePreferredOverPassport() {
	clientID := uuid.New()
	s.mockStore.EXPECT().FindIdentityByPhone(gomock.Any(), "79991234567").Return(identity(clientID), nil)
	s.mockStore.EXPECT().FindIdentityByPassport(gomock.Any(), gomock.Any()).Times(0)
	s.mockHasher.EXPECT().Matches(gomock.Any(), gomock.Any()).Return(true, nil)
	s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Return("t", nil).Times(2)
	s.expectAudit(audit.EventAuthorizationSucceeded)

	_, err := s.service.Authorize(s.ctx, models.AuthorizationRequest{
		Password:       "Secure1!pass",
		MobilePhone:    "79991234567",
		PassportNumber: "4510123456",
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestAuthorize_ByPassport() {
	clientID := uuid.New()
	s.mockStore.EXPECT().FindIdentityByPassport(gomock.Any(), "4510123456").Return(identity(clientID), nil)
	s.mockHasher.EXPECT().Matches(gomock.Any(), gomock.Any()).Return(true, nil)
	s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Return("t", nil).Times(2)
	s.expectAudit(audit.EventAuthorizationSucceeded)

	res, err := s.service.Authorize(s.ctx, models.AuthorizationRequest{
		Password:       "Secure1!pass",
		PassportNumber: "4510123456",
	})
	s.Require().NoError(err)
	s.Equal(clientID, res.ClientID)
}

func (s *ServiceSuite) TestAuthorize_MissingKeys() {
	_, err := s.service.Authorize(s.ctx, models.AuthorizationRequest{Password: "Secure1!pass"})
	s.Require().ErrorIs(err, dErrors.New(dErrors.CodeBadRequest,
		"authorization request must contain passport number or mobile phone"))
}

func (s *ServiceSuite) TestAuthorize_UnknownAndWrongPasswordAreIndistinguishable() {
	req := models.AuthorizationRequest{Password: "Secure1!pass", MobilePhone: "79991234567"}

	s.mockStore.EXPECT().FindIdentityByPhone(gomock.Any(), gomock.Any()).Return(models.NotFound{}, nil)
	s.expectAudit(audit.EventAuthorizationFailed)
	_, unknownErr := s.service.Authorize(s.ctx, req)

	s.mockStore.EXPECT().FindIdentityByPhone(gomock.Any(), gomock.Any()).Return(identity(uuid.New()), nil)
	s.mockHasher.EXPECT().Matches(gomock.Any(), gomock.Any()).Return(false, nil)
	s.expectAudit(audit.EventAuthorizationFailed)
	_, wrongErr := s.service.Authorize(s.ctx, req)

	want := dErrors.New(dErrors.CodeNotFound, "account does not exist")
	s.Require().ErrorIs(unknownErr, want)
	s.Require().ErrorIs(wrongErr, want)
	s.Equal(unknownErr.Error(), wrongErr.Error())
}

func (s *ServiceSuite) TestAuthorize_TokenFailure() {
	clientID := uuid.New()
	s.mockStore.EXPECT().FindIdentityByPhone(gomock.Any(), gomock.Any()).Return(identity(clientID), nil)
	s.mockHasher.EXPECT().Matches(gomock.Any(), gomock.Any()).Return(true, nil)
	s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("signer broken"))

	_, err := s.service.Authorize(s.ctx, models.AuthorizationRequest{Password: "Secure1!pass", MobilePhone: "79991234567"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenGeneration))
	de, _ := dErrors.From(err)
	s.Equal("could not generate jwt token", de.Message)
}

func (s *ServiceSuite) TestAuthorize_StoreFailureIsInternal() {
	s.mockStore.EXPECT().FindIdentityByPassport(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	_, err := s.service.Authorize(s.ctx, models.AuthorizationRequest{Password: "Secure1!pass", PassportNumber: "4510123456"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestCheckRegistration() {
	s.Run("free phone is echoed", func() {
		s.mockStore.EXPECT().PhoneExists(gomock.Any(), "79991234567").Return(false, nil)
		phone, err := s.service.CheckRegistration(s.ctx, models.PhoneRequest{MobilePhone: " 79991234567 "})
		s.Require().NoError(err)
		s.Equal("79991234567", phone)
	})

	s.Run("registered phone is a conflict", func() {
		s.mockStore.EXPECT().PhoneExists(gomock.Any(), "79991234567").Return(true, nil)
		_, err := s.service.CheckRegistration(s.ctx, models.PhoneRequest{MobilePhone: "79991234567"})
		s.Require().ErrorIs(err, dErrors.New(dErrors.CodeConflict, "user with this mobile phone already exists"))
	})

	s.Run("malformed phone is a validation error", func() {
		_, err := s.service.CheckRegistration(s.ctx, models.PhoneRequest{MobilePhone: "89991234567"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
