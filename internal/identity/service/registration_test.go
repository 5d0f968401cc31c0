package service_test

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/mock/gomock"

	"fintech-id/internal/identity/models"
	audit "fintech-id/pkg/platform/audit"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/platform/sentinel"
)

func (s *ServiceSuite) TestRegister_PersistsStepsInOrder() {
	req := validRegistration()
	var order []string
	var passportID, regAddrID, actualAddrID, clientID any

	s.mockStore.EXPECT().PassportExists(gomock.Any(), "4510123456").Return(false, nil)
	s.mockStore.EXPECT().PhoneExists(gomock.Any(), "79991234567").Return(false, nil)
	s.expectTx()
	gomock.InOrder(
		s.mockStore.EXPECT().SavePassport(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p *models.PassportData) error {
				order = append(order, "passport")
				passportID = p.ID
				s.Equal("4510123456", p.PassportNumber)
				s.True(p.BirthDate.Equal(req.BirthDate.Time))
				return nil
			}),
		s.mockStore.EXPECT().SaveAddress(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, a *models.Address) error {
				order = append(order, "registration address")
				regAddrID = a.ID
				s.Equal("Moscow", a.City)
				return nil
			}),
		s.mockStore.EXPECT().SaveAddress(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, a *models.Address) error {
				order = append(order, "actual address")
				actualAddrID = a.ID
				s.Equal("Moscow", a.City, "actual address copies registration address")
				return nil
			}),
		s.mockStore.EXPECT().SaveClient(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, c *models.Client) error {
				order = append(order, "client")
				clientID = c.ID
				s.Equal(passportID, c.PassportID)
				s.Equal(regAddrID, c.RegistrationAddressID)
				s.Equal(actualAddrID, c.ActualAddressID)
				s.NotEqual(c.RegistrationAddressID, c.ActualAddressID)
				s.Equal(fixedNow, c.CreatedAt)
				return nil
			}),
		s.mockHasher.EXPECT().Hash("Secure1!pass").Return("bcrypt-hash", nil),
		s.mockStore.EXPECT().SaveProfile(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p *models.UserProfile) error {
				order = append(order, "profile")
				s.Equal(clientID, p.ClientID)
				s.Equal("bcrypt-hash", p.PasswordHash)
				s.Equal(models.AuthorizationLogin, p.AuthorizationType)
				s.False(p.SMSEnabled)
				s.False(p.PushEnabled)
				s.False(p.EmailSubscription)
				return nil
			}),
	)
	s.expectAudit(audit.EventRegistrationCompleted)

	id, err := s.service.Register(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(clientID, id)
	s.Equal([]string{"passport", "registration address", "actual address", "client", "profile"}, order)
}

func (s *ServiceSuite) TestRegister_UsesExplicitActualAddress() {
	req := validRegistration()
	req.ActualAddress = &models.AddressFields{Country: "Russia", City: "Kazan", Street: "Baumana", House: "3", PostCode: "420000"}

	s.mockStore.EXPECT().PassportExists(gomock.Any(), gomock.Any()).Return(false, nil)
	s.mockStore.EXPECT().PhoneExists(gomock.Any(), gomock.Any()).Return(false, nil)
	s.expectTx()
	s.mockStore.EXPECT().SavePassport(gomock.Any(), gomock.Any()).Return(nil)
	var cities []string
	s.mockStore.EXPECT().SaveAddress(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a *models.Address) error {
			cities = append(cities, a.City)
			return nil
		}).Times(2)
	s.mockStore.EXPECT().SaveClient(gomock.Any(), gomock.Any()).Return(nil)
	s.mockHasher.EXPECT().Hash(gomock.Any()).Return("h", nil)
	s.mockStore.EXPECT().SaveProfile(gomock.Any(), gomock.Any()).Return(nil)
	s.expectAudit(audit.EventRegistrationCompleted)

	_, err := s.service.Register(s.ctx, req)
	s.Require().NoError(err)
	s.Equal([]string{"Moscow", "Kazan"}, cities)
}

func (s *ServiceSuite) TestRegister_Rejections() {
	s.Run("invalid request never reaches the store", func() {
		req := validRegistration()
		req.MobilePhone = "123"
		_, err := s.service.Register(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("existing passport is a conflict", func() {
		s.mockStore.EXPECT().PassportExists(gomock.Any(), "4510123456").Return(true, nil)
		_, err := s.service.Register(s.ctx, validRegistration())
		s.Require().ErrorIs(err, dErrors.New(dErrors.CodeConflict, "client with this passport number already exists"))
	})

	s.Run("existing phone is a conflict", func() {
		s.mockStore.EXPECT().PassportExists(gomock.Any(), gomock.Any()).Return(false, nil)
		s.mockStore.EXPECT().PhoneExists(gomock.Any(), "79991234567").Return(true, nil)
		_, err := s.service.Register(s.ctx, validRegistration())
		s.Require().ErrorIs(err, dErrors.New(dErrors.CodeConflict, "user with this mobile phone already exists"))
	})

	s.Run("store outage during pre-check is internal", func() {
		s.mockStore.EXPECT().PassportExists(gomock.Any(), gomock.Any()).Return(false, errors.New("db down"))
		_, err := s.service.Register(s.ctx, validRegistration())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestRegister_StepFailureAbortsTransaction() {
	s.mockStore.EXPECT().PassportExists(gomock.Any(), gomock.Any()).Return(false, nil)
	s.mockStore.EXPECT().PhoneExists(gomock.Any(), gomock.Any()).Return(false, nil)

	var txErr error
	s.expectTxCapturing(&txErr)

	s.mockStore.EXPECT().SavePassport(gomock.Any(), gomock.Any()).Return(nil)
	s.mockStore.EXPECT().SaveAddress(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.mockStore.EXPECT().SaveClient(gomock.Any(), gomock.Any()).Return(fmt.Errorf("insert client: %w", sentinel.ErrConflict))

	_, err := s.service.Register(s.ctx, validRegistration())
	s.Require().ErrorIs(err, dErrors.New(dErrors.CodeConflict, "user with this mobile phone already exists"))
	s.Require().Error(txErr, "the transaction callback must report the failure so it rolls back")
}

func (s *ServiceSuite) TestRegister_HasherFailureIsInternal() {
	s.mockStore.EXPECT().PassportExists(gomock.Any(), gomock.Any()).Return(false, nil)
	s.mockStore.EXPECT().PhoneExists(gomock.Any(), gomock.Any()).Return(false, nil)
	s.expectTx()
	s.mockStore.EXPECT().SavePassport(gomock.Any(), gomock.Any()).Return(nil)
	s.mockStore.EXPECT().SaveAddress(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.mockStore.EXPECT().SaveClient(gomock.Any(), gomock.Any()).Return(nil)
	s.mockHasher.EXPECT().Hash(gomock.Any()).Return("", errors.New("entropy exhausted"))

	_, err := s.service.Register(s.ctx, validRegistration())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
