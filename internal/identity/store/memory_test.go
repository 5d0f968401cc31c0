package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/identity/service"
	"fintech-id/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

type seeded struct {
	passport *models.PassportData
	client   *models.Client
	profile  *models.UserProfile
}

func (s *InMemoryStoreSuite) seed(store service.Store, passportNumber, phone, email string) seeded {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	passport := &models.PassportData{ID: uuid.New(), PassportNumber: passportNumber, IssuedBy: "MVD", DepartmentCode: "770001"}
	address := &models.Address{ID: uuid.New(), Country: "Russia", City: "Moscow", Street: "Tverskaya", House: "1", PostCode: "125009", UpdatedAt: now}
	client := &models.Client{
		ID: uuid.New(), PassportID: passport.ID, FirstName: "Ivan", LastName: "Petrov", MobilePhone: phone,
		RegistrationAddressID: address.ID, ActualAddressID: address.ID, CreatedAt: now, UpdatedAt: now,
	}
	profile := &models.UserProfile{ID: uuid.New(), ClientID: client.ID, PasswordHash: "hash", Email: email}

	s.Require().NoError(store.SavePassport(s.ctx, passport))
	s.Require().NoError(store.SaveAddress(s.ctx, address))
	s.Require().NoError(store.SaveClient(s.ctx, client))
	s.Require().NoError(store.SaveProfile(s.ctx, profile))
	return seeded{passport: passport, client: client, profile: profile}
}

func (s *InMemoryStoreSuite) TestLookupsFindSavedIdentity() {
	rec := s.seed(s.store, "1234567890", "79991234567", "ivan@mail.ru")

	s.Run("by phone", func() {
		lookup, err := s.store.FindIdentityByPhone(s.ctx, "79991234567")
		s.Require().NoError(err)
		found, ok := lookup.(models.Found)
		s.Require().True(ok)
		s.Equal(rec.client.ID, found.Identity.ID)
		s.Equal("hash", found.Identity.PasswordHash)
		s.Equal("Ivan Petrov", found.Identity.DisplayName())
	})

	s.Run("by passport", func() {
		lookup, err := s.store.FindIdentityByPassport(s.ctx, "1234567890")
		s.Require().NoError(err)
		s.Equal(models.Found{Identity: models.IdentityProjection{
			ID: rec.client.ID, FirstName: "Ivan", LastName: "Petrov", PasswordHash: "hash",
		}}, lookup)
	})

	s.Run("unknown keys yield NotFound", func() {
		lookup, err := s.store.FindIdentityByPhone(s.ctx, "70000000000")
		s.Require().NoError(err)
		s.Equal(models.NotFound{}, lookup)

		lookup, err = s.store.FindIdentityByPassport(s.ctx, "0000000000")
		s.Require().NoError(err)
		s.Equal(models.NotFound{}, lookup)
	})

	s.Run("exists checks", func() {
		exists, err := s.store.PassportExists(s.ctx, "1234567890")
		s.Require().NoError(err)
		s.True(exists)

		exists, err = s.store.PhoneExists(s.ctx, "70000000000")
		s.Require().NoError(err)
		s.False(exists)
	})
}

func (s *InMemoryStoreSuite) TestUniqueConstraints() {
	rec := s.seed(s.store, "1234567890", "79991234567", "ivan@mail.ru")

	s.Run("passport number", func() {
		err := s.store.SavePassport(s.ctx, &models.PassportData{ID: uuid.New(), PassportNumber: "1234567890"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("mobile phone", func() {
		dup := *rec.client
		dup.ID = uuid.New()
		s.ErrorIs(s.store.SaveClient(s.ctx, &dup), sentinel.ErrConflict)
	})

	s.Run("email", func() {
		other := s.seedClientOnly("0987654321", "79990000000")
		err := s.store.SaveProfile(s.ctx, &models.UserProfile{ID: uuid.New(), ClientID: other, Email: "ivan@mail.ru"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *InMemoryStoreSuite) seedClientOnly(passportNumber, phone string) uuid.UUID {
	passport := &models.PassportData{ID: uuid.New(), PassportNumber: passportNumber}
	address := &models.Address{ID: uuid.New()}
	client := &models.Client{ID: uuid.New(), PassportID: passport.ID, MobilePhone: phone,
		RegistrationAddressID: address.ID, ActualAddressID: address.ID}
	s.Require().NoError(s.store.SavePassport(s.ctx, passport))
	s.Require().NoError(s.store.SaveAddress(s.ctx, address))
	s.Require().NoError(s.store.SaveClient(s.ctx, client))
	return client.ID
}

func (s *InMemoryStoreSuite) TestClientRequiresLinkedRows() {
	err := s.store.SaveClient(s.ctx, &models.Client{ID: uuid.New(), PassportID: uuid.New(), MobilePhone: "79991234567"})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestRunInTxCommitsOnSuccess() {
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, store service.Store) error {
		s.seed(store, "1234567890", "79991234567", "ivan@mail.ru")
		return nil
	})
	s.Require().NoError(err)

	passports, addresses, clients, profiles := s.store.Counts()
	s.Equal([]int{1, 1, 1, 1}, []int{passports, addresses, clients, profiles})
}

func (s *InMemoryStoreSuite) TestRunInTxRollsBackOnError() {
	boom := errors.New("profile step failed")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, store service.Store) error {
		passport := &models.PassportData{ID: uuid.New(), PassportNumber: "1234567890"}
		s.Require().NoError(store.SavePassport(ctx, passport))
		return boom
	})
	s.ErrorIs(err, boom)

	passports, _, _, _ := s.store.Counts()
	s.Zero(passports)
	exists, err := s.store.PassportExists(s.ctx, "1234567890")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *InMemoryStoreSuite) TestRunInTxRollsBackOnCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	err := s.store.RunInTx(ctx, func(ctx context.Context, store service.Store) error {
		s.seed(store, "1234567890", "79991234567", "ivan@mail.ru")
		cancel()
		return nil
	})
	s.ErrorIs(err, context.Canceled)

	_, _, clients, _ := s.store.Counts()
	s.Zero(clients)
}
