//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/identity/service"
	"fintech-id/internal/identity/store"
	"fintech-id/pkg/platform/sentinel"
	"fintech-id/pkg/platform/tx"
	"fintech-id/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "user_profile", "client", "passport_data", "address"))
}

func (s *PostgresStoreSuite) save(st service.Store, ctx context.Context, passportNumber, phone, email string) uuid.UUID {
	now := time.Now().UTC().Truncate(time.Microsecond)
	passport := &models.PassportData{
		ID: uuid.New(), PassportNumber: passportNumber, IssuedBy: "MVD", DepartmentCode: "770001",
		IssuedDate: time.Date(2010, 5, 20, 0, 0, 0, 0, time.UTC), BirthDate: time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC),
	}
	address := &models.Address{ID: uuid.New(), Country: "Russia", City: "Moscow", Street: "Tverskaya", House: "1", PostCode: "125009", UpdatedAt: now}
	client := &models.Client{
		ID: uuid.New(), PassportID: passport.ID, FirstName: "Ivan", LastName: "Petrov", MobilePhone: phone,
		RegistrationAddressID: address.ID, ActualAddressID: address.ID, CreatedAt: now, UpdatedAt: now,
	}
	profile := &models.UserProfile{
		ID: uuid.New(), ClientID: client.ID, PasswordHash: "$2a$10$hash", Email: email,
		AuthorizationType: models.AuthorizationLogin,
	}
	s.Require().NoError(st.SavePassport(ctx, passport))
	s.Require().NoError(st.SaveAddress(ctx, address))
	s.Require().NoError(st.SaveClient(ctx, client))
	s.Require().NoError(st.SaveProfile(ctx, profile))
	return client.ID
}

func (s *PostgresStoreSuite) TestSaveAndLookup() {
	clientID := s.save(s.store, s.ctx, "1234567890", "79991234567", "ivan@mail.ru")

	lookup, err := s.store.FindIdentityByPhone(s.ctx, "79991234567")
	s.Require().NoError(err)
	s.Equal(models.Found{Identity: models.IdentityProjection{
		ID: clientID, FirstName: "Ivan", LastName: "Petrov", PasswordHash: "$2a$10$hash",
	}}, lookup)

	lookup, err = s.store.FindIdentityByPassport(s.ctx, "1234567890")
	s.Require().NoError(err)
	s.IsType(models.Found{}, lookup)

	lookup, err = s.store.FindIdentityByPhone(s.ctx, "70000000000")
	s.Require().NoError(err)
	s.Equal(models.NotFound{}, lookup)

	exists, err := s.store.PassportExists(s.ctx, "1234567890")
	s.Require().NoError(err)
	s.True(exists)
	exists, err = s.store.PhoneExists(s.ctx, "70000000000")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PostgresStoreSuite) TestUniqueViolationMapsToConflict() {
	s.save(s.store, s.ctx, "1234567890", "79991234567", "ivan@mail.ru")

	err := s.store.SavePassport(s.ctx, &models.PassportData{
		ID: uuid.New(), PassportNumber: "1234567890", IssuedBy: "MVD", DepartmentCode: "770001",
		IssuedDate: time.Now(), BirthDate: time.Now(),
	})
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Contains(err.Error(), "passport_data_passport_number_key")
}

func (s *PostgresStoreSuite) TestTransactionRollback() {
	sqlTx, err := s.postgres.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	txCtx := tx.WithTx(s.ctx, sqlTx)

	s.save(s.store, txCtx, "1234567890", "79991234567", "ivan@mail.ru")
	s.Require().NoError(sqlTx.Rollback())

	exists, err := s.store.PassportExists(s.ctx, "1234567890")
	s.Require().NoError(err)
	s.False(exists)
}
