package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/identity/service"
	"fintech-id/pkg/platform/sentinel"
	"fintech-id/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists identities in Postgres. Inside RunInTx every call
// uses the transaction carried by ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ service.Store = (*PostgresStore)(nil)

func (s *PostgresStore) SavePassport(ctx context.Context, p *models.PassportData) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO passport_data (id, passport_number, issued_by, issued_date, department_code, birth_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PassportNumber, p.IssuedBy, p.IssuedDate, p.DepartmentCode, p.BirthDate,
	)
	return mapWriteErr(err, "insert passport data")
}

func (s *PostgresStore) SaveAddress(ctx context.Context, a *models.Address) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO address (id, country, city, street, house, hull, flat, post_code, update_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Country, a.City, a.Street, a.House, nullable(a.Hull), nullable(a.Flat), a.PostCode, a.UpdatedAt,
	)
	return mapWriteErr(err, "insert address")
}

func (s *PostgresStore) SaveClient(ctx context.Context, c *models.Client) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO client (id, passport_id, first_name, last_name, middle_name, mobile_phone,
			is_verificated, address_registration_id, address_actual_id, create_date, update_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.PassportID, c.FirstName, c.LastName, nullable(c.MiddleName), c.MobilePhone,
		c.Verified, c.RegistrationAddressID, c.ActualAddressID, c.CreatedAt, c.UpdatedAt,
	)
	return mapWriteErr(err, "insert client")
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *models.UserProfile) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO user_profile (id, client_id, password, sms_notification, push_notification,
			email, email_subscription, authorization_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.ClientID, p.PasswordHash, p.SMSEnabled, p.PushEnabled,
		p.Email, p.EmailSubscription, string(p.AuthorizationType),
	)
	return mapWriteErr(err, "insert user profile")
}

func (s *PostgresStore) PassportExists(ctx context.Context, passportNumber string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM passport_data WHERE passport_number = $1)`, passportNumber)
}

func (s *PostgresStore) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM client WHERE mobile_phone = $1)`, phone)
}

func (s *PostgresStore) FindIdentityByPhone(ctx context.Context, phone string) (models.Lookup, error) {
	return s.findIdentity(ctx, `
		SELECT c.id, c.first_name, c.last_name, p.password
		FROM client c
		JOIN user_profile p ON p.client_id = c.id
		WHERE c.mobile_phone = $1`, phone)
}

func (s *PostgresStore) FindIdentityByPassport(ctx context.Context, passportNumber string) (models.Lookup, error) {
	return s.findIdentity(ctx, `
		SELECT c.id, c.first_name, c.last_name, p.password
		FROM client c
		JOIN passport_data pd ON pd.id = c.passport_id
		JOIN user_profile p ON p.client_id = c.id
		WHERE pd.passport_number = $1`, passportNumber)
}

func (s *PostgresStore) exists(ctx context.Context, query string, arg string) (bool, error) {
	var exists bool
	if err := tx.Conn(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) findIdentity(ctx context.Context, query string, arg string) (models.Lookup, error) {
	var p models.IdentityProjection
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.FirstName, &p.LastName, &p.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFound{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return models.Found{Identity: p}, nil
}

// mapWriteErr turns unique violations into sentinel.ErrConflict tagged with
// the violated constraint.
func mapWriteErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
