package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/identity/service"
	"fintech-id/pkg/platform/sentinel"
)

// InMemory keeps identities in process with the same unique constraints as
// the Postgres schema. RunInTx serializes transactions and applies their
// writes only on success.
type InMemory struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	passports map[uuid.UUID]models.PassportData
	addresses map[uuid.UUID]models.Address
	clients   map[uuid.UUID]models.Client
	profiles  map[uuid.UUID]models.UserProfile
}

func newMemoryData() memoryData {
	return memoryData{
		passports: make(map[uuid.UUID]models.PassportData),
		addresses: make(map[uuid.UUID]models.Address),
		clients:   make(map[uuid.UUID]models.Client),
		profiles:  make(map[uuid.UUID]models.UserProfile),
	}
}

func (d memoryData) clone() memoryData {
	return memoryData{
		passports: maps.Clone(d.passports),
		addresses: maps.Clone(d.addresses),
		clients:   maps.Clone(d.clients),
		profiles:  maps.Clone(d.profiles),
	}
}

func NewInMemory() *InMemory {
	return &InMemory{data: newMemoryData()}
}

var (
	_ service.Store   = (*InMemory)(nil)
	_ service.StoreTx = (*InMemory)(nil)
)

// RunInTx runs fn against a staged copy and publishes it when fn succeeds.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := &InMemory{data: s.data.clone()}
	s.mu.RUnlock()

	if err := fn(ctx, staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = staged.data
	s.mu.Unlock()
	return nil
}

func (s *InMemory) write(fn func(d *memoryData) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (s *InMemory) SavePassport(_ context.Context, p *models.PassportData) error {
	return s.write(func(d *memoryData) error {
		for _, existing := range d.passports {
			if existing.PassportNumber == p.PassportNumber {
				return fmt.Errorf("passport_data_passport_number_key: %w", sentinel.ErrConflict)
			}
		}
		d.passports[p.ID] = *p
		return nil
	})
}

func (s *InMemory) SaveAddress(_ context.Context, a *models.Address) error {
	return s.write(func(d *memoryData) error {
		d.addresses[a.ID] = *a
		return nil
	})
}

func (s *InMemory) SaveClient(_ context.Context, c *models.Client) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.passports[c.PassportID]; !ok {
			return fmt.Errorf("client passport %s: %w", c.PassportID, sentinel.ErrNotFound)
		}
		for _, id := range []uuid.UUID{c.RegistrationAddressID, c.ActualAddressID} {
			if _, ok := d.addresses[id]; !ok {
				return fmt.Errorf("client address %s: %w", id, sentinel.ErrNotFound)
			}
		}
		for _, existing := range d.clients {
			if existing.MobilePhone == c.MobilePhone {
				return fmt.Errorf("client_mobile_phone_key: %w", sentinel.ErrConflict)
			}
		}
		d.clients[c.ID] = *c
		return nil
	})
}

func (s *InMemory) SaveProfile(_ context.Context, p *models.UserProfile) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.clients[p.ClientID]; !ok {
			return fmt.Errorf("profile client %s: %w", p.ClientID, sentinel.ErrNotFound)
		}
		for _, existing := range d.profiles {
			if existing.Email == p.Email {
				return fmt.Errorf("user_profile_email_key: %w", sentinel.ErrConflict)
			}
			if existing.ClientID == p.ClientID {
				return fmt.Errorf("user_profile_client_id_key: %w", sentinel.ErrConflict)
			}
		}
		d.profiles[p.ID] = *p
		return nil
	})
}

func (s *InMemory) PassportExists(_ context.Context, passportNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.passportByNumber(passportNumber)
	return ok, nil
}

func (s *InMemory) PhoneExists(_ context.Context, phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clientBy(func(c models.Client) bool { return c.MobilePhone == phone })
	return ok, nil
}

func (s *InMemory) FindIdentityByPhone(_ context.Context, phone string) (models.Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clientBy(func(c models.Client) bool { return c.MobilePhone == phone })
	if !ok {
		return models.NotFound{}, nil
	}
	return s.identityOf(client), nil
}

func (s *InMemory) FindIdentityByPassport(_ context.Context, passportNumber string) (models.Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	passport, ok := s.passportByNumber(passportNumber)
	if !ok {
		return models.NotFound{}, nil
	}
	client, ok := s.clientBy(func(c models.Client) bool { return c.PassportID == passport.ID })
	if !ok {
		return models.NotFound{}, nil
	}
	return s.identityOf(client), nil
}

// Counts reports the number of stored rows per entity.
func (s *InMemory) Counts() (passports, addresses, clients, profiles int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.passports), len(s.data.addresses), len(s.data.clients), len(s.data.profiles)
}

func (s *InMemory) passportByNumber(number string) (models.PassportData, bool) {
	for _, p := range s.data.passports {
		if p.PassportNumber == number {
			return p, true
		}
	}
	return models.PassportData{}, false
}

func (s *InMemory) clientBy(match func(models.Client) bool) (models.Client, bool) {
	for _, c := range s.data.clients {
		if match(c) {
			return c, true
		}
	}
	return models.Client{}, false
}

// identityOf requires a profile; a client without one cannot authenticate.
func (s *InMemory) identityOf(c models.Client) models.Lookup {
	for _, p := range s.data.profiles {
		if p.ClientID == c.ID {
			return models.Found{Identity: models.IdentityProjection{
				ID:           c.ID,
				FirstName:    c.FirstName,
				LastName:     c.LastName,
				PasswordHash: p.PasswordHash,
			}}
		}
	}
	return models.NotFound{}
}
