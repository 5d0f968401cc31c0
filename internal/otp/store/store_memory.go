package store

import (
	"context"
	"sync"
	"time"

	"fintech-id/internal/otp/models"
	"fintech-id/internal/otp/service"
	"fintech-id/pkg/platform/sentinel"
)

// sweepEvery is how many Puts pass between full scans for expired records.
const sweepEvery = 256

type memoryEntry struct {
	record    models.Record
	expiresAt time.Time
}

// InMemoryStore keeps records in process. One mutex guards every record, and
// Update runs its decision under it, so the read-decide-write is atomic.
// Expired records are dropped on access and by a periodic sweep on Put.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	puts    int
	now     func() time.Time
}

type MemoryOption func(*InMemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ service.Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Put(_ context.Context, phone string, record models.Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.puts >= sweepEvery {
		s.puts = 0
		s.sweepLocked()
	}
	s.entries[phone] = memoryEntry{record: record, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, phone string, fn func(models.Record) (models.Record, models.Transition)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(phone)
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next, transition := fn(entry.record)
	switch transition {
	case models.Consume:
		delete(s.entries, phone)
	case models.Save:
		s.entries[phone] = memoryEntry{record: next, expiresAt: entry.expiresAt}
	}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}

// Sweep drops every expired record and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Len reports how many records are held, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TTL reports the remaining lifetime of the phone's record.
func (s *InMemoryStore) TTL(_ context.Context, phone string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(phone)
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return entry.expiresAt.Sub(s.now()), nil
}

// Get returns the live record for phone.
func (s *InMemoryStore) Get(_ context.Context, phone string) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(phone)
	if !ok {
		return models.Record{}, sentinel.ErrNotFound
	}
	return entry.record, nil
}

func (s *InMemoryStore) liveLocked(phone string) (memoryEntry, bool) {
	entry, ok := s.entries[phone]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, phone)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *InMemoryStore) sweepLocked() int {
	now := s.now()
	removed := 0
	for phone, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, phone)
			removed++
		}
	}
	return removed
}
