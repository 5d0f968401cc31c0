package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	audit "fintech-id/pkg/platform/audit"
)

// DefaultCapacity bounds the store when no capacity is given.
const DefaultCapacity = 10_000

// InMemoryStore keeps the most recent events in process. Used in tests and
// when no Kafka brokers are configured. Once full, each Append evicts the
// oldest event.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	head   int
	limit  int
}

type Option func(*InMemoryStore)

// WithCapacity sets how many events are retained. Non-positive values keep
// the default.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{limit: DefaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) < s.limit {
		s.events = append(s.events, event)
		return nil
	}
	s.events[s.head] = event
	s.head = (s.head + 1) % s.limit
	return nil
}

// ordered returns retained events oldest first. Callers hold the read lock.
func (s *InMemoryStore) ordered() []audit.Event {
	out := make([]audit.Event, 0, len(s.events))
	out = append(out, s.events[s.head:]...)
	return append(out, s.events[:s.head]...)
}

// ListByClient returns events recorded for clientID in emission order.
func (s *InMemoryStore) ListByClient(_ context.Context, clientID uuid.UUID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.ordered() {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every retained event.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ordered(), nil
}

// Actions returns the action names in emission order.
func (s *InMemoryStore) Actions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.ordered()
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.head = 0
}
