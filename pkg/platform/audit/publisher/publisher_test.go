package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "fintech-id/pkg/platform/audit"
	"fintech-id/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	clientID := uuid.New()
	err := pub.Emit(context.Background(), audit.Event{
		ClientID: clientID,
		Action:   string(audit.EventRegistrationCompleted),
	})
	require.NoError(t, err)

	events, err := store.ListByClient(context.Background(), clientID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	clientID := uuid.New()
	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			ClientID: clientID,
			Action:   string(audit.EventOTPIssued),
		}))
	}
	pub.Close()

	events, err := store.ListByClient(context.Background(), clientID)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisher_EmitAfterCloseDoesNotPanic(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1), WithLogger(slog.New(slog.DiscardHandler)))
	pub.Close()
	pub.Close()
	assert.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "otp_issued"}))
}

type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (s *blockingStore) Append(context.Context, audit.Event) error {
	<-s.release
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func TestPublisher_AsyncNeverBlocks(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1), WithLogger(slog.New(slog.DiscardHandler)))

	done := make(chan struct{})
	go func() {
		for range 5 {
			_ = pub.Emit(context.Background(), audit.Event{Action: "otp_issued"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	close(store.release)
	pub.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.GreaterOrEqual(t, store.count, 1)
	assert.LessOrEqual(t, store.count, 2)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("down") }

func TestPublisher_SyncModeReturnsStoreError(t *testing.T) {
	pub := NewPublisher(failingStore{})
	require.Error(t, pub.Emit(context.Background(), audit.Event{Action: "otp_issued"}))
}
