package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "fintech-id/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, store.Append(ctx, audit.Event{ClientID: a, Action: "otp_issued"}))
	require.NoError(t, store.Append(ctx, audit.Event{ClientID: b, Action: "otp_verified"}))
	require.NoError(t, store.Append(ctx, audit.Event{ClientID: a, Action: "otp_verified"}))

	events, err := store.ListByClient(ctx, a)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "otp_issued", events[0].Action)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, []string{"otp_issued", "otp_verified", "otp_verified"}, store.Actions())

	store.Clear()
	assert.Empty(t, store.Actions())
}

func TestInMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(WithCapacity(3))

	for _, action := range []string{"a1", "a2", "a3", "a4", "a5"} {
		require.NoError(t, store.Append(ctx, audit.Event{Action: action}))
	}

	assert.Equal(t, []string{"a3", "a4", "a5"}, store.Actions())
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	store.Clear()
	require.NoError(t, store.Append(ctx, audit.Event{Action: "a6"}))
	assert.Equal(t, []string{"a6"}, store.Actions())
}
