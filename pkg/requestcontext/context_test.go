package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccessorsDefaultToZeroValues(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, uuid.Nil, ClientID(ctx))
	assert.Empty(t, DisplayName(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	id := uuid.New()
	fixed := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	ctx := WithClientID(context.Background(), id)
	ctx = WithDisplayName(ctx, "Ivan Ivanov")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, id, ClientID(ctx))
	assert.Equal(t, "Ivan Ivanov", DisplayName(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
