package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitymodels "fintech-id/internal/identity/models"
	"fintech-id/internal/otp/models"
	"fintech-id/internal/otp/service"
	"fintech-id/internal/otp/store"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/platform/sentinel"
	"fintech-id/pkg/testutil"
)

type knownPhones map[string]bool

func (k knownPhones) PhoneExists(_ context.Context, phone string) (bool, error) {
	return k[phone], nil
}

type capturingNotifier struct {
	last models.Delivery
}

func (c *capturingNotifier) Notify(_ context.Context, d models.Delivery) error {
	c.last = d
	return nil
}

// Walks the issue/verify state machine against the in-memory store.
func TestOTPStateMachine(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	st := store.NewInMemory(store.WithClock(func() time.Time { return now }))
	notifier := &capturingNotifier{}
	svc := service.New(st, knownPhones{phone: true}, notifier, service.WithPolicy(120*time.Second, 3, 6))
	ctx := context.Background()

	verify := func(code string) error {
		_, err := svc.Verify(ctx, models.VerifyRequest{MobilePhone: phone, OTPCode: code})
		return err
	}
	wrong := func() string {
		if notifier.last.Code == "999999" {
			return "000000"
		}
		return "999999"
	}

	testutil.Given(t, "an issued code", func(t *testing.T) {
		_, err := svc.Issue(ctx, identitymodels.PhoneRequest{MobilePhone: phone})
		require.NoError(t, err)
		rec, err := st.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, models.Record{Code: notifier.last.Code}, rec)

		testutil.When(t, "three wrong codes are submitted", func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				now = now.Add(10 * time.Second)
				err := verify(wrong())
				assert.True(t, dErrors.Is(err, dErrors.CodeConflict), "attempt %d", i)
			}

			testutil.Then(t, "the record survives with its original deadline", func(t *testing.T) {
				rec, err := st.Get(ctx, phone)
				require.NoError(t, err)
				assert.Equal(t, 3, rec.Attempts)
				ttl, err := st.TTL(ctx, phone)
				require.NoError(t, err)
				assert.Equal(t, 90*time.Second, ttl)
			})

			testutil.And(t, "a fourth submission is throttled even with the right code", func(t *testing.T) {
				err := verify(notifier.last.Code)
				assert.True(t, dErrors.Is(err, dErrors.CodeTooManyRequests))
				_, err = st.Get(ctx, phone)
				assert.NoError(t, err)
			})
		})
	})

	testutil.Given(t, "a re-issued code", func(t *testing.T) {
		_, err := svc.Issue(ctx, identitymodels.PhoneRequest{MobilePhone: phone})
		require.NoError(t, err)

		testutil.When(t, "the right code is submitted", func(t *testing.T) {
			require.NoError(t, verify(notifier.last.Code))

			testutil.Then(t, "the record is consumed", func(t *testing.T) {
				_, err := st.Get(ctx, phone)
				assert.ErrorIs(t, err, sentinel.ErrNotFound)
				assert.True(t, dErrors.Is(verify(notifier.last.Code), dErrors.CodeNotFound))
			})
		})
	})

	testutil.Given(t, "a code past its lifetime", func(t *testing.T) {
		_, err := svc.Issue(ctx, identitymodels.PhoneRequest{MobilePhone: phone})
		require.NoError(t, err)
		now = now.Add(120 * time.Second)

		testutil.Then(t, "verification finds nothing", func(t *testing.T) {
			assert.True(t, dErrors.Is(verify(notifier.last.Code), dErrors.CodeNotFound))
		})
	})
}
