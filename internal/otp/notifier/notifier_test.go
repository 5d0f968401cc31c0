package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"fintech-id/internal/otp/models"
	"fintech-id/internal/otp/notifier/mocks"
	"fintech-id/internal/platform/logger"
)

func TestAMQPNotifierPublishesDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	fixed := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	n := NewAMQP(publisher, "notifications", "sms.otp")
	n.now = func() time.Time { return fixed }

	publisher.EXPECT().
		PublishWithContext(gomock.Any(), "notifications", "sms.otp", false, false, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
			assert.Equal(t, "application/json", msg.ContentType)
			assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
			assert.Equal(t, "120000", msg.Expiration)
			assert.Equal(t, fixed, msg.Timestamp)
			assert.NotEmpty(t, msg.MessageId)

			var got models.Delivery
			require.NoError(t, json.Unmarshal(msg.Body, &got))
			assert.Equal(t, models.Delivery{Phone: "79991234567", Code: "012345", TTLSeconds: 120}, got)
			return nil
		})

	err := n.Notify(context.Background(), models.NewDelivery("79991234567", "012345", 120*time.Second))
	require.NoError(t, err)
}

func TestAMQPNotifierWrapsPublishError(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().
		PublishWithContext(gomock.Any(), gomock.Any(), gomock.Any(), false, false, gomock.Any()).
		Return(amqp.ErrClosed)

	err := NewAMQP(publisher, "x", "k").Notify(context.Background(), models.Delivery{Phone: "79991234567", Code: "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestLogNotifierWritesDelivery(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(logger.New("info", &buf))

	require.NoError(t, n.Notify(context.Background(), models.NewDelivery("79991234567", "000042", 2*time.Minute)))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "otp code sent", entry["msg"])
	assert.Equal(t, "+79991234567", entry["mobile_phone"])
	assert.Equal(t, "000042", entry["otp_code"])
	assert.EqualValues(t, 120, entry["ttl_seconds"])
}
