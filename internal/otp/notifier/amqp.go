package notifier

//go:generate mockgen -source=amqp.go -destination=mocks/mocks.go -package=mocks Publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"fintech-id/internal/otp/models"
	"fintech-id/internal/otp/service"
)

// Publisher is the part of *amqp.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes deliveries for an SMS gateway to consume. Messages
// expire with the code so a late consumer never sends a dead code.
type AMQPNotifier struct {
	publisher  Publisher
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewAMQP(publisher Publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}
}

var _ service.Notifier = (*AMQPNotifier)(nil)

func (n *AMQPNotifier) Notify(ctx context.Context, d models.Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode otp delivery: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    n.now(),
		Body:         body,
	}
	if d.TTLSeconds > 0 {
		msg.Expiration = strconv.FormatInt(d.TTLSeconds*1000, 10)
	}
	if err := n.publisher.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish otp delivery: %w", err)
	}
	return nil
}

// Connection owns the AMQP connection and channel behind an AMQPNotifier.
type Connection struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Connection{conn: conn, Channel: ch}, nil
}

func (c *Connection) Health(context.Context) error {
	if c.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (c *Connection) Close() error {
	_ = c.Channel.Close()
	return c.conn.Close()
}
