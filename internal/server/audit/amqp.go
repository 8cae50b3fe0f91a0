package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyPrefix = "auth."
	publishTimeout   = 2 * time.Second
)

// Publisher is the part of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as JSON to a topic exchange with routing key
// "auth.<event type>". Publish failures are logged and dropped.
type AMQPSink struct {
	pub      Publisher
	exchange string
	logger   logging.Logger
}

func NewAMQPSink(pub Publisher, exchange string, logger logging.Logger) *AMQPSink {
	return &AMQPSink{pub: pub, exchange: exchange, logger: logger.With("module", "audit-amqp")}
}

func (s *AMQPSink) Emit(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error(ctx, "encode audit event", "error", err, "event", string(e.Type))
		return
	}

	// detached from the caller so a cancelled request still gets audited
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = s.pub.PublishWithContext(pctx, s.exchange, routingKeyPrefix+string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    e.At,
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		s.logger.Error(ctx, "publish audit event", "error", err, "event", string(e.Type))
	}
}

// AMQPConn owns the broker connection and channel behind an AMQPSink.
type AMQPConn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects to the broker, declares a durable topic exchange and
// returns a channel ready for publishing.
func DialAMQP(url, exchange string) (*AMQPConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPConn{conn: conn, ch: ch}, nil
}

// Channel returns the publishing channel.
func (c *AMQPConn) Channel() *amqp.Channel {
	return c.ch
}

func (c *AMQPConn) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
