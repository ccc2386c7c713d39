// Package events publishes order events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"coffeehouse/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RoutingKeyOrderSubmitted is the routing key of checkout events.
const RoutingKeyOrderSubmitted = "order.submitted"

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// OrderEvent is the message body of order.submitted.
type OrderEvent struct {
	Type        string            `json:"type"`
	OrderID     string            `json:"orderId"`
	OwnerID     string            `json:"ownerId"`
	OwnerEmail  string            `json:"ownerEmail"`
	Lines       []domain.CartLine `json:"lines"`
	TotalItems  int               `json:"totalItems"`
	TotalPrice  string            `json:"totalPrice"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// Publisher implements cart.OrderNotifier over a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
	ch channel
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange, logger: logger}, nil
}

func (p *Publisher) OrderSubmitted(ctx context.Context, order domain.Order) error {
	body, err := json.Marshal(OrderEvent{
		Type:        RoutingKeyOrderSubmitted,
		OrderID:     order.ID,
		OwnerID:     order.OwnerID,
		OwnerEmail:  order.OwnerEmail,
		Lines:       order.Lines,
		TotalItems:  order.TotalItems,
		TotalPrice:  order.TotalPrice.StringFixed(2),
		SubmittedAt: order.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyOrderSubmitted,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    order.ID,
			Timestamp:    order.SubmittedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeyOrderSubmitted, err)
	}
	p.logger.Debug("order event published", zap.String("order_id", order.ID))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
