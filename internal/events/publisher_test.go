package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"coffeehouse/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	if durable {
		f.declared = append(f.declared, name+":"+kind)
	}
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestOrderSubmitted_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "coffeehouse.orders", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"coffeehouse.orders:topic"}, ch.declared)

	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	err = p.OrderSubmitted(context.Background(), domain.Order{
		ID:          "o1",
		OwnerID:     "u1",
		TotalItems:  3,
		TotalPrice:  decimal.RequireFromString("12.1"),
		SubmittedAt: at,
		Lines:       []domain.CartLine{{ItemID: 1, Name: "Dosa", UnitPrice: decimal.NewFromInt(4), Quantity: 3}},
	})
	require.NoError(t, err)
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, "coffeehouse.orders", got.exchange)
	assert.Equal(t, RoutingKeyOrderSubmitted, got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &ev))
	assert.Equal(t, "o1", ev.OrderID)
	assert.Equal(t, "12.10", ev.TotalPrice)
	assert.Equal(t, 3, ev.TotalItems)
	assert.True(t, ev.SubmittedAt.Equal(at))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestNewPublisher_DeclareFailure(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := newPublisher(ch, "x", nil)
	require.Error(t, err)
	assert.True(t, ch.closed)
}

func TestOrderSubmitted_PublishFailure(t *testing.T) {
	ch := &fakeChannel{publishErr: amqp.ErrClosed}
	p, err := newPublisher(ch, "x", nil)
	require.NoError(t, err)
	err = p.OrderSubmitted(context.Background(), domain.Order{ID: "o2"})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
