package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockledger/ledger"
)

func TestHubSubscribeAndCancel(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	a, cancelA := h.Subscribe(4, nil)
	b, cancelB := h.Subscribe(4, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(1)
	h.Publish(2)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 2, <-a)
	assert.Equal(t, 2, <-b)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok, "cancelled channel must be closed")
	assert.Equal(t, 1, h.Subscribers())

	h.Close()
	_, ok = <-b
	assert.False(t, ok)
	cancelB()

	c, _ := h.Subscribe(1, nil)
	_, ok = <-c
	assert.False(t, ok, "subscribe after close returns a closed channel")
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	h := NewHub[string]()
	ch, cancel := h.Subscribe(1, nil)
	defer cancel()

	h.Publish("a")
	h.Publish("b")

	assert.Equal(t, "a", <-ch)
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestHubPublisherFiltersByUser(t *testing.T) {
	t.Parallel()

	h := NewHub[OrderExecuted]()
	mine, cancel := h.Subscribe(2, ForUser("u1"))
	defer cancel()

	p := HubPublisher{Hub: h}
	require.NoError(t, p.PublishOrder(context.Background(), OrderExecuted{Order: ledger.Order{ID: "x", UserID: "u2"}}))
	require.NoError(t, p.PublishOrder(context.Background(), OrderExecuted{Order: ledger.Order{ID: "y", UserID: "u1"}}))

	select {
	case ev := <-mine:
		assert.Equal(t, "y", ev.Order.ID)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	t.Parallel()

	fw := &fakeWriter{}
	p := &KafkaPublisher{w: fw}

	o := ledger.Order{
		ID: "01H", UserID: "u1", Symbol: "AAPL", Side: ledger.Buy, Quantity: 10,
		Price: decimal.RequireFromString("50"), TotalAmount: decimal.RequireFromString("500"),
		Status: ledger.StatusCompleted, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishOrder(context.Background(), OrderExecuted{Order: o}))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "u1|AAPL", string(fw.msgs[0].Key))

	var got OrderExecuted
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &got))
	assert.Equal(t, "01H", got.Order.ID)
	assert.True(t, got.Order.TotalAmount.Equal(o.TotalAmount))

	fw.err = errors.New("broker down")
	assert.ErrorContains(t, p.PublishOrder(context.Background(), OrderExecuted{Order: o}), "broker down")
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(nil, "orders")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "orders")
	require.NoError(t, err)
	kw, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 1, kw.BatchSize, "each order is flushed without batching")
	assert.NoError(t, p.Close())
}

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	bad := &KafkaPublisher{w: &fakeWriter{err: errors.New("boom")}}
	m := Multi{Discard{}, bad}
	assert.ErrorContains(t, m.PublishOrder(context.Background(), OrderExecuted{}), "boom")
	assert.NoError(t, Multi{Discard{}}.PublishOrder(context.Background(), OrderExecuted{}))
}
