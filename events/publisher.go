package events

import (
	"context"
	"errors"

	"github.com/rustyeddy/stockledger/ledger"
)

// OrderExecuted is emitted after an order commits.
type OrderExecuted struct {
	Order ledger.Order `json:"order"`
}

// Publisher receives committed orders. Publishing never affects the ledger.
type Publisher interface {
	PublishOrder(ctx context.Context, ev OrderExecuted) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) PublishOrder(context.Context, OrderExecuted) error { return nil }

// HubPublisher forwards events to an in-process hub.
type HubPublisher struct {
	Hub *Hub[OrderExecuted]
}

func (p HubPublisher) PublishOrder(_ context.Context, ev OrderExecuted) error {
	p.Hub.Publish(ev)
	return nil
}

// Multi publishes to each publisher in turn and joins their errors.
type Multi []Publisher

func (m Multi) PublishOrder(ctx context.Context, ev OrderExecuted) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishOrder(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForUser is a Hub filter that keeps one user's orders.
func ForUser(userID string) func(OrderExecuted) bool {
	return func(ev OrderExecuted) bool { return ev.Order.UserID == userID }
}
