package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/pkg/retry"
)

// Feed delivers quotes to emit until ctx is done or the connection fails.
type Feed interface {
	Stream(ctx context.Context, emit func(Quote)) error
}

// Runner pumps a Feed into a PriceStore and a quote Hub. A feed that fails is
// reconnected under the Retry policy; the budget starts over whenever a
// connection delivered at least one quote before it failed.
type Runner struct {
	Feed  Feed
	Store *PriceStore
	Hub   *events.Hub[Quote]
	Retry retry.Config
	Log   *zap.Logger
}

// Run blocks until ctx is done (returning nil) or the retry budget is spent.
func (r *Runner) Run(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	emit := func(q Quote) {
		q = r.Store.Set(q)
		if r.Hub != nil {
			r.Hub.Publish(q)
		}
	}

	for {
		var delivered bool
		_, err := retry.Do(ctx, r.Retry,
			// A connection that delivered ends this budget so the outer
			// loop can start a fresh one.
			func(err error) bool { return ctx.Err() == nil && !delivered },
			func(attempt int, err error, backoff time.Duration) {
				log.Warn("price feed reconnecting",
					zap.Int("attempt", attempt),
					zap.Duration("backoff", backoff),
					zap.Error(err))
			},
			func() (struct{}, error) {
				delivered = false
				err := r.Feed.Stream(ctx, func(q Quote) {
					delivered = true
					emit(q)
				})
				if err == nil && ctx.Err() == nil {
					err = errors.New("feed closed")
				}
				return struct{}{}, err
			})

		if ctx.Err() != nil {
			return nil
		}
		if !delivered {
			return fmt.Errorf("price feed: %w", err)
		}
		log.Info("price feed dropped after delivering quotes; starting a new retry budget", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.Retry.InitialBackoff):
		}
	}
}
