package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/config"
	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/journal"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
	"github.com/rustyeddy/stockledger/store"
	"github.com/rustyeddy/stockledger/trade"
	"github.com/rustyeddy/stockledger/wallet"
)

// app holds what every ledger command needs.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store ledger.Store

	closers []func() error
}

// loadConfig reads --config and the environment, then applies --db and
// --log-level on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Store.Kind = store.KindSQLite
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: s}
	a.closers = append(a.closers, s.Close)

	if cfg.Store.SeedStocks {
		if err := store.Seed(ctx, s, market.SeedStocks()); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed stocks: %w", err)
		}
	}
	return a, nil
}

// publisher fans executed orders out to extra plus the configured journal
// and Kafka topic.
func (a *app) publisher(extra ...events.Publisher) (events.Publisher, error) {
	pubs := events.Multi(extra)

	if path := a.cfg.Journal.OrdersCSV; path != "" {
		j, err := journal.NewCSV(path)
		if err != nil {
			return nil, fmt.Errorf("open order journal: %w", err)
		}
		a.closers = append(a.closers, j.Close)
		pubs = append(pubs, j)
	}

	if a.cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		a.closers = append(a.closers, kp.Close)
		pubs = append(pubs, kp)
		a.log.Info("publishing orders to kafka",
			zap.Strings("brokers", a.cfg.Kafka.Brokers),
			zap.String("topic", a.cfg.Kafka.Topic))
	}

	if len(pubs) == 0 {
		return events.Discard{}, nil
	}
	return pubs, nil
}

func (a *app) executor(extra ...events.Publisher) (*trade.Executor, error) {
	pub, err := a.publisher(extra...)
	if err != nil {
		return nil, err
	}
	e := trade.NewExecutor(a.store, pub, a.log)
	e.Retry = a.cfg.Trading.Retry
	return e, nil
}

func (a *app) wallets() *wallet.Service {
	w := wallet.NewService(a.store, a.log)
	w.Retry = a.cfg.Trading.Retry
	return w
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.log.Sync()
	return errors.Join(errs...)
}
