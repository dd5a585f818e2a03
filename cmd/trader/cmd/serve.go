package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/api"
	"github.com/rustyeddy/stockledger/config"
	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
	"github.com/rustyeddy/stockledger/orders"
	"github.com/rustyeddy/stockledger/portfolio"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and price stream",
	Long: `Start the HTTP API, the websocket price stream and the reference price feed.

The feed is chosen by feed.kind: "simulator" random-walks the listed stocks,
"http" reads a newline-delimited JSON price stream, "none" serves opening
prices only.

Example:
  trader serve --config stockledger.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	prices := market.NewPriceStore()
	now := time.Now().UTC()
	for sym, p := range market.OpeningPrices() {
		prices.Set(market.Quote{Symbol: sym, Price: p, Time: now})
	}

	quotes := events.NewHub[market.Quote]()
	orderHub := events.NewHub[events.OrderExecuted]()
	defer quotes.Close()
	defer orderHub.Close()

	exec, err := a.executor(events.HubPublisher{Hub: orderHub})
	if err != nil {
		return err
	}

	dir, err := market.NewDirectory(a.store, cfg.Cache.MaxCost, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("stock cache: %w", err)
	}
	defer dir.Close()

	if feed, err := newFeed(ctx, cfg, a.store); err != nil {
		return err
	} else if feed != nil {
		runner := &market.Runner{Feed: feed, Store: prices, Hub: quotes, Retry: cfg.Feed.Retry, Log: log}
		go func() {
			if err := runner.Run(ctx); err != nil {
				log.Error("price feed stopped", zap.Error(err))
			}
		}()
	}

	srv := api.NewServer(api.Deps{
		Executor:    exec,
		Wallets:     a.wallets(),
		Portfolio:   portfolio.NewProjector(a.store),
		Orders:      orders.NewQuery(a.store),
		Directory:   dir,
		Prices:      prices,
		Quotes:      quotes,
		OrderEvents: orderHub,
	}, log, cfg.Server.CORSOrigin)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Kind),
			zap.String("feed", cfg.Feed.Kind))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Closing the hubs ends every open websocket stream.
	quotes.Close()
	orderHub.Close()

	ctxShut, cancelShut := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShut()
	if err := server.Shutdown(ctxShut); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// newFeed returns nil when feed.kind is "none".
func newFeed(ctx context.Context, cfg *config.Config, s ledger.Store) (market.Feed, error) {
	switch cfg.Feed.Kind {
	case "simulator":
		return market.NewSimulator(market.OpeningPrices(), cfg.Feed.Interval, cfg.Feed.Seed), nil
	case "http":
		var symbols []string
		err := s.View(ctx, func(r ledger.Reader) error {
			stocks, err := r.ListStocks(ctx)
			for _, st := range stocks {
				symbols = append(symbols, st.Symbol)
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list stocks for feed: %w", err)
		}
		return &market.HTTPFeed{URL: cfg.Feed.URL, Token: cfg.Feed.Token, Symbols: symbols}, nil
	default:
		return nil, nil
	}
}
