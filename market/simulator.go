package market

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var minPrice = decimal.RequireFromString("0.01")

// Simulator is a random-walk Feed. Every Interval each symbol moves by at
// most MaxMove (a fraction, 0.02 is two percent) and is rounded to cents.
type Simulator struct {
	Interval time.Duration
	MaxMove  float64

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
}

// NewSimulator starts the walk at the given prices.
func NewSimulator(start map[string]decimal.Decimal, interval time.Duration, seed int64) *Simulator {
	prices := make(map[string]decimal.Decimal, len(start))
	for k, v := range start {
		prices[k] = v
	}
	return &Simulator{
		Interval: interval,
		MaxMove:  0.02,
		rng:      rand.New(rand.NewSource(seed)),
		prices:   prices,
	}
}

// Step moves every symbol once and returns the new quotes sorted by symbol.
func (s *Simulator) Step(at time.Time) []Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.prices))
	for sym := range s.prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		prev := s.prices[sym]
		move := decimal.NewFromFloat((s.rng.Float64()*2 - 1) * s.MaxMove)
		next := prev.Add(prev.Mul(move)).Round(2)
		if next.LessThan(minPrice) {
			next = minPrice
		}
		s.prices[sym] = next

		change := next.Sub(prev)
		pct := decimal.Zero
		if prev.IsPositive() {
			pct = change.Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
		}
		out = append(out, Quote{
			Symbol:        sym,
			Price:         next,
			Change:        change,
			ChangePercent: pct,
			Time:          at,
		})
	}
	return out
}

func (s *Simulator) Stream(ctx context.Context, emit func(Quote)) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			for _, q := range s.Step(now.UTC()) {
				emit(q)
			}
		}
	}
}
