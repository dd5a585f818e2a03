package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/ledger"
)

var orderHeader = []string{"id", "created_at", "user_id", "symbol", "side", "quantity", "price", "total_amount", "status"}

// CSVJournal appends one row per executed order. It is also an
// events.Publisher so it can sit behind the executor.
type CSVJournal struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

// NewCSV opens path for appending and writes the header to a new file.
func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(orderHeader); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &CSVJournal{w: w, f: f}, nil
}

func (j *CSVJournal) RecordOrder(o ledger.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.w.Write(orderRow(o)); err != nil {
		return fmt.Errorf("journal order %s: %w", o.ID, err)
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) PublishOrder(_ context.Context, ev events.OrderExecuted) error {
	return j.RecordOrder(ev.Order)
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}

// WriteOrdersCSV writes orders, header first, to w.
func WriteOrdersCSV(w io.Writer, orders []ledger.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if err := cw.Write(orderRow(o)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func orderRow(o ledger.Order) []string {
	return []string{
		o.ID,
		o.CreatedAt.UTC().Format(time.RFC3339Nano),
		o.UserID,
		o.Symbol,
		o.Side.String(),
		strconv.FormatInt(o.Quantity, 10),
		o.Price.String(),
		o.TotalAmount.String(),
		string(o.Status),
	}
}
