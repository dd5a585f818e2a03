package journal

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/portfolio"
)

func sampleOrder() ledger.Order {
	return ledger.Order{
		ID:          "01HV7Z3KQ8ABCDEF",
		UserID:      "u1",
		Symbol:      "AAPL",
		Side:        ledger.Buy,
		Quantity:    10,
		Price:       decimal.RequireFromString("175.5"),
		TotalAmount: decimal.RequireFromString("1755"),
		Status:      ledger.StatusCompleted,
		CreatedAt:   time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC),
	}
}

func TestFormatMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"1234.5", "$1,234.50"},
		{"0.004", "$0.00"},
		{"0.005", "$0.01"},
		{"1000000", "$1,000,000.00"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatOrderOrg(t *testing.T) {
	t.Parallel()

	result := FormatOrderOrg(sampleOrder())

	assert.Contains(t, result, "** BUY 10 AAPL @ $175.50 (01HV7Z3K)")

	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":ORDER_ID: 01HV7Z3KQ8ABCDEF")
	assert.Contains(t, result, ":ID: 01HV7Z3KQ8ABCDEF")
	assert.Contains(t, result, ":USER: u1")
	assert.Contains(t, result, ":SYMBOL: AAPL")
	assert.Contains(t, result, ":SIDE: BUY")
	assert.Contains(t, result, ":QUANTITY: 10")
	assert.Contains(t, result, ":PRICE: 175.5")
	assert.Contains(t, result, ":TOTAL: $1,755.00")
	assert.Contains(t, result, ":STATUS: completed")
	assert.Contains(t, result, ":CREATED_AT: 2024-03-15T10:30:45Z")
	assert.Contains(t, result, ":END:")

	assert.Contains(t, result, "*** Thesis")
	assert.Contains(t, result, "*** Review")
}

func TestFormatOrderOrgShortID(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	o.ID = "short"
	assert.Contains(t, FormatOrderOrg(o), "(short)")
}

func TestFormatOrdersOrg(t *testing.T) {
	t.Parallel()

	assert.Empty(t, FormatOrdersOrg(nil))

	a := sampleOrder()
	b := sampleOrder()
	b.ID = "second-order-id"
	b.Side = ledger.Sell

	result := FormatOrdersOrg([]ledger.Order{a, b})
	assert.Equal(t, 2, strings.Count(result, ":PROPERTIES:"))
	assert.Contains(t, result, "\n\n** SELL 10 AAPL")
}

func TestFormatPortfolioOrg(t *testing.T) {
	t.Parallel()

	positions := []portfolio.Position{
		{
			Symbol:              "AAPL",
			Quantity:            10,
			AveragePrice:        decimal.NewFromInt(100),
			CurrentPrice:        decimal.NewFromInt(110),
			MarketValue:         decimal.NewFromInt(1100),
			UnrealizedPL:        decimal.NewFromInt(100),
			UnrealizedPLPercent: decimal.NewFromInt(10),
			Priced:              true,
		},
		{
			Symbol:       "ZZZ",
			Quantity:     1,
			AveragePrice: decimal.NewFromInt(5),
			CurrentPrice: decimal.NewFromInt(5),
			MarketValue:  decimal.NewFromInt(5),
		},
	}
	sum := portfolio.Summarize(decimal.NewFromInt(500), positions)

	result := FormatPortfolioOrg(positions, sum)
	assert.Contains(t, result, "| AAPL | 10 | $100.00 | $110.00 | $1,100.00 | $100.00 | 10.00 |")
	assert.Contains(t, result, "| ZZZ | 1 | $5.00 | $5.00* |")
	assert.Contains(t, result, "- Cash: $500.00")
	assert.Contains(t, result, "- Equity: $1,605.00")
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "orders.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	require.NoError(t, err)
	assert.Equal(t, orderHeader, header)
}

func TestCSVJournalRecordOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "orders.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)

	require.NoError(t, j.RecordOrder(sampleOrder()))
	sell := sampleOrder()
	sell.ID = "second"
	sell.Side = ledger.Sell
	require.NoError(t, j.PublishOrder(context.Background(), events.OrderExecuted{Order: sell}))
	require.NoError(t, j.Close())

	// Reopening appends without repeating the header.
	j, err = NewCSV(path)
	require.NoError(t, err)
	third := sampleOrder()
	third.ID = "third"
	require.NoError(t, j.RecordOrder(third))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, []string{
		"01HV7Z3KQ8ABCDEF", "2024-03-15T10:30:45Z", "u1", "AAPL", "BUY", "10", "175.5", "1755", "completed",
	}, records[1])
	assert.Equal(t, "SELL", records[2][4])
	assert.Equal(t, "third", records[3][0])
}

func TestCSVJournalIsPublisher(t *testing.T) {
	t.Parallel()

	var _ events.Publisher = (*CSVJournal)(nil)
	var _ Journal = (*CSVJournal)(nil)
}

func TestWriteOrdersCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteOrdersCSV(&buf, []ledger.Order{sampleOrder()}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, orderHeader, records[0])
	assert.Equal(t, "1755", records[1][7])
}
