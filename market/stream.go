package market

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPFeed reads a newline-delimited JSON price stream:
//
//	{"type":"PRICE","symbol":"AAPL","price":"175.50","time":"2024-01-02T15:04:05Z"}
//
// HEARTBEAT lines and unknown types are skipped.
type HTTPFeed struct {
	URL     string
	Token   string
	Symbols []string
	HTTP    *http.Client
}

type streamMsg struct {
	Type   string `json:"type"`
	Time   string `json:"time"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *HTTPFeed) Stream(ctx context.Context, emit func(Quote)) error {
	if f.URL == "" {
		return fmt.Errorf("price stream: missing url")
	}

	httpClient := f.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	u, err := url.Parse(f.URL)
	if err != nil {
		return err
	}
	if len(f.Symbols) > 0 {
		q := u.Query()
		q.Set("symbols", strings.Join(f.Symbols, ","))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return fmt.Errorf("price stream http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var msg streamMsg
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return fmt.Errorf("price stream: bad json: %w (line=%q)", err, trimForErr(line))
		}
		if !strings.EqualFold(msg.Type, "PRICE") || msg.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(msg.Price)
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("price stream: bad price %q for %s", msg.Price, msg.Symbol)
		}

		at := time.Now().UTC()
		if msg.Time != "" {
			if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
				at = t.UTC()
			}
		}
		emit(Quote{Symbol: msg.Symbol, Price: price, Time: at})
	}

	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
