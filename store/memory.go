package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
)

// Compile-time check that Memory implements ledger.Store
var _ ledger.Store = (*Memory)(nil)

type holdingKey struct {
	user   string
	symbol string
}

// Memory is an in-process ledger.Store. Update units for the same user are
// serialized by a per-user mutex; their writes are staged and applied under the
// store lock at commit, so View never observes a half-applied unit.
type Memory struct {
	mu       sync.RWMutex
	stocks   map[string]ledger.Stock
	wallets  map[string]ledger.Wallet
	holdings map[holdingKey]ledger.Holding
	orders   map[string][]ledger.Order // per user, in commit order

	nextStockID atomic.Int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		stocks:   make(map[string]ledger.Stock),
		wallets:  make(map[string]ledger.Wallet),
		holdings: make(map[holdingKey]ledger.Holding),
		orders:   make(map[string][]ledger.Order),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Memory) userLock(userID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// Update runs fn against staged state and commits it if fn returns nil.
func (m *Memory) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		m:        m,
		held:     make(map[string]*sync.Mutex),
		stocks:   make(map[string]ledger.Stock),
		wallets:  make(map[string]ledger.Wallet),
		holdings: make(map[holdingKey]stagedHolding),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tx.commitLocked()
	return nil
}

// View runs fn under the store read lock.
func (m *Memory) View(ctx context.Context, fn func(ledger.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(memoryView{m})
}

func (m *Memory) Close() error { return nil }

// memoryView reads committed state. Callers hold m.mu.
type memoryView struct{ m *Memory }

func (v memoryView) GetStock(_ context.Context, symbol string) (ledger.Stock, error) {
	s, ok := v.m.stocks[symbol]
	if !ok {
		return ledger.Stock{}, fmt.Errorf("get stock %q: %w", symbol, ledger.ErrSymbolNotFound)
	}
	return s, nil
}

func (v memoryView) ListStocks(_ context.Context) ([]ledger.Stock, error) {
	out := make([]ledger.Stock, 0, len(v.m.stocks))
	for _, s := range v.m.stocks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (v memoryView) GetWallet(_ context.Context, userID string) (ledger.Wallet, error) {
	w, ok := v.m.wallets[userID]
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("get wallet %q: %w", userID, ledger.ErrWalletNotFound)
	}
	return w, nil
}

func (v memoryView) GetHolding(_ context.Context, userID, symbol string) (ledger.Holding, error) {
	h, ok := v.m.holdings[holdingKey{userID, symbol}]
	if !ok {
		return ledger.Holding{}, fmt.Errorf("get holding %s/%s: %w", userID, symbol, ledger.ErrNotFound)
	}
	return h, nil
}

func (v memoryView) ListHoldings(_ context.Context, userID string) ([]ledger.Holding, error) {
	var out []ledger.Holding
	for k, h := range v.m.holdings {
		if k.user == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (v memoryView) ListOrders(_ context.Context, userID string, limit int) ([]ledger.Order, error) {
	all := v.m.orders[userID]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ledger.Order, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

type stagedHolding struct {
	h       ledger.Holding
	deleted bool
}

// memoryTx stages writes until commit. Reads see staged values first.
type memoryTx struct {
	m    *Memory
	held map[string]*sync.Mutex

	stocks   map[string]ledger.Stock
	wallets  map[string]ledger.Wallet
	holdings map[holdingKey]stagedHolding
	orders   []ledger.Order
}

func (tx *memoryTx) lock(userID string) {
	if _, ok := tx.held[userID]; ok {
		return
	}
	l := tx.m.userLock(userID)
	l.Lock()
	tx.held[userID] = l
}

func (tx *memoryTx) release() {
	for _, l := range tx.held {
		l.Unlock()
	}
	tx.held = nil
}

func (tx *memoryTx) view(fn func(memoryView)) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	fn(memoryView{tx.m})
}

func (tx *memoryTx) GetStock(ctx context.Context, symbol string) (s ledger.Stock, err error) {
	if s, ok := tx.stocks[symbol]; ok {
		return s, nil
	}
	tx.view(func(v memoryView) { s, err = v.GetStock(ctx, symbol) })
	return s, err
}

func (tx *memoryTx) ListStocks(ctx context.Context) (out []ledger.Stock, err error) {
	tx.view(func(v memoryView) { out, err = v.ListStocks(ctx) })
	if err != nil {
		return nil, err
	}
	for _, s := range tx.stocks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (tx *memoryTx) GetOrCreateStock(ctx context.Context, symbol, name string) (ledger.Stock, error) {
	s, err := tx.GetStock(ctx, symbol)
	if err == nil {
		return s, nil
	}
	if name == "" {
		name = symbol
	}
	s = ledger.Stock{ID: tx.m.nextStockID.Add(1), Symbol: symbol, Name: name}
	tx.stocks[symbol] = s
	return s, nil
}

func (tx *memoryTx) GetWallet(ctx context.Context, userID string) (w ledger.Wallet, err error) {
	if w, ok := tx.wallets[userID]; ok {
		return w, nil
	}
	tx.view(func(v memoryView) { w, err = v.GetWallet(ctx, userID) })
	return w, err
}

func (tx *memoryTx) CreateWallet(ctx context.Context, userID string, balance decimal.Decimal) (ledger.Wallet, error) {
	tx.lock(userID)
	if w, err := tx.GetWallet(ctx, userID); err == nil {
		return w, nil
	}
	w := ledger.Wallet{UserID: userID, Balance: balance, UpdatedAt: now()}
	tx.wallets[userID] = w
	return w, nil
}

func (tx *memoryTx) LockWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	tx.lock(userID)
	return tx.GetWallet(ctx, userID)
}

func (tx *memoryTx) SetWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	tx.lock(userID)
	w, err := tx.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	w.Balance = balance
	w.UpdatedAt = now()
	tx.wallets[userID] = w
	return nil
}

func (tx *memoryTx) GetHolding(ctx context.Context, userID, symbol string) (h ledger.Holding, err error) {
	if sh, ok := tx.holdings[holdingKey{userID, symbol}]; ok {
		if sh.deleted {
			return ledger.Holding{}, fmt.Errorf("get holding %s/%s: %w", userID, symbol, ledger.ErrNotFound)
		}
		return sh.h, nil
	}
	tx.view(func(v memoryView) { h, err = v.GetHolding(ctx, userID, symbol) })
	return h, err
}

func (tx *memoryTx) ListHoldings(ctx context.Context, userID string) ([]ledger.Holding, error) {
	var committed []ledger.Holding
	var err error
	tx.view(func(v memoryView) { committed, err = v.ListHoldings(ctx, userID) })
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]ledger.Holding, len(committed))
	for _, h := range committed {
		bySymbol[h.Symbol] = h
	}
	for k, sh := range tx.holdings {
		if k.user != userID {
			continue
		}
		if sh.deleted {
			delete(bySymbol, k.symbol)
		} else {
			bySymbol[k.symbol] = sh.h
		}
	}

	out := make([]ledger.Holding, 0, len(bySymbol))
	for _, h := range bySymbol {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (tx *memoryTx) LockHolding(ctx context.Context, userID, symbol string) (ledger.Holding, error) {
	tx.lock(userID)
	return tx.GetHolding(ctx, userID, symbol)
}

func (tx *memoryTx) PutHolding(_ context.Context, h ledger.Holding) error {
	if h.Quantity <= 0 {
		return fmt.Errorf("put holding %s/%s: quantity %d must be positive", h.UserID, h.Symbol, h.Quantity)
	}
	tx.lock(h.UserID)
	h.UpdatedAt = now()
	tx.holdings[holdingKey{h.UserID, h.Symbol}] = stagedHolding{h: h}
	return nil
}

func (tx *memoryTx) DeleteHolding(_ context.Context, userID, symbol string) error {
	tx.lock(userID)
	tx.holdings[holdingKey{userID, symbol}] = stagedHolding{deleted: true}
	return nil
}

func (tx *memoryTx) ListOrders(ctx context.Context, userID string, limit int) (out []ledger.Order, err error) {
	tx.view(func(v memoryView) { out, err = v.ListOrders(ctx, userID, 0) })
	if err != nil {
		return nil, err
	}
	var staged []ledger.Order
	for i := len(tx.orders) - 1; i >= 0; i-- {
		if tx.orders[i].UserID == userID {
			staged = append(staged, tx.orders[i])
		}
	}
	out = append(staged, out...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memoryTx) InsertOrder(_ context.Context, o ledger.Order) error {
	if o.ID == "" {
		return fmt.Errorf("insert order: missing id")
	}
	tx.lock(o.UserID)
	tx.orders = append(tx.orders, o)
	return nil
}

// commitLocked applies staged writes. Caller holds m.mu for writing.
func (tx *memoryTx) commitLocked() {
	m := tx.m
	for sym, s := range tx.stocks {
		if _, ok := m.stocks[sym]; !ok {
			m.stocks[sym] = s
		}
	}
	for id, w := range tx.wallets {
		m.wallets[id] = w
	}
	for k, sh := range tx.holdings {
		if sh.deleted {
			delete(m.holdings, k)
		} else {
			m.holdings[k] = sh.h
		}
	}
	for _, o := range tx.orders {
		m.orders[o.UserID] = append(m.orders[o.UserID], o)
	}
}

// Reset clears all data. Useful for test setup.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks = make(map[string]ledger.Stock)
	m.wallets = make(map[string]ledger.Wallet)
	m.holdings = make(map[holdingKey]ledger.Holding)
	m.orders = make(map[string][]ledger.Order)
}
