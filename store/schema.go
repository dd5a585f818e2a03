package store

// SQLiteSchema stores decimals as TEXT so no value ever passes through REAL.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS stocks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS wallets (
	user_id TEXT PRIMARY KEY,
	balance TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL REFERENCES stocks(symbol),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	average_price TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL REFERENCES stocks(symbol),
	side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	price TEXT NOT NULL,
	total_amount TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC, id DESC);
`

// PostgresSchema mirrors SQLiteSchema with native NUMERIC and TIMESTAMPTZ.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS stocks (
	id BIGSERIAL PRIMARY KEY,
	symbol TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS wallets (
	user_id TEXT PRIMARY KEY,
	balance NUMERIC NOT NULL CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS holdings (
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL REFERENCES stocks(symbol),
	quantity BIGINT NOT NULL CHECK (quantity > 0),
	average_price NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL REFERENCES stocks(symbol),
	side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	quantity BIGINT NOT NULL CHECK (quantity > 0),
	price NUMERIC NOT NULL CHECK (price > 0),
	total_amount NUMERIC NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC, id DESC);
`
