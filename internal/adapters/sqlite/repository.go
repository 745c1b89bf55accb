package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoMegaBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository over a single SQLite database
// file; its Alerts, Balances and Transactions methods return the alert,
// balance and transaction repositories over the same file.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens the database, applies connection-pool settings suited
// to SQLite's single-writer model, and ensures the schema exists.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradebot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writers internally; a single Go-level connection
	// avoids "database is locked" errors under WAL with busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	discord_id TEXT UNIQUE,
	timestamp TIMESTAMP NOT NULL,
	venue TEXT NOT NULL,
	coin_symbol TEXT NOT NULL,
	position_type TEXT NOT NULL,
	entry_prices TEXT NOT NULL,      -- JSON array
	stop_loss REAL,
	take_profits TEXT NOT NULL,      -- JSON array
	order_type TEXT NOT NULL,
	quantity_multiplier INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL,
	exchange_order_id INTEGER NOT NULL DEFAULT 0,
	position_size REAL NOT NULL DEFAULT 0,
	entry_price REAL NOT NULL DEFAULT 0,
	exit_price REAL,
	pnl_usd REAL,
	binance_response BLOB,
	original_order_response BLOB,
	order_status_response BLOB,
	tpsl_orders TEXT NOT NULL DEFAULT '[]', -- JSON array of ProtectiveOrder
	sync_error_count INTEGER NOT NULL DEFAULT 0,
	manual_verification_needed INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT,
	merged_into_trade_id INTEGER,
	merge_reason TEXT,
	merged_at TIMESTAMP,
	created_at TIMESTAMP,
	closed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(coin_symbol, status);
CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_exchange_order ON trades(venue, exchange_order_id);

CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_discord_id TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	content TEXT NOT NULL,
	trader TEXT,
	action TEXT NOT NULL,
	close_percent REAL NOT NULL DEFAULT 0,
	binance_response BLOB,
	error TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_parent ON alerts(parent_discord_id);

CREATE TABLE IF NOT EXISTS balances (
	venue TEXT NOT NULL,
	account_type TEXT NOT NULL,
	asset TEXT NOT NULL,
	free REAL NOT NULL,
	locked REAL NOT NULL,
	total REAL NOT NULL,
	unrealized_pnl REAL NOT NULL DEFAULT 0,
	last_updated TIMESTAMP NOT NULL,
	PRIMARY KEY (venue, account_type, asset)
);

CREATE TABLE IF NOT EXISTS transaction_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	venue TEXT NOT NULL,
	time TIMESTAMP NOT NULL,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	asset TEXT NOT NULL,
	symbol TEXT,
	UNIQUE(venue, time, type, amount, asset, symbol)
);

CREATE INDEX IF NOT EXISTS idx_transactions_venue_time ON transaction_history(venue, time);
`

func (r *Repository) initializeSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// AlertRepo implements ports.AlertRepository against the same database file.
// It is split into its own receiver type because Go cannot host two
// differently-shaped Create/Update/FindByID method sets on one struct.
type AlertRepo struct{ db *sql.DB }

// Alerts returns the ports.AlertRepository view of this database.
func (r *Repository) Alerts() *AlertRepo { return &AlertRepo{db: r.db} }

// BalanceRepo implements ports.BalanceRepository against the same database file.
type BalanceRepo struct{ db *sql.DB }

// Balances returns the ports.BalanceRepository view of this database.
func (r *Repository) Balances() *BalanceRepo { return &BalanceRepo{db: r.db} }

// TransactionRepo implements ports.TransactionRepository against the same database file.
type TransactionRepo struct{ db *sql.DB }

// Transactions returns the ports.TransactionRepository view of this database.
func (r *Repository) Transactions() *TransactionRepo { return &TransactionRepo{db: r.db} }

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
