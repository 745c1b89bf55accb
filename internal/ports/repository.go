package ports

import (
	"context"
	"time"

	"cryptoMegaBot/internal/domain"
)

// TradeRepository defines persistence for Trade rows: identity by discord_id
// or timestamp range, status transitions, and the write-once created_at /
// closed_at fields.
type TradeRepository interface {
	// Create inserts a new Trade and returns its assigned ID.
	Create(ctx context.Context, t *domain.Trade) (int64, error)
	// Update persists mutable fields of an existing Trade. Implementations
	// must reject attempts to overwrite a non-null CreatedAt/ClosedAt.
	Update(ctx context.Context, t *domain.Trade) error
	// FindByDiscordID looks up the Trade bound to this external signal id.
	// Returns nil, nil if not found.
	FindByDiscordID(ctx context.Context, discordID string) (*domain.Trade, error)
	// FindByTimestampRange looks up a Trade whose Timestamp falls in [from, to).
	// Used to idempotently bind an initial signal to its pre-created row.
	FindByTimestampRange(ctx context.Context, from, to time.Time) (*domain.Trade, error)
	// FindByExchangeOrderID looks up the Trade owning this venue order id.
	FindByExchangeOrderID(ctx context.Context, venue domain.Venue, orderID int64) (*domain.Trade, error)
	// FindByID retrieves a Trade by its primary key.
	FindByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindLiveBySymbol returns Trades in OPEN or PARTIALLY_CLOSED for a symbol.
	FindLiveBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error)
	// FindLiveOlderThan returns live Trades whose CreatedAt predates the cutoff,
	// used by the status-sync loop's age window.
	FindLiveOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error)
	// FindClosedMissingPnL returns CLOSED Trades with a null PnlUSD or ExitPrice.
	FindClosedMissingPnL(ctx context.Context) ([]*domain.Trade, error)
	// FindAll returns all Trades, most recent first.
	FindAll(ctx context.Context) ([]*domain.Trade, error)
}

// AlertRepository defines persistence for follow-up Alert rows.
type AlertRepository interface {
	Create(ctx context.Context, a *domain.Alert) (int64, error)
	Update(ctx context.Context, a *domain.Alert) error
	FindByID(ctx context.Context, id int64) (*domain.Alert, error)
	FindByParentDiscordID(ctx context.Context, parentDiscordID string) ([]*domain.Alert, error)
}

// BalanceRepository upserts per venue x account-type x asset balance rows.
type BalanceRepository interface {
	Upsert(ctx context.Context, b *domain.Balance) error
	FindByVenueAsset(ctx context.Context, venue domain.Venue, accountType, asset string) (*domain.Balance, error)
	FindAll(ctx context.Context) ([]*domain.Balance, error)
}

// TransactionRepository records deduplicated venue income events.
type TransactionRepository interface {
	// Insert adds a transaction, ignoring it if its dedupe key already exists.
	// Returns true if a new row was inserted.
	Insert(ctx context.Context, t *domain.Transaction) (bool, error)
	FindByTimeRange(ctx context.Context, venue domain.Venue, from, to time.Time) ([]*domain.Transaction, error)
}
