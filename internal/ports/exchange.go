package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/domain"
)

// SymbolFilters holds the venue's per-symbol trading rules needed to
// quantize orders before submission.
type SymbolFilters struct {
	Symbol      string
	Status      string // e.g. "TRADING"
	StepSize    decimal.Decimal // LOT_SIZE
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	TickSize    decimal.Decimal // PRICE_FILTER
	MinNotional decimal.Decimal
	FetchedAt   time.Time
}

// OrderRequest describes a futures order to place. Quantity and price fields
// are expected to already be quantized by the caller (the trade coordinator,
// via internal/fees); the adapters submit them as given and do not check them
// against their filter caches.
type OrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Type          string // MARKET, LIMIT, STOP_MARKET, TAKE_PROFIT_MARKET
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero for MARKET
	StopPrice     decimal.Decimal // zero unless Type is a stop/take-profit variant
	ReduceOnly    bool
	ClosePosition bool
	TimeInForce   string // e.g. GTC; empty for MARKET
}

// OrderResult is the normalized response from placing, cancelling, or
// probing an order. Raw carries the verbatim venue payload as an opaque
// blob for audit, independent of whatever fields this struct surfaces.
type OrderResult struct {
	Raw          []byte
	OrderID      int64
	ClientOrderID string
	Symbol       string
	Side         domain.OrderSide
	Type         string
	Status       string // NEW, PARTIALLY_FILLED, FILLED, CANCELED, EXPIRED, ...
	Price        decimal.Decimal
	AvgPrice     decimal.Decimal
	OrigQuantity decimal.Decimal
	ExecutedQty  decimal.Decimal
	UpdateTime   time.Time
}

// HasOrderID reports whether the venue assigned an order id to this result —
// the sole success criterion for order placement per the north-star error
// handling rule: if the venue ever returned an orderId, the order is placed.
func (r *OrderResult) HasOrderID() bool {
	return r != nil && r.OrderID != 0
}

// PositionRisk represents the risk details for an open position.
type PositionRisk struct {
	Symbol           string
	PositionAmt      decimal.Decimal // positive for long, negative for short
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	UnRealizedProfit decimal.Decimal
	LiquidationPrice decimal.Decimal
	Leverage         int
}

// IsFlat reports whether this risk snapshot represents no position.
func (p *PositionRisk) IsFlat() bool {
	return p == nil || p.PositionAmt.IsZero()
}

// IncomeEvent is one row from the venue's income history (realized PnL,
// commission, funding fee, transfer, ...).
type IncomeEvent struct {
	Time     time.Time
	Type     domain.TransactionType
	Income   decimal.Decimal
	Asset    string
	Symbol   string
	TranID   string
	Raw      []byte
}

// AccountTrade is one fill from the venue's account trade history, used by
// the PnL backfill loop to recover realized PnL for a closed Trade.
type AccountTrade struct {
	OrderID     int64
	Symbol      string
	Side        domain.OrderSide
	Price       decimal.Decimal
	Qty         decimal.Decimal
	RealizedPnl decimal.Decimal
	Commission  decimal.Decimal
	Time        time.Time
	Raw         []byte
}

// UserDataEventKind classifies a user-data stream event.
type UserDataEventKind string

const (
	EventOrderTradeUpdate UserDataEventKind = "ORDER_TRADE_UPDATE"
	EventAccountUpdate    UserDataEventKind = "ACCOUNT_UPDATE"
)

// UserDataEvent is a normalized execution/account event off the user-data
// WebSocket stream.
type UserDataEvent struct {
	Kind      UserDataEventKind
	EventTime time.Time
	Order     *OrderResult // set for EventOrderTradeUpdate
	Raw       []byte
}

// ExchangeClient defines the interface for interacting with a futures venue.
// Binance and KuCoin adapters both satisfy this; the rest of the system is
// written against the interface alone.
type ExchangeClient interface {
	Venue() domain.Venue

	// GetSymbolFilters returns the cached (or freshly fetched) trading rules
	// for a symbol, or ports.ErrSymbolUnsupported if the symbol is unknown
	// or not in TRADING status.
	GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error)

	// GetMarkPrice retrieves the current mark price for a given symbol.
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetOrderBookTop retrieves the best bid/ask for a symbol.
	GetOrderBookTop(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error)

	// GetAccountBalance retrieves the available balance for a specific asset.
	GetAccountBalance(ctx context.Context, asset string) (decimal.Decimal, error)

	// ChangeLeverage sets the leverage for a specific symbol.
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error

	// CreateFuturesOrder submits an order. Success is solely the presence of
	// OrderID in the result; callers must not infer success/failure from
	// Status or any later probe.
	CreateFuturesOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// CreatePositionTPSL attempts to install take-profit/stop-loss via the
	// venue's position-mode TP/SL API. Implementations that lack this
	// capability (e.g. KuCoin) return ports.ErrInvalidRequest so the caller
	// falls back to separate reduce-only stop orders.
	CreatePositionTPSL(ctx context.Context, symbol string, side domain.OrderSide, tp, sl *decimal.Decimal) (*OrderResult, error)

	// CancelFuturesOrder cancels a single open order.
	CancelFuturesOrder(ctx context.Context, symbol string, orderID int64) error

	// CancelAllFuturesOrders cancels every open order for a symbol.
	CancelAllFuturesOrders(ctx context.Context, symbol string) error

	// GetOpenOrders lists open orders for a symbol (or all symbols if empty).
	GetOpenOrders(ctx context.Context, symbol string) ([]*OrderResult, error)

	// GetOrderStatus probes an order's current state. A failure here must
	// never be treated as evidence the order was not placed.
	GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*OrderResult, error)

	// GetPositionRisk retrieves the risk information for a symbol. Returns
	// nil, nil if there is no open position.
	GetPositionRisk(ctx context.Context, symbol string) (*PositionRisk, error)

	// GetAllPositionRisk retrieves risk information for every symbol with a
	// non-zero position, used by the active-futures audit loop.
	GetAllPositionRisk(ctx context.Context) ([]*PositionRisk, error)

	// GetIncome retrieves income events (PnL, commission, funding, transfer)
	// within a time window.
	GetIncome(ctx context.Context, symbol string, from, to time.Time) ([]IncomeEvent, error)

	// GetAccountTrades retrieves fills within a time window.
	GetAccountTrades(ctx context.Context, symbol string, from, to time.Time) ([]AccountTrade, error)

	// CreateListenKey opens a user-data stream session and returns its key.
	CreateListenKey(ctx context.Context) (string, error)
	// KeepAliveListenKey extends a listen key's validity.
	KeepAliveListenKey(ctx context.Context, listenKey string) error
	// CloseListenKey releases a listen key.
	CloseListenKey(ctx context.Context, listenKey string) error

	// StreamUserData opens the user-data WebSocket for a listen key. Delivery
	// order on the returned handler calls matches the connection's order.
	StreamUserData(ctx context.Context, listenKey string, handler func(UserDataEvent), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
