package domain

import "time"

// ProtectiveOrder is one TP or SL order placed against an open Trade.
type ProtectiveOrder struct {
	OrderID      int64
	Kind         ProtectiveOrderKind
	TriggerPrice float64
	Level        int // 1-based TP level, 0 for SL
}

// Trade is the persistent row tracking one position lifecycle, created once
// per inbound initial signal and updated as the position is placed, filled,
// reconciled, and closed.
type Trade struct {
	// Identity
	ID        int64
	DiscordID string
	Timestamp time.Time // millisecond-precision instant the signal was emitted
	Venue     Venue

	// Parsed intent
	CoinSymbol         string
	PositionType       PositionType
	EntryPrices        []float64 // 1 value, or 2 for a range
	StopLoss           *float64
	TakeProfits        []float64
	OrderType          OrderType
	QuantityMultiplier int // >=1; 0 treated as 1

	// Execution state
	Status                TradeStatus
	ExchangeOrderID        int64
	PositionSize           float64
	EntryPrice             float64 // effective entry price
	ExitPrice              float64
	PnlUSD                 float64
	BinanceResponse        []byte // latest venue payload (opaque JSON)
	OriginalOrderResponse  []byte // write-once: first successful placement payload
	OrderStatusResponse    []byte // latest status-probe payload
	TPSLOrders             []ProtectiveOrder
	SyncErrorCount         int
	ManualVerificationNeed bool
	FailureReason          FailureReason

	MergedIntoTradeID *int64
	MergeReason       string
	MergedAt          *time.Time

	// Timestamps
	CreatedAt *time.Time // set once, write-once
	ClosedAt  *time.Time // set once, only when Status == CLOSED, write-once
	UpdatedAt time.Time
}

// Symbol returns the venue trading pair, e.g. "ETH" -> "ETHUSDT".
func (t *Trade) Symbol() string {
	return t.CoinSymbol + "USDT"
}

// EffectiveQuantityMultiplier returns the configured multiplier, defaulting to 1.
func (t *Trade) EffectiveQuantityMultiplier() int {
	if t.QuantityMultiplier <= 0 {
		return 1
	}
	return t.QuantityMultiplier
}

// SetCreatedAt assigns CreatedAt only if it is not already set (invariant P1:
// created_at is write-once, null -> value).
func (t *Trade) SetCreatedAt(at time.Time) bool {
	if t.CreatedAt != nil {
		return false
	}
	t.CreatedAt = &at
	return true
}

// SetClosedAt assigns ClosedAt only if it is not already set (invariant P1:
// closed_at is write-once, null -> value).
func (t *Trade) SetClosedAt(at time.Time) bool {
	if t.ClosedAt != nil {
		return false
	}
	t.ClosedAt = &at
	return true
}

// CheckInvariants validates the at-rest invariants from the data model
// section. The repository layer does not call it: rows are persisted
// without these checks.
func (t *Trade) CheckInvariants() error {
	if t.CreatedAt != nil && t.ClosedAt != nil && t.ClosedAt.Before(*t.CreatedAt) {
		return errInvariant("created_at must be <= closed_at")
	}
	if t.ClosedAt != nil && t.Status != StatusClosed {
		return errInvariant("closed_at set implies status CLOSED")
	}
	if t.Status.IsLive() && (t.ExchangeOrderID == 0 || t.PositionSize <= 0) {
		return errInvariant("OPEN/PARTIALLY_CLOSED requires exchange_order_id and position_size > 0")
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return string(e) }

func errInvariant(msg string) error { return invariantError(msg) }
