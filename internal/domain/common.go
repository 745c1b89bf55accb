package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the side that closes a position opened on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PositionType is the directional intent parsed from a signal.
type PositionType string

const (
	Long  PositionType = "LONG"
	Short PositionType = "SHORT"
)

// EntrySide returns the order side that opens a position of this type.
func (p PositionType) EntrySide() OrderSide {
	if p == Short {
		return Sell
	}
	return Buy
}

// OrderType is the requested entry order type.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// TradeStatus is the lifecycle state of a Trade row.
type TradeStatus string

const (
	StatusPending         TradeStatus = "PENDING"
	StatusOpen            TradeStatus = "OPEN"
	StatusPartiallyClosed TradeStatus = "PARTIALLY_CLOSED"
	StatusClosed          TradeStatus = "CLOSED"
	StatusFailed          TradeStatus = "FAILED"
	StatusUnfilled        TradeStatus = "UNFILLED"
	StatusCanceled        TradeStatus = "CANCELED"
	StatusExpired         TradeStatus = "EXPIRED"
)

// IsTerminal reports whether status can no longer transition.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusFailed, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsLive reports whether a Trade in this status holds exchange exposure.
func (s TradeStatus) IsLive() bool {
	return s == StatusOpen || s == StatusPartiallyClosed
}

// ProtectiveOrderKind distinguishes take-profit from stop-loss orders.
type ProtectiveOrderKind string

const (
	ProtectiveTakeProfit ProtectiveOrderKind = "TP"
	ProtectiveStopLoss   ProtectiveOrderKind = "SL"
)

// Venue identifies the futures exchange a Trade or Balance belongs to.
type Venue string

const (
	VenueBinance Venue = "BINANCE"
	VenueKuCoin  Venue = "KUCOIN"
)

// FailureReason classifies why an order placement attempt did not result in
// a live position, per the order-placement failure taxonomy.
type FailureReason string

const (
	FailureMarginInsufficient    FailureReason = "MARGIN_INSUFFICIENT"
	FailureQtyOutOfBounds        FailureReason = "QTY_OUT_OF_BOUNDS"
	FailureNotionalTooSmall      FailureReason = "NOTIONAL_TOO_SMALL"
	FailureWouldImmediateTrigger FailureReason = "WOULD_IMMEDIATELY_TRIGGER"
	FailureSymbolUnsupported     FailureReason = "SYMBOL_UNSUPPORTED"
	FailurePriceOutOfRange       FailureReason = "PRICE_OUT_OF_RANGE"
	FailurePermissionDenied      FailureReason = "PERMISSION_DENIED"
	FailureTransient             FailureReason = "TRANSIENT"
	FailureCooldownActive        FailureReason = "COOLDOWN_ACTIVE"
	FailureRiskLimitExceeded     FailureReason = "RISK_LIMIT_EXCEEDED"
	FailureTradeConflict         FailureReason = "TRADE_CONFLICT"
)

// terminalFailures lists the reasons allowed to move a Trade to a terminal
// FAILED/UNFILLED state. PERMISSION_DENIED and TRANSIENT, observed on a
// status probe rather than at placement time, must never do so.
var terminalFailures = map[FailureReason]bool{
	FailureMarginInsufficient:    true,
	FailureQtyOutOfBounds:        true,
	FailureNotionalTooSmall:      true,
	FailureWouldImmediateTrigger: true,
	FailureSymbolUnsupported:     true,
	FailurePriceOutOfRange:       true,
	FailureRiskLimitExceeded:     true,
	FailureTradeConflict:         true,
}

// IsTerminalFailure reports whether this reason may transition a Trade to FAILED/UNFILLED.
func (f FailureReason) IsTerminalFailure() bool {
	return terminalFailures[f]
}

// AlertAction is the keyword-classified intent of a follow-up alert.
type AlertAction string

const (
	ActionStopLossHit    AlertAction = "stop_loss_hit"
	ActionPositionClosed AlertAction = "position_closed"
	ActionTakeProfit1    AlertAction = "take_profit_1"
	ActionTakeProfit2    AlertAction = "take_profit_2"
	ActionStopLossUpdate AlertAction = "stop_loss_update"
	ActionOrderCancelled AlertAction = "order_cancelled"
	ActionUnknown        AlertAction = "unknown"
)
