// Package coordinator implements the Trade Coordinator: open_position,
// close_position, and update_stop_loss, each funneled per coin_symbol
// through a mailbox goroutine so mutating operations on the same symbol are
// never interleaved.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/fees"
	"cryptoMegaBot/internal/ports"
	"cryptoMegaBot/internal/position"
	"cryptoMegaBot/internal/pricing"
	"cryptoMegaBot/internal/risk"
)

// Coordinator implements §4.2's three primitives against a single venue
// exchange client.
type Coordinator struct {
	cfg      *config.Config
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	pricing  *pricing.Service
	posMgr   *position.Manager
	riskMgr  *risk.Manager
	logger   ports.Logger
	mbox     *mailbox
}

// Config configures a Coordinator.
type Config struct {
	Cfg      *config.Config
	Exchange ports.ExchangeClient
	Trades   ports.TradeRepository
	Pricing  *pricing.Service
	Position *position.Manager
	Risk     *risk.Manager // optional; nil disables the account-level risk gate
	Logger   ports.Logger
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:      cfg.Cfg,
		exchange: cfg.Exchange,
		trades:   cfg.Trades,
		pricing:  cfg.Pricing,
		posMgr:   cfg.Position,
		riskMgr:  cfg.Risk,
		logger:   cfg.Logger,
		mbox:     newMailbox(),
	}
}

// fail marks trade FAILED or UNFILLED with reason and persists it. Besides
// the terminal reasons (see FailureReason.IsTerminalFailure),
// openPositionLocked also passes FailureTransient here (replace-close
// failure, reference price unavailable, no order id returned); such a trade
// is marked FAILED and is not retried. Status-probe reasons such as
// PERMISSION_DENIED never reach this path.
func (c *Coordinator) fail(ctx context.Context, trade *domain.Trade, status domain.TradeStatus, reason domain.FailureReason, cause error) error {
	trade.Status = status
	trade.FailureReason = reason
	if uerr := c.trades.Update(ctx, trade); uerr != nil {
		c.logger.Error(ctx, uerr, "failed to persist failed trade", map[string]interface{}{"discord_id": trade.DiscordID})
	}
	c.logger.Warn(ctx, "trade placement failed preflight", map[string]interface{}{"discord_id": trade.DiscordID, "reason": reason, "cause": fmt.Sprint(cause)})
	return fmt.Errorf("trade %s failed: %s: %w", trade.DiscordID, reason, cause)
}

// OpenPosition implements §4.2.1, serialized per coin_symbol.
func (c *Coordinator) OpenPosition(ctx context.Context, trade *domain.Trade) error {
	return c.mbox.run(trade.Symbol(), func() error {
		return c.openPositionLocked(ctx, trade)
	})
}

func (c *Coordinator) openPositionLocked(ctx context.Context, trade *domain.Trade) error {
	symbol := trade.Symbol()

	// 1. Cooldown / conflict evaluation.
	eval, err := c.posMgr.Evaluate(ctx, trade)
	if err != nil {
		return fmt.Errorf("position manager evaluation failed: %w", err)
	}
	switch eval.Decision {
	case position.DecisionCooldown:
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureCooldownActive, ports.ErrCooldownActive)
	case position.DecisionReject:
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureTradeConflict, ports.ErrTradeConflict)
	case position.DecisionReplace:
		if err := c.closePositionLocked(ctx, eval.Target, 100); err != nil {
			c.logger.Error(ctx, err, "failed to close conflicting opposite-side trade before replace", map[string]interface{}{"symbol": symbol})
			return c.fail(ctx, trade, domain.StatusFailed, domain.FailureTransient, err)
		}
	}

	// 2. Account-level risk gate (max concurrent positions, daily loss cap).
	if c.riskMgr != nil {
		if err := c.riskMgr.CheckOpenAllowed(ctx); err != nil {
			return c.fail(ctx, trade, domain.StatusFailed, domain.FailureRiskLimitExceeded, err)
		}
		if err := c.riskMgr.CheckDailyLossAllowed(ctx); err != nil {
			return c.fail(ctx, trade, domain.StatusFailed, domain.FailureRiskLimitExceeded, err)
		}
	}

	// 3. Symbol support.
	filters, err := c.exchange.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureSymbolUnsupported, err)
	}

	// 4. Reference price.
	refPrice, err := c.pricing.ReferencePrice(ctx, symbol)
	if err != nil {
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureTransient, err)
	}

	entryPrice := refPrice
	if trade.OrderType == domain.Limit && len(trade.EntryPrices) > 0 {
		entryPrice = decimal.NewFromFloat(trade.EntryPrices[0])
	}

	// 5. Price-proximity gate. LIMIT orders are gated against their own
	// limit price; MARKET orders have no limit price to gate on, but the
	// signal's stated entry still must not be stale, so they are gated
	// against the signal price instead (entryPrice/sizing still use
	// refPrice for MARKET — only the gate's comparison price differs).
	threshold := c.cfg.PriceThreshold
	if c.cfg.MemecoinSymbols[symbol] {
		threshold = c.cfg.MemecoinPriceThreshold
	}
	switch {
	case trade.OrderType == domain.Limit:
		proximity := pricing.PriceProximity(entryPrice, refPrice)
		if proximity.GreaterThan(decimal.NewFromFloat(threshold)) {
			return c.fail(ctx, trade, domain.StatusFailed, domain.FailurePriceOutOfRange, ports.ErrPriceOutOfRange)
		}
	case trade.OrderType == domain.Market && len(trade.EntryPrices) > 0:
		signalPrice := decimal.NewFromFloat(trade.EntryPrices[0])
		proximity := pricing.PriceProximity(signalPrice, refPrice)
		if proximity.GreaterThan(decimal.NewFromFloat(threshold)) {
			return c.fail(ctx, trade, domain.StatusFailed, domain.FailurePriceOutOfRange, ports.ErrPriceOutOfRange)
		}
	}

	// 6. Sizing.
	notional := decimal.NewFromFloat(c.cfg.TradeAmount * float64(trade.EffectiveQuantityMultiplier()))
	qty := notional.Div(entryPrice)

	// 7. Precision clamp.
	qty = fees.Quantize(qty, filters.StepSize)
	price := fees.Quantize(entryPrice, filters.TickSize)
	if qty.LessThan(filters.MinQty) || (filters.MaxQty.Sign() > 0 && qty.GreaterThan(filters.MaxQty)) {
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureQtyOutOfBounds, ports.ErrQtyOutOfBounds)
	}
	if filters.MinNotional.Sign() > 0 && qty.Mul(price).LessThan(filters.MinNotional) {
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureNotionalTooSmall, ports.ErrNotionalTooSmall)
	}

	// 8. Leverage binding.
	if err := c.exchange.ChangeLeverage(ctx, symbol, c.cfg.Leverage); err != nil {
		c.logger.Warn(ctx, "failed to set leverage, proceeding with existing leverage", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}

	// 9. Fee preview.
	breakeven := fees.Breakeven(c.cfg, trade.PositionType, price, false)
	c.logger.Info(ctx, "fee preview computed", map[string]interface{}{"symbol": symbol, "breakeven": breakeven.String()})

	// 10. Placement.
	side := trade.PositionType.EntrySide()
	req := ports.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     string(trade.OrderType),
		Quantity: qty,
	}
	if trade.OrderType == domain.Limit {
		req.Price = price
		req.TimeInForce = "GTC"
	}

	result, placeErr := c.exchange.CreateFuturesOrder(ctx, req)
	if !result.HasOrderID() {
		return c.fail(ctx, trade, domain.StatusFailed, domain.FailureTransient, placeErr)
	}

	// 11. Protective orders.
	var tpPtr, slPtr *decimal.Decimal
	if len(trade.TakeProfits) > 0 {
		tp := decimal.NewFromFloat(trade.TakeProfits[0])
		tpPtr = &tp
	}
	if trade.StopLoss != nil {
		sl := decimal.NewFromFloat(*trade.StopLoss)
		slPtr = &sl
	}
	var protective []domain.ProtectiveOrder
	if tpPtr != nil || slPtr != nil {
		tpslResult, tpslErr := c.exchange.CreatePositionTPSL(ctx, symbol, side, tpPtr, slPtr)
		if tpslErr != nil {
			c.logger.Warn(ctx, "combined TP/SL placement failed, falling back to reduce-only orders", map[string]interface{}{"symbol": symbol, "error": tpslErr.Error()})
			protective = c.placeFallbackProtectiveOrders(ctx, symbol, side, qty, tpPtr, slPtr)
		} else if tpslResult.HasOrderID() {
			protective = append(protective, domain.ProtectiveOrder{OrderID: tpslResult.OrderID, Kind: domain.ProtectiveStopLoss})
		}
	}

	// 12. Persist.
	now := time.Now().UTC()
	trade.SetCreatedAt(now)
	trade.ExchangeOrderID = result.OrderID
	trade.PositionSize, _ = result.ExecutedQty.Float64()
	if trade.PositionSize <= 0 {
		trade.PositionSize, _ = qty.Float64()
	}
	trade.EntryPrice, _ = result.AvgPrice.Float64()
	if trade.EntryPrice == 0 {
		trade.EntryPrice, _ = price.Float64()
	}
	trade.BinanceResponse = result.Raw
	if trade.OriginalOrderResponse == nil {
		trade.OriginalOrderResponse = result.Raw
	}
	trade.TPSLOrders = protective

	if trade.OrderType == domain.Market && result.ExecutedQty.IsZero() {
		trade.Status = domain.StatusUnfilled
	} else {
		trade.Status = domain.StatusOpen
	}

	if err := c.trades.Update(ctx, trade); err != nil {
		return fmt.Errorf("failed to persist opened trade %s: %w", trade.DiscordID, err)
	}

	if eval.Decision == position.DecisionMerge && eval.Target != nil {
		entryFloat, _ := price.Float64()
		qtyFloat, _ := qty.Float64()
		position.Merge(eval.Target, trade, entryFloat, qtyFloat)
		if err := c.trades.Update(ctx, eval.Target); err != nil {
			c.logger.Error(ctx, err, "failed to persist merge target")
		}
		if err := c.trades.Update(ctx, trade); err != nil {
			c.logger.Error(ctx, err, "failed to persist merged-away trade")
		}
	}

	return nil
}

func (c *Coordinator) placeFallbackProtectiveOrders(ctx context.Context, symbol string, entrySide domain.OrderSide, qty decimal.Decimal, tp, sl *decimal.Decimal) []domain.ProtectiveOrder {
	var out []domain.ProtectiveOrder
	exitSide := entrySide.Opposite()

	if sl != nil {
		res, err := c.exchange.CreateFuturesOrder(ctx, ports.OrderRequest{
			Symbol: symbol, Side: exitSide, Type: "STOP_MARKET", Quantity: qty, StopPrice: *sl, ReduceOnly: true,
		})
		if err != nil {
			c.logger.Error(ctx, err, "fallback SL placement failed", map[string]interface{}{"symbol": symbol})
		} else if res.HasOrderID() {
			slFloat, _ := sl.Float64()
			out = append(out, domain.ProtectiveOrder{OrderID: res.OrderID, Kind: domain.ProtectiveStopLoss, TriggerPrice: slFloat})
		}
	}
	if tp != nil {
		res, err := c.exchange.CreateFuturesOrder(ctx, ports.OrderRequest{
			Symbol: symbol, Side: exitSide, Type: "TAKE_PROFIT_MARKET", Quantity: qty, StopPrice: *tp, ReduceOnly: true,
		})
		if err != nil {
			c.logger.Error(ctx, err, "fallback TP placement failed", map[string]interface{}{"symbol": symbol})
		} else if res.HasOrderID() {
			tpFloat, _ := tp.Float64()
			out = append(out, domain.ProtectiveOrder{OrderID: res.OrderID, Kind: domain.ProtectiveTakeProfit, Level: 1, TriggerPrice: tpFloat})
		}
	}
	return out
}

// ClosePosition implements §4.2.2, serialized per coin_symbol.
func (c *Coordinator) ClosePosition(ctx context.Context, trade *domain.Trade, percent float64) error {
	return c.mbox.run(trade.Symbol(), func() error {
		return c.closePositionLocked(ctx, trade, percent)
	})
}

func (c *Coordinator) closePositionLocked(ctx context.Context, trade *domain.Trade, percent float64) error {
	symbol := trade.Symbol()

	risk, err := c.exchange.GetPositionRisk(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to resolve current position size for %s: %w", symbol, err)
	}
	if risk.IsFlat() {
		trade.Status = domain.StatusClosed
		now := time.Now().UTC()
		trade.SetClosedAt(now)
		if err := c.trades.Update(ctx, trade); err != nil {
			return fmt.Errorf("failed to persist already-closed trade: %w", err)
		}
		return fmt.Errorf("position already closed on venue")
	}

	currentSize := risk.PositionAmt.Abs()
	closeQty := currentSize.Mul(decimal.NewFromFloat(percent / 100.0))

	filters, err := c.exchange.GetSymbolFilters(ctx, symbol)
	if err == nil {
		closeQty = fees.Quantize(closeQty, filters.StepSize)
	}

	closeSide := trade.PositionType.EntrySide().Opposite()
	result, err := c.exchange.CreateFuturesOrder(ctx, ports.OrderRequest{
		Symbol: symbol, Side: closeSide, Type: string(domain.Market), Quantity: closeQty, ReduceOnly: true,
	})
	if !result.HasOrderID() {
		return fmt.Errorf("reduce-only close order failed for %s: %w", symbol, err)
	}

	exitPrice, _ := result.AvgPrice.Float64()
	remaining := currentSize.Sub(closeQty)

	if remaining.Sign() <= 0 {
		trade.Status = domain.StatusClosed
		trade.ExitPrice = exitPrice
		now := time.Now().UTC()
		trade.SetClosedAt(now)
		entryDec := decimal.NewFromFloat(trade.EntryPrice)
		exitDec := decimal.NewFromFloat(exitPrice)
		pnl := fees.RealizedPnL(c.cfg, trade.PositionType, entryDec, exitDec, decimal.NewFromFloat(trade.PositionSize), false)
		trade.PnlUSD, _ = pnl.Float64()
		trade.PositionSize = 0
	} else {
		trade.Status = domain.StatusPartiallyClosed
		trade.PositionSize, _ = remaining.Float64()
	}
	trade.BinanceResponse = result.Raw

	if err := c.trades.Update(ctx, trade); err != nil {
		return fmt.Errorf("failed to persist closed trade %s: %w", trade.DiscordID, err)
	}
	return nil
}

// UpdateStopLoss implements §4.2.3: cancel every existing reduce-only stop
// order for the symbol, read fresh position size, place a new SL.
func (c *Coordinator) UpdateStopLoss(ctx context.Context, trade *domain.Trade, newPrice float64) error {
	return c.mbox.run(trade.Symbol(), func() error {
		return c.updateStopLossLocked(ctx, trade, newPrice)
	})
}

func (c *Coordinator) updateStopLossLocked(ctx context.Context, trade *domain.Trade, newPrice float64) error {
	symbol := trade.Symbol()

	for _, po := range trade.TPSLOrders {
		if po.Kind == domain.ProtectiveStopLoss {
			if err := c.exchange.CancelFuturesOrder(ctx, symbol, po.OrderID); err != nil {
				c.logger.Warn(ctx, "failed to cancel existing SL order during update", map[string]interface{}{"symbol": symbol, "order_id": po.OrderID, "error": err.Error()})
			}
		}
	}

	risk, err := c.exchange.GetPositionRisk(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to read fresh position size for %s: %w", symbol, err)
	}
	if risk.IsFlat() {
		return fmt.Errorf("no live position for %s to attach new stop loss: %w", symbol, ports.ErrNoLivePosition)
	}

	exitSide := trade.PositionType.EntrySide().Opposite()
	sl := decimal.NewFromFloat(newPrice)
	result, err := c.exchange.CreateFuturesOrder(ctx, ports.OrderRequest{
		Symbol: symbol, Side: exitSide, Type: "STOP_MARKET", Quantity: risk.PositionAmt.Abs(), StopPrice: sl, ReduceOnly: true,
	})
	if !result.HasOrderID() {
		return fmt.Errorf("failed to place replacement SL order for %s: %w", symbol, err)
	}

	kept := make([]domain.ProtectiveOrder, 0, len(trade.TPSLOrders))
	for _, po := range trade.TPSLOrders {
		if po.Kind != domain.ProtectiveStopLoss {
			kept = append(kept, po)
		}
	}
	kept = append(kept, domain.ProtectiveOrder{OrderID: result.OrderID, Kind: domain.ProtectiveStopLoss, TriggerPrice: newPrice})
	trade.TPSLOrders = kept
	trade.StopLoss = &newPrice

	if err := c.trades.Update(ctx, trade); err != nil {
		return fmt.Errorf("failed to persist updated stop loss for %s: %w", trade.DiscordID, err)
	}
	return nil
}

// ApplyAlert dispatches a classified follow-up alert to the appropriate
// coordinator primitive.
func (c *Coordinator) ApplyAlert(ctx context.Context, trade *domain.Trade, alert *domain.Alert) error {
	switch alert.Parsed.Action {
	case domain.ActionStopLossHit, domain.ActionPositionClosed:
		return c.ClosePosition(ctx, trade, 100)
	case domain.ActionTakeProfit1:
		return c.ClosePosition(ctx, trade, 50)
	case domain.ActionTakeProfit2:
		return c.ClosePosition(ctx, trade, 100)
	case domain.ActionStopLossUpdate:
		return c.UpdateStopLoss(ctx, trade, trade.EntryPrice)
	case domain.ActionOrderCancelled:
		return c.mbox.run(trade.Symbol(), func() error {
			if err := c.exchange.CancelAllFuturesOrders(ctx, trade.Symbol()); err != nil {
				return fmt.Errorf("failed to cancel pending entry order for %s: %w", trade.DiscordID, err)
			}
			trade.Status = domain.StatusCanceled
			return c.trades.Update(ctx, trade)
		})
	default:
		c.logger.Warn(ctx, "alert classified as unknown action, no-op", map[string]interface{}{"parent_discord_id": alert.ParentDiscordID, "content": alert.Content})
		return nil
	}
}
