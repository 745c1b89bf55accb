package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/fees"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/ports"
)

// statusSyncEpsilon widens the account-trades/income scan window around a
// trade's created_at/closed_at to tolerate clock skew between the local
// persistence timestamps and the venue's event times.
const statusSyncEpsilon = 2 * time.Minute

// StatusSync implements §4.6.1: for each live Trade younger than the
// configured age window, probe venue order status and apply transitions.
type StatusSync struct {
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	cfg      *config.Config
	logger   ports.Logger
}

// NewStatusSync builds a StatusSync loop.
func NewStatusSync(exchange ports.ExchangeClient, trades ports.TradeRepository, cfg *config.Config, logger ports.Logger) *StatusSync {
	return &StatusSync{exchange: exchange, trades: trades, cfg: cfg, logger: logger}
}

func (l *StatusSync) Name() string            { return "status_sync" }
func (l *StatusSync) Interval() time.Duration { return l.cfg.StatusSyncInterval }

func (l *StatusSync) Run(ctx context.Context) error {
	now := time.Now()
	cutoff := now.Add(-l.cfg.StatusSyncAgeWindow)
	live, err := l.trades.FindLiveOlderThan(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list live trades: %w", err)
	}

	for _, trade := range live {
		if trade.CreatedAt != nil && trade.CreatedAt.Before(cutoff) {
			continue // outside the age window
		}
		status, err := l.exchange.GetOrderStatus(ctx, trade.Symbol(), trade.ExchangeOrderID)
		if err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) {
				trade.Status = domain.StatusClosed
				now := time.Now().UTC()
				trade.SetClosedAt(now)
				if uerr := l.trades.Update(ctx, trade); uerr != nil {
					l.logger.Error(ctx, uerr, "failed to persist not-found-implies-closed trade")
				}
				continue
			}
			// Sync-probe failure: log, bump sync_error_count, never overwrite
			// a successful placement (the north-star rule in §7).
			trade.SyncErrorCount++
			if uerr := l.trades.Update(ctx, trade); uerr != nil {
				l.logger.Error(ctx, uerr, "failed to persist incremented sync_error_count")
			}
			l.logger.Warn(ctx, "status probe failed, not treated as placement failure", map[string]interface{}{"discord_id": trade.DiscordID, "error": err.Error()})
			continue
		}

		trade.OrderStatusResponse = status.Raw
		if uerr := l.trades.Update(ctx, trade); uerr != nil {
			l.logger.Error(ctx, uerr, "failed to persist status probe response")
		}
	}
	return nil
}

// PnLBackfill implements §4.6.2.
type PnLBackfill struct {
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	cfg      *config.Config
	logger   ports.Logger
}

// NewPnLBackfill builds a PnLBackfill loop.
func NewPnLBackfill(exchange ports.ExchangeClient, trades ports.TradeRepository, cfg *config.Config, logger ports.Logger) *PnLBackfill {
	return &PnLBackfill{exchange: exchange, trades: trades, cfg: cfg, logger: logger}
}

func (l *PnLBackfill) Name() string            { return "pnl_backfill" }
func (l *PnLBackfill) Interval() time.Duration { return l.cfg.PnLBackfillInterval }

func (l *PnLBackfill) Run(ctx context.Context) error {
	missing, err := l.trades.FindClosedMissingPnL(ctx)
	if err != nil {
		return fmt.Errorf("failed to list closed trades missing pnl: %w", err)
	}

	for _, trade := range missing {
		if trade.CreatedAt == nil || trade.ClosedAt == nil {
			continue
		}
		from := trade.CreatedAt.Add(-statusSyncEpsilon)
		to := trade.ClosedAt.Add(statusSyncEpsilon)

		acctTrades, err := l.exchange.GetAccountTrades(ctx, trade.Symbol(), from, to)
		if err != nil {
			l.logger.Warn(ctx, "account trades fetch failed during pnl backfill", map[string]interface{}{"discord_id": trade.DiscordID, "error": err.Error()})
			continue
		}

		var matchedPnl decimal.Decimal
		var found bool
		for _, at := range acctTrades {
			if at.OrderID == trade.ExchangeOrderID {
				matchedPnl = matchedPnl.Add(at.RealizedPnl)
				found = true
			}
		}

		if found {
			trade.PnlUSD, _ = matchedPnl.Float64()
		} else {
			entryDec := decimal.NewFromFloat(trade.EntryPrice)
			exitDec := decimal.NewFromFloat(trade.ExitPrice)
			qtyDec := decimal.NewFromFloat(trade.PositionSize)
			trade.PnlUSD, _ = fees.RealizedPnL(l.cfg, trade.PositionType, entryDec, exitDec, qtyDec, false).Float64()
		}

		if err := l.trades.Update(ctx, trade); err != nil {
			l.logger.Error(ctx, err, "failed to persist backfilled pnl", map[string]interface{}{"discord_id": trade.DiscordID})
		}
	}
	return nil
}

// OrphanCleanup implements §4.6.3.
type OrphanCleanup struct {
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	cfg      *config.Config
	logger   ports.Logger
}

// NewOrphanCleanup builds an OrphanCleanup loop.
func NewOrphanCleanup(exchange ports.ExchangeClient, trades ports.TradeRepository, cfg *config.Config, logger ports.Logger) *OrphanCleanup {
	return &OrphanCleanup{exchange: exchange, trades: trades, cfg: cfg, logger: logger}
}

func (l *OrphanCleanup) Name() string            { return "orphan_cleanup" }
func (l *OrphanCleanup) Interval() time.Duration { return l.cfg.OrphanCleanupInterval }

func (l *OrphanCleanup) Run(ctx context.Context) error {
	openOrders, err := l.exchange.GetOpenOrders(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list open orders: %w", err)
	}

	livePositions, err := l.exchange.GetAllPositionRisk(ctx)
	if err != nil {
		return fmt.Errorf("failed to list live positions: %w", err)
	}
	hasPosition := make(map[string]bool, len(livePositions))
	for _, p := range livePositions {
		if !p.IsFlat() {
			hasPosition[p.Symbol] = true
		}
	}

	for _, order := range openOrders {
		if hasPosition[order.Symbol] {
			continue
		}
		trade, err := l.trades.FindByExchangeOrderID(ctx, l.exchange.Venue(), order.OrderID)
		if err == nil && trade != nil && trade.MergedIntoTradeID != nil {
			continue // belongs to a merged/aggregated position, never cancel
		}
		if err := l.exchange.CancelFuturesOrder(ctx, order.Symbol, order.OrderID); err != nil {
			l.logger.Error(ctx, err, "failed to cancel orphaned reduce-only order", map[string]interface{}{"symbol": order.Symbol, "order_id": order.OrderID})
			continue
		}
		l.logger.Info(ctx, "cancelled orphaned order with no live position", map[string]interface{}{"symbol": order.Symbol, "order_id": order.OrderID})
	}
	return nil
}

// BalanceSync implements §4.6.4.
type BalanceSync struct {
	exchange ports.ExchangeClient
	balances ports.BalanceRepository
	cfg      *config.Config
	logger   ports.Logger
	assets   []string
}

// NewBalanceSync builds a BalanceSync loop over the given tracked assets.
func NewBalanceSync(exchange ports.ExchangeClient, balances ports.BalanceRepository, cfg *config.Config, logger ports.Logger, assets []string) *BalanceSync {
	return &BalanceSync{exchange: exchange, balances: balances, cfg: cfg, logger: logger, assets: assets}
}

func (l *BalanceSync) Name() string            { return "balance_sync" }
func (l *BalanceSync) Interval() time.Duration { return l.cfg.BalanceSyncInterval }

func (l *BalanceSync) Run(ctx context.Context) error {
	for _, asset := range l.assets {
		free, err := l.exchange.GetAccountBalance(ctx, asset)
		if err != nil {
			l.logger.Warn(ctx, "balance fetch failed", map[string]interface{}{"asset": asset, "error": err.Error()})
			continue
		}
		freeFloat, _ := free.Float64()
		b := &domain.Balance{
			Venue:       l.exchange.Venue(),
			AccountType: "FUTURES",
			Asset:       asset,
			Free:        freeFloat,
			Total:       freeFloat,
			LastUpdated: time.Now().UTC(),
		}
		if err := l.balances.Upsert(ctx, b); err != nil {
			l.logger.Error(ctx, err, "failed to upsert balance", map[string]interface{}{"asset": asset})
		}
	}
	return nil
}

// PositionAudit implements §4.6.5: every open venue position must be
// explainable by some local live Trade with confidence >= threshold
// (symbol match 0.5 + side match 0.3 + size proximity 0.2).
type PositionAudit struct {
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	cfg      *config.Config
	logger   ports.Logger
}

// NewPositionAudit builds a PositionAudit loop.
func NewPositionAudit(exchange ports.ExchangeClient, trades ports.TradeRepository, cfg *config.Config, logger ports.Logger) *PositionAudit {
	return &PositionAudit{exchange: exchange, trades: trades, cfg: cfg, logger: logger}
}

func (l *PositionAudit) Name() string            { return "position_audit" }
func (l *PositionAudit) Interval() time.Duration { return l.cfg.PositionAuditInterval }

const positionAuditConfidenceThreshold = 0.8

func (l *PositionAudit) Run(ctx context.Context) error {
	positions, err := l.exchange.GetAllPositionRisk(ctx)
	if err != nil {
		return fmt.Errorf("failed to list venue positions: %w", err)
	}

	for _, pos := range positions {
		if pos.IsFlat() {
			continue
		}
		live, err := l.trades.FindLiveBySymbol(ctx, pos.Symbol)
		if err != nil {
			l.logger.Error(ctx, err, "failed to query live trades during position audit", map[string]interface{}{"symbol": pos.Symbol})
			continue
		}

		best := 0.0
		for _, trade := range live {
			confidence := 0.5 // symbol already matched by the query
			side := domain.Long
			if pos.PositionAmt.Sign() < 0 {
				side = domain.Short
			}
			if trade.PositionType == side {
				confidence += 0.3
			}
			sizeDiff := decimal.NewFromFloat(trade.PositionSize).Sub(pos.PositionAmt.Abs()).Abs()
			if pos.PositionAmt.Abs().Sign() > 0 {
				proximity := sizeDiff.Div(pos.PositionAmt.Abs())
				if proximity.LessThan(decimal.NewFromFloat(0.05)) {
					confidence += 0.2
				}
			}
			if confidence > best {
				best = confidence
			}
		}

		if best < positionAuditConfidenceThreshold {
			l.logger.Warn(ctx, "venue position has no confidently-matching local trade", map[string]interface{}{"symbol": pos.Symbol, "confidence": best})
			for _, trade := range live {
				trade.ManualVerificationNeed = true
				if uerr := l.trades.Update(ctx, trade); uerr != nil {
					l.logger.Error(ctx, uerr, "failed to flag trade for manual verification")
				}
			}
		}
	}
	return nil
}
