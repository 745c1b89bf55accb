// Package ingestor runs the Event Ingestor: one long-lived user-data-stream
// session per venue API key, applying executionReport / ORDER_TRADE_UPDATE
// events to the persisted Trade rows in delivery order.
package ingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/fees"
	"cryptoMegaBot/internal/ports"
)

// backpressureHighWaterMark is N from §4.4: once this many updates are
// pending, the ingestor pauses acknowledging the stream rather than
// unboundedly queuing.
const backpressureHighWaterMark = 256

// Ingestor consumes one venue's user-data stream and applies order/account
// events to Trade rows.
type Ingestor struct {
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	cfg      *config.Config
	logger   ports.Logger
	venue    domain.Venue

	pending chan ports.UserDataEvent

	mu      sync.Mutex
	running bool
}

// New builds an Ingestor.
func New(exchange ports.ExchangeClient, trades ports.TradeRepository, cfg *config.Config, logger ports.Logger) *Ingestor {
	return &Ingestor{
		exchange: exchange,
		trades:   trades,
		cfg:      cfg,
		logger:   logger,
		venue:    exchange.Venue(),
		pending:  make(chan ports.UserDataEvent, backpressureHighWaterMark),
	}
}

// Running reports whether the ingestor's stream loop is currently active,
// for the ops status surface.
func (ing *Ingestor) Running() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.running
}

func (ing *Ingestor) setRunning(v bool) {
	ing.mu.Lock()
	ing.running = v
	ing.mu.Unlock()
}

// Run drives the listen-key lifecycle (acquire, keepalive every 30m, rotate
// every 24h) and the user-data stream until ctx is cancelled. The connection
// itself reconnects internally (see binanceclient.StreamUserData); Run's
// job is listen-key rotation and translating events into persistence calls.
func (ing *Ingestor) Run(ctx context.Context) error {
	listenKey, err := ing.exchange.CreateListenKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire initial listen key: %w", err)
	}
	ing.setRunning(true)
	defer ing.setRunning(false)

	doneCh, stopCh, err := ing.exchange.StreamUserData(ctx, listenKey, ing.enqueue, ing.handleStreamError)
	if err != nil {
		return fmt.Errorf("failed to start user-data stream: %w", err)
	}

	keepAlive := time.NewTicker(ing.cfg.ListenKeyKeepAlive)
	defer keepAlive.Stop()
	rotate := time.NewTimer(ing.cfg.ListenKeyRotate)
	defer rotate.Stop()

	go ing.processLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			close(stopCh)
			select {
			case <-doneCh:
			case <-time.After(5 * time.Second):
				ing.logger.Warn(ctx, "timed out waiting for user-data stream to close")
			}
			_ = ing.exchange.CloseListenKey(context.Background(), listenKey)
			return ctx.Err()

		case <-keepAlive.C:
			if err := ing.exchange.KeepAliveListenKey(ctx, listenKey); err != nil {
				ing.logger.Error(ctx, err, "failed to keep listen key alive")
			}

		case <-rotate.C:
			ing.logger.Info(ctx, "rotating listen key per 24h venue-enforced limit")
			newKey, err := ing.exchange.CreateListenKey(ctx)
			if err != nil {
				ing.logger.Error(ctx, err, "listen key rotation failed, retrying on next keepalive tick")
				rotate.Reset(ing.cfg.ListenKeyKeepAlive)
				continue
			}
			oldKey := listenKey
			listenKey = newKey
			close(stopCh)
			<-doneCh
			doneCh, stopCh, err = ing.exchange.StreamUserData(ctx, listenKey, ing.enqueue, ing.handleStreamError)
			if err != nil {
				ing.logger.Error(ctx, err, "failed to reconnect after listen key rotation")
				return fmt.Errorf("failed to reconnect user-data stream after rotation: %w", err)
			}
			_ = ing.exchange.CloseListenKey(context.Background(), oldKey)
			rotate.Reset(ing.cfg.ListenKeyRotate)

		case <-doneCh:
			return fmt.Errorf("user-data stream closed unexpectedly after exhausting reconnect attempts")
		}
	}
}

// enqueue hands an event to the processing goroutine, applying backpressure
// by blocking (and therefore pausing stream acknowledgement upstream) once
// the pending channel is full.
func (ing *Ingestor) enqueue(ev ports.UserDataEvent) {
	ing.pending <- ev
}

func (ing *Ingestor) handleStreamError(err error) {
	ing.logger.Error(context.Background(), err, "user-data stream reported an error")
}

func (ing *Ingestor) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ing.pending:
			if err := ing.apply(ctx, ev); err != nil {
				ing.logger.Error(ctx, err, "failed to apply user-data event")
			}
		}
	}
}

// apply implements §4.4 step 2: resolve the Trade by exchange_order_id and
// transition it per the event's status, using check-and-set semantics for
// created_at/closed_at.
func (ing *Ingestor) apply(ctx context.Context, ev ports.UserDataEvent) error {
	if ev.Kind != ports.EventOrderTradeUpdate || ev.Order == nil {
		return nil
	}
	order := ev.Order

	trade, err := ing.trades.FindByExchangeOrderID(ctx, ing.venue, order.OrderID)
	if err != nil {
		return fmt.Errorf("failed to resolve trade for order %d: %w", order.OrderID, err)
	}
	if trade == nil {
		ing.logger.Debug(ctx, "order-trade-update for unknown order id, ignoring", map[string]interface{}{"order_id": order.OrderID})
		return nil
	}

	isEntry := order.Side == trade.PositionType.EntrySide()

	switch order.Status {
	case "FILLED":
		if isEntry {
			return ing.applyEntry(ctx, trade, order, ev.EventTime)
		}
		return ing.applyExit(ctx, trade, order, ev.EventTime)
	case "CANCELED", "EXPIRED":
		if trade.Status == domain.StatusPending {
			trade.Status = domain.StatusCanceled
			return ing.trades.Update(ctx, trade)
		}
	}
	return nil
}

func (ing *Ingestor) applyEntry(ctx context.Context, trade *domain.Trade, order *ports.OrderResult, eventTime time.Time) error {
	trade.SetCreatedAt(eventTime)
	trade.EntryPrice, _ = order.AvgPrice.Float64()
	trade.PositionSize, _ = order.ExecutedQty.Float64()
	trade.Status = domain.StatusOpen
	trade.BinanceResponse = order.Raw
	return ing.trades.Update(ctx, trade)
}

func (ing *Ingestor) applyExit(ctx context.Context, trade *domain.Trade, order *ports.OrderResult, eventTime time.Time) error {
	exitPrice, _ := order.AvgPrice.Float64()
	trade.ExitPrice = exitPrice
	trade.BinanceResponse = order.Raw

	remaining := decimal.NewFromFloat(trade.PositionSize).Sub(order.ExecutedQty)
	if remaining.Sign() <= 0 {
		trade.SetClosedAt(eventTime)
		trade.Status = domain.StatusClosed
		entryDec := decimal.NewFromFloat(trade.EntryPrice)
		exitDec := decimal.NewFromFloat(exitPrice)
		qtyDec := decimal.NewFromFloat(trade.PositionSize)
		pnl := fees.RealizedPnL(ing.cfg, trade.PositionType, entryDec, exitDec, qtyDec, false)
		trade.PnlUSD, _ = pnl.Float64()
		trade.PositionSize = 0
	} else {
		trade.Status = domain.StatusPartiallyClosed
		trade.PositionSize, _ = remaining.Float64()
	}
	return ing.trades.Update(ctx, trade)
}
