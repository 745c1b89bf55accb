package ingestor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeExchange struct {
	ports.ExchangeClient
	venue domain.Venue
}

func (f *fakeExchange) Venue() domain.Venue { return f.venue }

type fakeTradeRepo struct {
	ports.TradeRepository
	byOrderID map[int64]*domain.Trade
	updates   []*domain.Trade
}

func newFakeTradeRepo() *fakeTradeRepo {
	return &fakeTradeRepo{byOrderID: make(map[int64]*domain.Trade)}
}

func (f *fakeTradeRepo) FindByExchangeOrderID(ctx context.Context, venue domain.Venue, orderID int64) (*domain.Trade, error) {
	return f.byOrderID[orderID], nil
}

func (f *fakeTradeRepo) Update(ctx context.Context, t *domain.Trade) error {
	f.updates = append(f.updates, t)
	return nil
}

func newIngestorUnderTest(repo *fakeTradeRepo) *Ingestor {
	exchange := &fakeExchange{venue: domain.VenueBinance}
	cfg := &config.Config{FeeMode: config.FeeModeFixed, FixedFeeRate: 0.0004}
	return New(exchange, repo, cfg, nopLogger{})
}

func pendingTrade(orderID int64) *domain.Trade {
	return &domain.Trade{
		DiscordID:       "evt-1",
		Venue:           domain.VenueBinance,
		CoinSymbol:      "BTC",
		PositionType:    domain.Long,
		Status:          domain.StatusPending,
		ExchangeOrderID: orderID,
	}
}

func TestApply_UnknownOrderIDIsNoOp(t *testing.T) {
	repo := newFakeTradeRepo()
	ing := newIngestorUnderTest(repo)

	ev := ports.UserDataEvent{
		Kind:  ports.EventOrderTradeUpdate,
		Order: &ports.OrderResult{OrderID: 999, Status: "FILLED", Side: domain.Buy},
	}
	err := ing.apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Empty(t, repo.updates)
}

func TestApply_EntryFillOpensTrade(t *testing.T) {
	repo := newFakeTradeRepo()
	trade := pendingTrade(100)
	repo.byOrderID[100] = trade
	ing := newIngestorUnderTest(repo)

	ev := ports.UserDataEvent{
		Kind:      ports.EventOrderTradeUpdate,
		EventTime: time.Now(),
		Order: &ports.OrderResult{
			OrderID:     100,
			Status:      "FILLED",
			Side:        domain.Buy, // matches Long.EntrySide()
			AvgPrice:    decimal.NewFromFloat(31.8),
			ExecutedQty: decimal.NewFromFloat(3),
		},
	}
	err := ing.apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, trade.Status)
	assert.NotEqual(t, domain.StatusFailed, trade.Status)
	assert.NotNil(t, trade.CreatedAt)
	assert.Equal(t, 31.8, trade.EntryPrice)
	assert.Len(t, repo.updates, 1)
}

func TestApply_ExitFillFullyClosesTrade(t *testing.T) {
	repo := newFakeTradeRepo()
	trade := pendingTrade(200)
	trade.Status = domain.StatusOpen
	trade.PositionSize = 3
	trade.EntryPrice = 31.5
	repo.byOrderID[200] = trade
	ing := newIngestorUnderTest(repo)

	ev := ports.UserDataEvent{
		Kind:      ports.EventOrderTradeUpdate,
		EventTime: time.Now(),
		Order: &ports.OrderResult{
			OrderID:     200,
			Status:      "FILLED",
			Side:        domain.Sell, // opposite of Long.EntrySide() -> exit
			AvgPrice:    decimal.NewFromFloat(33.0),
			ExecutedQty: decimal.NewFromFloat(3),
		},
	}
	err := ing.apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, trade.Status)
	assert.NotNil(t, trade.ClosedAt)
	assert.InDelta(t, 33.0, trade.ExitPrice, 0.0001)
	assert.NotZero(t, trade.PnlUSD)
}

func TestApply_PartialExitFillKeepsTradeOpen(t *testing.T) {
	repo := newFakeTradeRepo()
	trade := pendingTrade(201)
	trade.Status = domain.StatusOpen
	trade.PositionSize = 3
	trade.EntryPrice = 31.5
	repo.byOrderID[201] = trade
	ing := newIngestorUnderTest(repo)

	ev := ports.UserDataEvent{
		Kind:      ports.EventOrderTradeUpdate,
		EventTime: time.Now(),
		Order: &ports.OrderResult{
			OrderID:     201,
			Status:      "FILLED",
			Side:        domain.Sell,
			AvgPrice:    decimal.NewFromFloat(33.0),
			ExecutedQty: decimal.NewFromFloat(1), // only 1 of 3
		},
	}
	err := ing.apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyClosed, trade.Status)
	assert.Nil(t, trade.ClosedAt)
	assert.InDelta(t, 2, trade.PositionSize, 0.0001)
}

func TestApply_CanceledWhilePendingMarksCanceled(t *testing.T) {
	repo := newFakeTradeRepo()
	trade := pendingTrade(300)
	repo.byOrderID[300] = trade
	ing := newIngestorUnderTest(repo)

	ev := ports.UserDataEvent{
		Kind:  ports.EventOrderTradeUpdate,
		Order: &ports.OrderResult{OrderID: 300, Status: "CANCELED", Side: domain.Buy},
	}
	err := ing.apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, trade.Status)
}

// P3: a CANCELED/EXPIRED event for an order that is no longer PENDING (i.e.
// already placed and live) must be ignored rather than flipping a live
// trade to FAILED or CANCELED out from under it.
func TestApply_CanceledAfterAlreadyOpenIsIgnored(t *testing.T) {
	repo := newFakeTradeRepo()
	trade := pendingTrade(301)
	trade.Status = domain.StatusOpen
	repo.byOrderID[301] = trade
	ing := newIngestorUnderTest(repo)

	ev := ports.UserDataEvent{
		Kind:  ports.EventOrderTradeUpdate,
		Order: &ports.OrderResult{OrderID: 301, Status: "EXPIRED", Side: domain.Buy},
	}
	err := ing.apply(context.Background(), ev)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, trade.Status)
	assert.Empty(t, repo.updates, "no update should be issued for a stale cancel/expire on an already-live trade")
}

// P3, structurally: no path through apply/applyEntry/applyExit ever sets
// Status to FAILED. The ingestor only ever transitions PENDING -> OPEN,
// OPEN -> PARTIALLY_CLOSED/CLOSED, or PENDING -> CANCELED; a failed
// placement attempt is the Trade Coordinator's responsibility, not a stream
// event's.
func TestApply_NeverProducesFailedStatus(t *testing.T) {
	repo := newFakeTradeRepo()
	ing := newIngestorUnderTest(repo)

	cases := []*ports.OrderResult{
		{OrderID: 400, Status: "FILLED", Side: domain.Buy, AvgPrice: decimal.NewFromFloat(10), ExecutedQty: decimal.NewFromFloat(1)},
		{OrderID: 401, Status: "CANCELED", Side: domain.Buy},
		{OrderID: 402, Status: "EXPIRED", Side: domain.Buy},
		{OrderID: 403, Status: "PARTIALLY_FILLED", Side: domain.Buy},
	}
	for _, order := range cases {
		trade := pendingTrade(order.OrderID)
		repo.byOrderID[order.OrderID] = trade

		err := ing.apply(context.Background(), ports.UserDataEvent{Kind: ports.EventOrderTradeUpdate, Order: order})
		require.NoError(t, err)
		assert.NotEqual(t, domain.StatusFailed, trade.Status, "order %d", order.OrderID)
	}
}
