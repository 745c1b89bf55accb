package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

type fakeTradeRepo struct {
	ports.TradeRepository
	trades []*domain.Trade
}

func (f *fakeTradeRepo) FindAll(ctx context.Context) ([]*domain.Trade, error) {
	return f.trades, nil
}

func liveTrade(symbol string) *domain.Trade {
	return &domain.Trade{CoinSymbol: symbol, Status: domain.StatusOpen}
}

func closedTradeToday(pnl float64) *domain.Trade {
	now := time.Now().UTC()
	return &domain.Trade{Status: domain.StatusClosed, PnlUSD: pnl, ClosedAt: &now}
}

func TestCheckOpenAllowed_DisabledWhenLimitZero(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{liveTrade("BTCUSDT"), liveTrade("ETHUSDT")}}
	m := New(Config{MaxOpenPositions: 0}, repo)
	assert.NoError(t, m.CheckOpenAllowed(context.Background()))
}

func TestCheckOpenAllowed_UnderLimit(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{liveTrade("BTCUSDT")}}
	m := New(Config{MaxOpenPositions: 3}, repo)
	assert.NoError(t, m.CheckOpenAllowed(context.Background()))
}

func TestCheckOpenAllowed_AtLimit(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{liveTrade("BTCUSDT"), liveTrade("ETHUSDT"), liveTrade("SOLUSDT")}}
	m := New(Config{MaxOpenPositions: 3}, repo)
	err := m.CheckOpenAllowed(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrRiskLimitExceeded))
}

func TestCheckOpenAllowed_IgnoresTerminalTrades(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{
		{CoinSymbol: "BTCUSDT", Status: domain.StatusClosed},
		{CoinSymbol: "ETHUSDT", Status: domain.StatusFailed},
	}}
	m := New(Config{MaxOpenPositions: 1}, repo)
	assert.NoError(t, m.CheckOpenAllowed(context.Background()))
}

func TestCheckDailyLossAllowed_DisabledWhenCapZero(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{closedTradeToday(-10000)}}
	m := New(Config{MaxDailyLossUSD: 0}, repo)
	assert.NoError(t, m.CheckDailyLossAllowed(context.Background()))
}

func TestCheckDailyLossAllowed_WithinCap(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{closedTradeToday(-50), closedTradeToday(20)}}
	m := New(Config{MaxDailyLossUSD: 100}, repo)
	assert.NoError(t, m.CheckDailyLossAllowed(context.Background()))
}

func TestCheckDailyLossAllowed_BreachesCap(t *testing.T) {
	repo := &fakeTradeRepo{trades: []*domain.Trade{closedTradeToday(-80), closedTradeToday(-30)}}
	m := New(Config{MaxDailyLossUSD: 100}, repo)
	err := m.CheckDailyLossAllowed(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrRiskLimitExceeded))
}

func TestCheckDailyLossAllowed_IgnoresPriorDays(t *testing.T) {
	yesterday := time.Now().UTC().Add(-48 * time.Hour)
	repo := &fakeTradeRepo{trades: []*domain.Trade{
		{Status: domain.StatusClosed, PnlUSD: -500, ClosedAt: &yesterday},
	}}
	m := New(Config{MaxDailyLossUSD: 100}, repo)
	assert.NoError(t, m.CheckDailyLossAllowed(context.Background()))
}
