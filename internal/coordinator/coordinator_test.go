package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
	"cryptoMegaBot/internal/position"
	"cryptoMegaBot/internal/pricing"
	"cryptoMegaBot/internal/risk"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeExchange is a behavioral stand-in for ports.ExchangeClient: each test
// configures only the fields its scenario needs, and call counters let tests
// assert that a gate rejected a trade before any placement call was made.
type fakeExchange struct {
	ports.ExchangeClient

	venue domain.Venue

	symbolFilters *ports.SymbolFilters
	filtersErr    error

	markPrice decimal.Decimal
	markErr   error

	changeLeverageCalls int
	leverageErr         error

	createOrderResult *ports.OrderResult
	createOrderErr    error
	createOrderCalls  []ports.OrderRequest

	tpslResult *ports.OrderResult
	tpslErr    error
	tpslCalls  int

	positionRisk    *ports.PositionRisk
	positionRiskErr error
}

func (f *fakeExchange) Venue() domain.Venue { return f.venue }

func (f *fakeExchange) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	return f.symbolFilters, f.filtersErr
}

func (f *fakeExchange) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.markPrice, f.markErr
}

func (f *fakeExchange) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	f.changeLeverageCalls++
	return f.leverageErr
}

func (f *fakeExchange) CreateFuturesOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	f.createOrderCalls = append(f.createOrderCalls, req)
	return f.createOrderResult, f.createOrderErr
}

func (f *fakeExchange) CreatePositionTPSL(ctx context.Context, symbol string, side domain.OrderSide, tp, sl *decimal.Decimal) (*ports.OrderResult, error) {
	f.tpslCalls++
	return f.tpslResult, f.tpslErr
}

func (f *fakeExchange) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	return f.positionRisk, f.positionRiskErr
}

func (f *fakeExchange) CancelFuturesOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}

// fakeTradeRepo records Update calls and serves a configurable live set, in
// the same embed-and-override style as internal/position's fakeTradeRepo.
type fakeTradeRepo struct {
	ports.TradeRepository

	mu      sync.Mutex
	live    []*domain.Trade
	updates []*domain.Trade
}

func (f *fakeTradeRepo) FindLiveBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	return f.live, nil
}

func (f *fakeTradeRepo) Update(ctx context.Context, t *domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, t)
	return nil
}

func (f *fakeTradeRepo) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func testFilters() *ports.SymbolFilters {
	return &ports.SymbolFilters{
		Symbol:      "BTCUSDT",
		Status:      "TRADING",
		StepSize:    decimal.NewFromFloat(0.001),
		MinQty:      decimal.NewFromFloat(0.001),
		MaxQty:      decimal.NewFromFloat(1000),
		TickSize:    decimal.NewFromFloat(0.1),
		MinNotional: decimal.NewFromFloat(5),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		TradeAmount:            100,
		Leverage:               10,
		PriceThreshold:         0.02,
		MemecoinPriceThreshold: 0.10,
		MemecoinSymbols:        map[string]bool{},
		FeeMode:                config.FeeModeFixed,
		FixedFeeRate:           0.0004,
	}
}

type harness struct {
	coord    *Coordinator
	exchange *fakeExchange
	repo     *fakeTradeRepo
}

func newHarness(cfg *config.Config, exchange *fakeExchange, repo *fakeTradeRepo) *harness {
	pr := pricing.New(pricing.Config{Exchange: exchange, Logger: nopLogger{}})
	posMgr := position.New(position.Config{Trades: repo, MaxPositionTrades: 1})
	riskMgr := risk.New(risk.Config{}, repo)
	c := New(Config{
		Cfg:      cfg,
		Exchange: exchange,
		Trades:   repo,
		Pricing:  pr,
		Position: posMgr,
		Risk:     riskMgr,
		Logger:   nopLogger{},
	})
	return &harness{coord: c, exchange: exchange, repo: repo}
}

func limitSignalTrade() *domain.Trade {
	sl := 30.7
	return &domain.Trade{
		DiscordID:    "evt-1",
		CoinSymbol:   "HYPE",
		PositionType: domain.Long,
		OrderType:    domain.Limit,
		EntryPrices:  []float64{32.2, 31.5},
		StopLoss:     &sl,
		TakeProfits:  []float64{35.0},
	}
}

func marketSignalTrade() *domain.Trade {
	return &domain.Trade{
		DiscordID:    "evt-2",
		CoinSymbol:   "BTC",
		PositionType: domain.Long,
		OrderType:    domain.Market,
		EntryPrices:  []float64{90},
	}
}

// S1: a LIMIT signal within proximity tolerance places successfully and ends
// OPEN, with the venue's order id and fill persisted.
func TestOpenPosition_S1_LimitHappyPath(t *testing.T) {
	exchange := &fakeExchange{
		venue:         domain.VenueBinance,
		symbolFilters: testFilters(),
		markPrice:     decimal.NewFromFloat(31.8),
		createOrderResult: &ports.OrderResult{
			OrderID:      555,
			AvgPrice:     decimal.NewFromFloat(31.5),
			ExecutedQty:  decimal.NewFromFloat(3.0),
			Raw:          []byte(`{"orderId":555}`),
		},
		tpslResult: &ports.OrderResult{OrderID: 556},
	}
	repo := &fakeTradeRepo{}
	h := newHarness(testConfig(), exchange, repo)

	trade := limitSignalTrade()
	err := h.coord.OpenPosition(context.Background(), trade)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, trade.Status)
	assert.Equal(t, int64(555), trade.ExchangeOrderID)
	assert.NotNil(t, trade.CreatedAt)
	assert.Len(t, exchange.createOrderCalls, 1)
	assert.Equal(t, 1, exchange.tpslCalls)
	assert.Equal(t, 1, repo.updateCount())
}

// S2: a MARKET signal whose stated entry price is far from the mark price
// must fail PRICE_OUT_OF_RANGE before any placement call, per the MARKET
// proximity gate resolved in DESIGN.md.
func TestOpenPosition_S2_MarketProximityRejects(t *testing.T) {
	exchange := &fakeExchange{
		venue:         domain.VenueBinance,
		symbolFilters: testFilters(),
		markPrice:     decimal.NewFromFloat(100),
	}
	repo := &fakeTradeRepo{}
	h := newHarness(testConfig(), exchange, repo)

	trade := marketSignalTrade() // signal price 90 vs mark 100, P=2%
	err := h.coord.OpenPosition(context.Background(), trade)

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, trade.Status)
	assert.Equal(t, domain.FailurePriceOutOfRange, trade.FailureReason)
	assert.Empty(t, exchange.createOrderCalls, "no order should be placed once the proximity gate rejects")
	assert.Zero(t, exchange.changeLeverageCalls, "no leverage call should follow a rejected reference fetch")
	assert.Zero(t, exchange.tpslCalls)
	assert.Equal(t, 1, repo.updateCount())
}

// A MARKET signal within tolerance still proceeds to placement: the gate
// must not reject everything unconditionally.
func TestOpenPosition_MarketProximityAccepts(t *testing.T) {
	exchange := &fakeExchange{
		venue:         domain.VenueBinance,
		symbolFilters: testFilters(),
		markPrice:     decimal.NewFromFloat(100),
		createOrderResult: &ports.OrderResult{
			OrderID:     777,
			ExecutedQty: decimal.NewFromFloat(1.0),
			AvgPrice:    decimal.NewFromFloat(100),
		},
	}
	repo := &fakeTradeRepo{}
	h := newHarness(testConfig(), exchange, repo)

	trade := marketSignalTrade()
	trade.EntryPrices = []float64{99} // 1% from mark, under the 2% threshold
	err := h.coord.OpenPosition(context.Background(), trade)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, trade.Status)
	assert.Len(t, exchange.createOrderCalls, 1)
}

// A same-symbol REJECT decision must persist FailureTradeConflict, not the
// unrelated FailureCooldownActive reason.
func TestOpenPosition_RejectUsesTradeConflictReason(t *testing.T) {
	existing := &domain.Trade{CoinSymbol: "HYPE", PositionType: domain.Long}
	repo := &fakeTradeRepo{live: []*domain.Trade{existing, existing}}
	exchange := &fakeExchange{venue: domain.VenueBinance, symbolFilters: testFilters()}
	cfg := testConfig()
	h := newHarness(cfg, exchange, repo)
	// MaxPositionTrades=1 ceiling in newHarness, two live trades -> REJECT.

	trade := limitSignalTrade()
	err := h.coord.OpenPosition(context.Background(), trade)

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, trade.Status)
	assert.Equal(t, domain.FailureTradeConflict, trade.FailureReason)
	assert.True(t, trade.FailureReason.IsTerminalFailure())
	assert.Empty(t, exchange.createOrderCalls)
}

// P5: concurrent OpenPosition calls for the same symbol must never
// interleave. A recording exchange counts the callers inside
// GetSymbolFilters at once; if the mailbox let two opens run concurrently,
// it would see more than one active entrant.
type sequencingExchange struct {
	fakeExchange
	mu       sync.Mutex
	active   int
	sawOverlap bool
}

func (s *sequencingExchange) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.sawOverlap = true
	}
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return testFilters(), nil
}

func TestOpenPosition_P5_SameSymbolSerialized(t *testing.T) {
	exchange := &sequencingExchange{fakeExchange: fakeExchange{
		venue:     domain.VenueBinance,
		markPrice: decimal.NewFromFloat(31.8),
		createOrderResult: &ports.OrderResult{
			OrderID:     1,
			ExecutedQty: decimal.NewFromFloat(1),
			AvgPrice:    decimal.NewFromFloat(31.8),
		},
	}}
	repo := &fakeTradeRepo{}
	cfg := testConfig()
	pr := pricing.New(pricing.Config{Exchange: exchange, Logger: nopLogger{}})
	posMgr := position.New(position.Config{Trades: repo, MaxPositionTrades: 1})
	coord := New(Config{
		Cfg:      cfg,
		Exchange: exchange,
		Trades:   repo,
		Pricing:  pr,
		Position: posMgr,
		Risk:     risk.New(risk.Config{}, repo),
		Logger:   nopLogger{},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trade := limitSignalTrade()
			trade.DiscordID = "evt-p5"
			_ = coord.OpenPosition(context.Background(), trade)
		}(i)
	}
	wg.Wait()

	assert.False(t, exchange.sawOverlap, "mailbox must serialize all operations for one symbol")
}

// Symbol filter failure fails the trade before any pricing or placement call.
func TestOpenPosition_SymbolUnsupported(t *testing.T) {
	exchange := &fakeExchange{
		venue:      domain.VenueBinance,
		filtersErr: errors.New("unknown symbol"),
	}
	repo := &fakeTradeRepo{}
	h := newHarness(testConfig(), exchange, repo)

	trade := limitSignalTrade()
	err := h.coord.OpenPosition(context.Background(), trade)

	require.Error(t, err)
	assert.Equal(t, domain.FailureSymbolUnsupported, trade.FailureReason)
	assert.Empty(t, exchange.createOrderCalls)
}
