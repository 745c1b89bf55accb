package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
	"cryptoMegaBot/internal/sync"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// stubExchange is a no-op ports.ExchangeClient stand-in: enough to type-check
// and assemble a venueRuntime without talking to a real venue. Individual
// exchange behaviors are covered by the binanceclient/kucoinclient tests.
type stubExchange struct {
	venue domain.Venue
}

func (s *stubExchange) Venue() domain.Venue { return s.venue }
func (s *stubExchange) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	return nil, ports.ErrNotFound
}
func (s *stubExchange) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubExchange) GetOrderBookTop(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
func (s *stubExchange) GetAccountBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubExchange) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (s *stubExchange) CreateFuturesOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	return nil, ports.ErrUnknown
}
func (s *stubExchange) CreatePositionTPSL(ctx context.Context, symbol string, side domain.OrderSide, tp, sl *decimal.Decimal) (*ports.OrderResult, error) {
	return nil, ports.ErrInvalidRequest
}
func (s *stubExchange) CancelFuturesOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}
func (s *stubExchange) CancelAllFuturesOrders(ctx context.Context, symbol string) error { return nil }
func (s *stubExchange) GetOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResult, error) {
	return nil, nil
}
func (s *stubExchange) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResult, error) {
	return nil, ports.ErrOrderNotFound
}
func (s *stubExchange) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	return nil, nil
}
func (s *stubExchange) GetAllPositionRisk(ctx context.Context) ([]*ports.PositionRisk, error) {
	return nil, nil
}
func (s *stubExchange) GetIncome(ctx context.Context, symbol string, from, to time.Time) ([]ports.IncomeEvent, error) {
	return nil, nil
}
func (s *stubExchange) GetAccountTrades(ctx context.Context, symbol string, from, to time.Time) ([]ports.AccountTrade, error) {
	return nil, nil
}
func (s *stubExchange) CreateListenKey(ctx context.Context) (string, error) { return "stub", nil }
func (s *stubExchange) KeepAliveListenKey(ctx context.Context, listenKey string) error { return nil }
func (s *stubExchange) CloseListenKey(ctx context.Context, listenKey string) error     { return nil }
func (s *stubExchange) StreamUserData(ctx context.Context, listenKey string, handler func(ports.UserDataEvent), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	done, stop := make(chan struct{}), make(chan struct{})
	close(done)
	return done, stop, nil
}

type stubTradeRepo struct{}

func (s *stubTradeRepo) Create(ctx context.Context, t *domain.Trade) (int64, error) { return 1, nil }
func (s *stubTradeRepo) Update(ctx context.Context, t *domain.Trade) error          { return nil }
func (s *stubTradeRepo) FindByDiscordID(ctx context.Context, discordID string) (*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindByTimestampRange(ctx context.Context, from, to time.Time) (*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindByExchangeOrderID(ctx context.Context, venue domain.Venue, orderID int64) (*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindLiveBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindLiveOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindClosedMissingPnL(ctx context.Context) ([]*domain.Trade, error) {
	return nil, nil
}
func (s *stubTradeRepo) FindAll(ctx context.Context) ([]*domain.Trade, error) { return nil, nil }

type stubAlertRepo struct{}

func (s *stubAlertRepo) Create(ctx context.Context, a *domain.Alert) (int64, error) { return 1, nil }
func (s *stubAlertRepo) Update(ctx context.Context, a *domain.Alert) error          { return nil }
func (s *stubAlertRepo) FindByID(ctx context.Context, id int64) (*domain.Alert, error) {
	return nil, nil
}
func (s *stubAlertRepo) FindByParentDiscordID(ctx context.Context, parentDiscordID string) ([]*domain.Alert, error) {
	return nil, nil
}

type stubBalanceRepo struct{}

func (s *stubBalanceRepo) Upsert(ctx context.Context, b *domain.Balance) error { return nil }
func (s *stubBalanceRepo) FindByVenueAsset(ctx context.Context, venue domain.Venue, accountType, asset string) (*domain.Balance, error) {
	return nil, nil
}
func (s *stubBalanceRepo) FindAll(ctx context.Context) ([]*domain.Balance, error) { return nil, nil }

func TestBuildMux_Health(t *testing.T) {
	svc := &TradingService{logger: &mockLogger{}, scheduler: sync.NewScheduler(&mockLogger{})}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	svc.buildMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestBuildMux_SchedulerStatus(t *testing.T) {
	svc := &TradingService{logger: &mockLogger{}, scheduler: sync.NewScheduler(&mockLogger{})}
	req := httptest.NewRequest(http.MethodGet, "/scheduler/status", nil)
	rec := httptest.NewRecorder()
	svc.buildMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildMux_SchedulerRun_MissingName(t *testing.T) {
	svc := &TradingService{logger: &mockLogger{}, scheduler: sync.NewScheduler(&mockLogger{})}
	req := httptest.NewRequest(http.MethodPost, "/scheduler/run/", nil)
	rec := httptest.NewRecorder()
	svc.buildMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildMux_SchedulerRun_UnknownLoop(t *testing.T) {
	svc := &TradingService{logger: &mockLogger{}, scheduler: sync.NewScheduler(&mockLogger{})}
	req := httptest.NewRequest(http.MethodPost, "/scheduler/run/nonexistent", nil)
	rec := httptest.NewRecorder()
	svc.buildMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVenueNames(t *testing.T) {
	svc := &TradingService{venues: []*venueRuntime{{venue: "binance"}, {venue: "kucoin"}}}
	assert.Equal(t, []string{"binance", "kucoin"}, svc.venueNames())
}

// TestBuildVenueRuntime_Wiring exercises the real construction path for a
// single venue's coordinator/ingestor/loop set against in-memory stubs,
// confirming the dependency graph assembles without a live exchange
// connection.
func TestBuildVenueRuntime_Wiring(t *testing.T) {
	cfg := &config.Config{
		TradeCooldown:          0,
		PositionCooldown:       0,
		MaxPositionTrades:      3,
		StatusSyncInterval:     time.Minute,
		PnLBackfillInterval:    time.Minute,
		OrphanCleanupInterval:  time.Minute,
		BalanceSyncInterval:    time.Minute,
		PositionAuditInterval:  time.Minute,
		TrackedBalanceAssets:   []string{"USDT"},
	}
	logger := &mockLogger{}
	deps := Dependencies{
		Cfg:      cfg,
		Logger:   logger,
		Trades:   &stubTradeRepo{},
		Alerts:   &stubAlertRepo{},
		Balances: &stubBalanceRepo{},
	}
	svc := &TradingService{cfg: cfg, logger: logger}

	rt := svc.buildVenueRuntime("test-venue", &stubExchange{venue: domain.VenueBinance}, deps)
	require.NotNil(t, rt)
	assert.Equal(t, "test-venue", rt.venue)
	assert.NotNil(t, rt.coordinator)
	assert.NotNil(t, rt.ingestor)
	assert.Len(t, rt.loops, 5)
}
