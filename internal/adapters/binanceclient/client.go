package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	filterCacheTTL = time.Hour
)

// Client implements ports.ExchangeClient against Binance USDⓈ-M futures.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	limiter              *rate.Limiter

	filterMu sync.RWMutex
	filters  map[string]*ports.SymbolFilters
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RequestsPerSecond    float64 // aggregate REST rate limit, default 10
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		limiter:              rate.NewLimiter(rate.Limit(rps), int(rps)),
		filters:              make(map[string]*ports.SymbolFilters),
	}, nil
}

func (c *Client) Venue() domain.Venue { return domain.VenueBinance }

// wait blocks for a REST request token, respecting ctx cancellation.
func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003:
			mappedErr = ports.ErrRateLimited
		case -1021:
			mappedErr = ports.ErrTimeout
		case -1022:
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010:
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011:
			mappedErr = ports.ErrOrderCancelFailed
		case -2013:
			mappedErr = ports.ErrOrderNotFound
		case -2014:
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015:
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019:
			mappedErr = ports.ErrInsufficientFunds
		case -2021:
			mappedErr = ports.ErrInvalidRequest // order would immediately trigger
		case -2022:
			mappedErr = ports.ErrOrderPlacementFailed
		case -3005:
			mappedErr = ports.ErrInsufficientFunds
		case -3041:
			mappedErr = ports.ErrInsufficientFunds
		case -4003:
			mappedErr = ports.ErrQtyOutOfBounds
		case -4005:
			mappedErr = ports.ErrQtyOutOfBounds
		case -4013:
			mappedErr = ports.ErrPriceOutOfRange
		case -4014:
			mappedErr = ports.ErrPriceOutOfRange
		case -4015:
			mappedErr = ports.ErrInvalidRequest
		case -4131:
			mappedErr = ports.ErrPriceOutOfRange // would immediately trigger
		case -4044:
			mappedErr = ports.ErrPositionNotFound
		case -4047:
			mappedErr = ports.ErrInsufficientFunds
		case -1121:
			mappedErr = ports.ErrSymbolUnsupported
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetMarkPrice retrieves the current mark price for a given symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	op := "GetMarkPrice"
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return decimal.Zero, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}
	price, err := decimal.NewFromString(tickers[0].MarkPrice)
	if err != nil {
		return decimal.Zero, c.handleError(ctx, fmt.Errorf("could not parse price %q: %w", tickers[0].MarkPrice, err), op)
	}
	return price, nil
}

// GetOrderBookTop retrieves the best bid/ask for a symbol.
func (c *Client) GetOrderBookTop(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	op := "GetOrderBookTop"
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	book, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, c.handleError(ctx, err, op)
	}
	if len(book) == 0 {
		return decimal.Zero, decimal.Zero, c.handleError(ctx, fmt.Errorf("no book ticker for symbol %s", symbol), op)
	}
	bid, err := decimal.NewFromString(book[0].BidPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, c.handleError(ctx, err, op)
	}
	ask, err := decimal.NewFromString(book[0].AskPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, c.handleError(ctx, err, op)
	}
	return bid, ask, nil
}

// GetAccountBalance retrieves the available balance for a specific asset.
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	op := "GetAccountBalance"
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == asset {
			balance, err := decimal.NewFromString(bal.WalletBalance)
			if err != nil {
				return decimal.Zero, c.handleError(ctx, fmt.Errorf("could not parse balance %q for asset %s: %w", bal.WalletBalance, asset, err), op)
			}
			return balance, nil
		}
	}
	return decimal.Zero, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance", asset), op)
}

// ChangeLeverage sets the leverage for a specific symbol.
func (c *Client) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "ChangeLeverage"
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.futuresClient.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// GetPositionRisk retrieves the risk information for a specific symbol.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	op := "GetPositionRisk"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	risk := translatePositionRisk(positions[0])
	if risk == nil || risk.IsFlat() {
		return nil, nil
	}
	return risk, nil
}

// GetAllPositionRisk retrieves risk information for every symbol with a
// non-zero position.
func (c *Client) GetAllPositionRisk(ctx context.Context) ([]*ports.PositionRisk, error) {
	op := "GetAllPositionRisk"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	positions, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]*ports.PositionRisk, 0, len(positions))
	for _, p := range positions {
		risk := translatePositionRisk(p)
		if risk != nil && !risk.IsFlat() {
			out = append(out, risk)
		}
	}
	return out, nil
}

func translatePositionRisk(pos *futures.PositionRisk) *ports.PositionRisk {
	if pos == nil {
		return nil
	}
	posAmt, _ := decimal.NewFromString(pos.PositionAmt)
	entryPrice, _ := decimal.NewFromString(pos.EntryPrice)
	markPrice, _ := decimal.NewFromString(pos.MarkPrice)
	unProfit, _ := decimal.NewFromString(pos.UnRealizedProfit)
	liqPrice, _ := decimal.NewFromString(pos.LiquidationPrice)
	leverage, _ := strconv.Atoi(pos.Leverage)

	return &ports.PositionRisk{
		Symbol:           pos.Symbol,
		PositionAmt:      posAmt,
		EntryPrice:       entryPrice,
		MarkPrice:        markPrice,
		UnRealizedProfit: unProfit,
		LiquidationPrice: liqPrice,
		Leverage:         leverage,
	}
}
