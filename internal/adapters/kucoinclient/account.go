package kucoinclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

func unmarshalData(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

type contractDetail struct {
	Symbol         string `json:"symbol"`
	Status         string `json:"status"`
	LotSize        string `json:"lotSize"`
	MultiplierLow  string `json:"multiplier"`
	TickSize       string `json:"tickSize"`
	MaxOrderQty    string `json:"maxOrderQty"`
}

// GetSymbolFilters returns the cached (or freshly fetched) trading rules for
// a symbol.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	c.filterMu.RLock()
	if f, ok := c.filters[symbol]; ok && time.Since(f.FetchedAt) < filterCacheTTL {
		c.filterMu.RUnlock()
		return f, nil
	}
	c.filterMu.RUnlock()

	op := "GetSymbolFilters"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	data, err := c.doRequest(ctx, "GET", "/api/v1/contracts/"+symbol, nil, nil, false)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrSymbolUnsupported, err)
	}

	var detail contractDetail
	if err := unmarshalData(data, &detail); err != nil {
		return nil, fmt.Errorf("%s: failed to decode contract: %w", op, err)
	}
	if detail.Status != "Open" {
		return nil, fmt.Errorf("%s: symbol %s not trading: %w", op, symbol, ports.ErrSymbolUnsupported)
	}

	filters := &ports.SymbolFilters{
		Symbol:      detail.Symbol,
		Status:      "TRADING",
		StepSize:    parseDecimalOrZero(detail.LotSize),
		MinQty:      decimal.NewFromInt(1),
		MaxQty:      parseDecimalOrZero(detail.MaxOrderQty),
		TickSize:    parseDecimalOrZero(detail.TickSize),
		MinNotional: decimal.Zero,
		FetchedAt:   time.Now(),
	}

	c.filterMu.Lock()
	c.filters[symbol] = filters
	c.filterMu.Unlock()
	return filters, nil
}

// GetMarkPrice retrieves the current mark price for a given symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	op := "GetMarkPrice"
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	data, err := c.doRequest(ctx, "GET", "/api/v1/mark-price/"+symbol+"/current", nil, nil, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s failed: %w", op, err)
	}
	var resp struct {
		Value decimal.Decimal `json:"value"`
	}
	if err := unmarshalData(data, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%s: failed to decode mark price: %w", op, err)
	}
	return resp.Value, nil
}

// GetOrderBookTop retrieves the best bid/ask for a symbol.
func (c *Client) GetOrderBookTop(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	op := "GetOrderBookTop"
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	data, err := c.doRequest(ctx, "GET", "/api/v1/ticker", q, nil, false)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%s failed: %w", op, err)
	}
	var resp struct {
		BestBidPrice string `json:"bestBidPrice"`
		BestAskPrice string `json:"bestAskPrice"`
	}
	if err := unmarshalData(data, &resp); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%s: failed to decode ticker: %w", op, err)
	}
	return parseDecimalOrZero(resp.BestBidPrice), parseDecimalOrZero(resp.BestAskPrice), nil
}

// GetAccountBalance retrieves the available balance for a specific asset
// (KuCoin futures accounts are keyed by settlement currency, e.g. "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	op := "GetAccountBalance"
	if err := c.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	q := url.Values{}
	q.Set("currency", asset)
	data, err := c.doRequest(ctx, "GET", "/api/v1/account-overview", q, nil, true)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s failed: %w", op, err)
	}
	var resp struct {
		AvailableBalance decimal.Decimal `json:"availableBalance"`
	}
	if err := unmarshalData(data, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%s: failed to decode account overview: %w", op, err)
	}
	return resp.AvailableBalance, nil
}

// ChangeLeverage is a no-op acknowledgement: KuCoin Futures sets leverage
// per-order (the "leverage" field on CreateFuturesOrder) rather than via a
// standing account-level setting, unlike Binance.
func (c *Client) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	c.logger.Debug(ctx, "ChangeLeverage is per-order on KuCoin, no standing account setting to change", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

type kucoinPosition struct {
	Symbol           string `json:"symbol"`
	CurrentQty       int64  `json:"currentQty"`
	AvgEntryPrice    string `json:"avgEntryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnrealisedPnl    string `json:"unrealisedPnl"`
	LiquidationPrice string `json:"liquidationPrice"`
	RealLeverage     string `json:"realLeverage"`
}

func (p *kucoinPosition) toRisk() *ports.PositionRisk {
	leverage := 1
	if lv, err := decimal.NewFromString(p.RealLeverage); err == nil {
		leverage = int(lv.IntPart())
	}
	return &ports.PositionRisk{
		Symbol:           p.Symbol,
		PositionAmt:      decimal.NewFromInt(p.CurrentQty),
		EntryPrice:       parseDecimalOrZero(p.AvgEntryPrice),
		MarkPrice:        parseDecimalOrZero(p.MarkPrice),
		UnRealizedProfit: parseDecimalOrZero(p.UnrealisedPnl),
		LiquidationPrice: parseDecimalOrZero(p.LiquidationPrice),
		Leverage:         leverage,
	}
}

// GetPositionRisk retrieves the risk information for a specific symbol.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	op := "GetPositionRisk"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	data, err := c.doRequest(ctx, "GET", "/api/v1/position", q, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	var pos kucoinPosition
	if err := unmarshalData(data, &pos); err != nil {
		return nil, fmt.Errorf("%s: failed to decode position: %w", op, err)
	}
	risk := pos.toRisk()
	if risk.IsFlat() {
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
	data, err := c.doRequest(ctx, "GET", "/api/v1/positions", nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	var positions []kucoinPosition
	if err := unmarshalData(data, &positions); err != nil {
		return nil, fmt.Errorf("%s: failed to decode positions: %w", op, err)
	}
	out := make([]*ports.PositionRisk, 0, len(positions))
	for i := range positions {
		risk := positions[i].toRisk()
		if !risk.IsFlat() {
			out = append(out, risk)
		}
	}
	return out, nil
}

type kucoinFill struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Fee         string `json:"fee"`
	TradeTime   int64  `json:"tradeTime"`
}

// GetAccountTrades retrieves fills within a time window. KuCoin's fills
// endpoint does not report per-fill realized PnL the way Binance's does;
// callers fall back to computing it themselves (internal/fees.RealizedPnL).
func (c *Client) GetAccountTrades(ctx context.Context, symbol string, from, to time.Time) ([]ports.AccountTrade, error) {
	op := "GetAccountTrades"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("startAt", fmt.Sprintf("%d", from.UnixMilli()))
	q.Set("endAt", fmt.Sprintf("%d", to.UnixMilli()))
	data, err := c.doRequest(ctx, "GET", "/api/v1/fills", q, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	var page struct {
		Items []kucoinFill `json:"items"`
	}
	if err := unmarshalData(data, &page); err != nil {
		return nil, fmt.Errorf("%s: failed to decode fills: %w", op, err)
	}
	out := make([]ports.AccountTrade, 0, len(page.Items))
	for _, f := range page.Items {
		side := domain.Buy
		if f.Side == "sell" {
			side = domain.Sell
		}
		raw, _ := json.Marshal(f)
		out = append(out, ports.AccountTrade{
			OrderID:    kucoinOrderIDToInt64(f.OrderID),
			Symbol:     f.Symbol,
			Side:       side,
			Price:      parseDecimalOrZero(f.Price),
			Qty:        parseDecimalOrZero(f.Size),
			Commission: parseDecimalOrZero(f.Fee),
			Time:       time.UnixMilli(f.TradeTime),
			Raw:        raw,
		})
	}
	return out, nil
}

type kucoinIncome struct {
	Time     int64  `json:"time"`
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// GetIncome retrieves income events (PnL, commission, funding, transfer)
// within a time window via KuCoin's transaction-history endpoint.
func (c *Client) GetIncome(ctx context.Context, symbol string, from, to time.Time) ([]ports.IncomeEvent, error) {
	op := "GetIncome"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	q.Set("startAt", fmt.Sprintf("%d", from.UnixMilli()))
	q.Set("endAt", fmt.Sprintf("%d", to.UnixMilli()))
	data, err := c.doRequest(ctx, "GET", "/api/v1/transaction-history", q, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	var page struct {
		Items []kucoinIncome `json:"items"`
	}
	if err := unmarshalData(data, &page); err != nil {
		return nil, fmt.Errorf("%s: failed to decode transaction history: %w", op, err)
	}
	out := make([]ports.IncomeEvent, 0, len(page.Items))
	for _, it := range page.Items {
		raw, _ := json.Marshal(it)
		out = append(out, ports.IncomeEvent{
			Time:   time.UnixMilli(it.Time),
			Type:   mapIncomeType(it.Type),
			Income: parseDecimalOrZero(it.Amount),
			Asset:  it.Currency,
			Symbol: symbol,
			Raw:    raw,
		})
	}
	return out, nil
}

func mapIncomeType(t string) domain.TransactionType {
	switch t {
	case "RealisedPNL":
		return domain.TransactionRealizedPnL
	case "Fee":
		return domain.TransactionCommission
	case "FundingFee":
		return domain.TransactionFundingFee
	default:
		return domain.TransactionTransfer
	}
}
