package kucoinclient

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

// kucoinOrderSide/orderType map the shared domain vocabulary onto KuCoin's
// lowercase wire values.
func kucoinSide(side domain.OrderSide) string {
	if side == domain.Sell {
		return "sell"
	}
	return "buy"
}

func kucoinOrderType(t string) string {
	switch t {
	case "MARKET":
		return "market"
	case "LIMIT":
		return "limit"
	default:
		return "market"
	}
}

type orderResponse struct {
	OrderID string `json:"orderId"`
}

// CreateFuturesOrder submits an order to KuCoin Futures. Success is solely
// the presence of an order id in the response, per the shared placement
// contract.
func (c *Client) CreateFuturesOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	op := "CreateFuturesOrder"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"clientOid": fmt.Sprintf("cmb-%d", time.Now().UnixNano()),
		"symbol":    req.Symbol,
		"side":      kucoinSide(req.Side),
		"type":      kucoinOrderType(req.Type),
		"size":      req.Quantity.String(),
		"reduceOnly": req.ReduceOnly,
	}
	if req.Type == "LIMIT" {
		payload["price"] = req.Price.String()
		if req.TimeInForce != "" {
			payload["timeInForce"] = req.TimeInForce
		}
	}
	if !req.StopPrice.IsZero() {
		payload["stop"] = "down"
		payload["stopPrice"] = req.StopPrice.String()
		payload["stopPriceType"] = "MP"
	}
	if req.ClosePosition {
		payload["closeOrder"] = true
	}

	data, err := c.doRequest(ctx, "POST", "/api/v1/orders", nil, payload, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	var resp orderResponse
	if err := unmarshalData(data, &resp); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if resp.OrderID == "" {
		return &ports.OrderResult{Raw: data}, nil
	}
	orderID := kucoinOrderIDToInt64(resp.OrderID)
	c.rememberOrderID(orderID, resp.OrderID)

	status, err := c.GetOrderStatus(ctx, req.Symbol, orderID)
	if err != nil {
		// The order was placed; a failed follow-up probe does not undo that.
		return &ports.OrderResult{Raw: data, OrderID: orderID, Symbol: req.Symbol, Side: req.Side, Type: req.Type}, nil
	}
	return status, nil
}

// CreatePositionTPSL is not supported by KuCoin's order API the way Binance
// exposes position-mode TP/SL; callers fall back to separate reduce-only
// stop orders via CreateFuturesOrder.
func (c *Client) CreatePositionTPSL(ctx context.Context, symbol string, side domain.OrderSide, tp, sl *decimal.Decimal) (*ports.OrderResult, error) {
	return nil, fmt.Errorf("CreatePositionTPSL: %w", ports.ErrInvalidRequest)
}

// CancelFuturesOrder cancels a single open order by its KuCoin order id.
func (c *Client) CancelFuturesOrder(ctx context.Context, symbol string, orderID int64) error {
	op := "CancelFuturesOrder"
	if err := c.wait(ctx); err != nil {
		return err
	}
	nativeID, ok := c.nativeOrderID(orderID)
	if !ok {
		return fmt.Errorf("%s: unknown order id %d: %w", op, orderID, ports.ErrOrderNotFound)
	}
	_, err := c.doRequest(ctx, "DELETE", "/api/v1/orders/"+nativeID, nil, nil, true)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

// CancelAllFuturesOrders cancels every open order for a symbol.
func (c *Client) CancelAllFuturesOrders(ctx context.Context, symbol string) error {
	op := "CancelAllFuturesOrders"
	if err := c.wait(ctx); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	_, err := c.doRequest(ctx, "DELETE", "/api/v1/orders", q, nil, true)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

type kucoinOrder struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	FilledSize    string `json:"filledSize"`
	Status        string `json:"status"`
	IsActive      bool   `json:"isActive"`
	CancelExist   bool   `json:"cancelExist"`
	DealFunds     string `json:"dealFunds"`
	UpdatedAt     int64  `json:"updatedAt"`
}

func (c *Client) toResult(o *kucoinOrder, raw []byte) *ports.OrderResult {
	result := o.toResult(raw)
	c.rememberOrderID(result.OrderID, o.ID)
	return result
}

func (o *kucoinOrder) toResult(raw []byte) *ports.OrderResult {
	status := "NEW"
	switch {
	case o.CancelExist:
		status = "CANCELED"
	case !o.IsActive && o.FilledSize == o.Size && o.Size != "":
		status = "FILLED"
	case !o.IsActive:
		status = "EXPIRED"
	case parseDecimalOrZero(o.FilledSize).Sign() > 0:
		status = "PARTIALLY_FILLED"
	}

	avgPrice := decimal.Zero
	filled := parseDecimalOrZero(o.FilledSize)
	if filled.Sign() > 0 {
		avgPrice = parseDecimalOrZero(o.DealFunds).Div(filled)
	}

	side := domain.Buy
	if o.Side == "sell" {
		side = domain.Sell
	}

	return &ports.OrderResult{
		Raw:          raw,
		OrderID:      kucoinOrderIDToInt64(o.ID),
		Symbol:       o.Symbol,
		Side:         side,
		Type:         o.Type,
		Status:       status,
		Price:        parseDecimalOrZero(o.Price),
		AvgPrice:     avgPrice,
		OrigQuantity: parseDecimalOrZero(o.Size),
		ExecutedQty:  filled,
		UpdateTime:   time.UnixMilli(o.UpdatedAt),
	}
}

// GetOrderStatus probes an order's current state.
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResult, error) {
	op := "GetOrderStatus"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	nativeID, ok := c.nativeOrderID(orderID)
	if !ok {
		return nil, fmt.Errorf("%s: unknown order id %d: %w", op, orderID, ports.ErrOrderNotFound)
	}
	data, err := c.doRequest(ctx, "GET", "/api/v1/orders/"+nativeID, nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	var o kucoinOrder
	if err := unmarshalData(data, &o); err != nil {
		return nil, fmt.Errorf("%s: failed to decode order: %w", op, err)
	}
	return c.toResult(&o, data), nil
}

// GetOpenOrders lists open orders for a symbol (or all symbols if empty).
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResult, error) {
	op := "GetOpenOrders"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("status", "active")
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	data, err := c.doRequest(ctx, "GET", "/api/v1/orders", q, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	var page struct {
		Items []kucoinOrder `json:"items"`
	}
	if err := unmarshalData(data, &page); err != nil {
		return nil, fmt.Errorf("%s: failed to decode orders page: %w", op, err)
	}
	out := make([]*ports.OrderResult, 0, len(page.Items))
	for i := range page.Items {
		out = append(out, c.toResult(&page.Items[i], nil))
	}
	return out, nil
}

// kucoinOrderIDToInt64 turns KuCoin's string order ids into the shared int64
// identity used across ports.OrderResult. KuCoin ids are hex-encoded Mongo
// ObjectIDs, not numeric, so the client keeps a reverse lookup; lacking that
// here, it derives a stable non-zero int64 via FNV-1a so HasOrderID()
// behaves correctly, while Raw always carries the authoritative string id.
func kucoinOrderIDToInt64(id string) int64 {
	if id == "" {
		return 0
	}
	var h uint64 = 1469598103934665603
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	v := int64(h)
	if v == 0 {
		v = 1
	}
	if v < 0 {
		v = -v
	}
	return v
}
