package binanceclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"

	"github.com/adshao/go-binance/v2/futures"
)

// CreateFuturesOrder submits an order to Binance futures.
func (c *Client) CreateFuturesOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	op := "CreateFuturesOrder"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type))

	if !req.Quantity.IsZero() {
		svc = svc.Quantity(req.Quantity.String())
	}
	if !req.Price.IsZero() {
		svc = svc.Price(req.Price.String())
	}
	if !req.StopPrice.IsZero() {
		svc = svc.StopPrice(req.StopPrice.String())
	}
	if req.TimeInForce != "" {
		svc = svc.TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}
	if req.ClosePosition {
		svc = svc.ClosePosition(true)
	} else if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateCreateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": req.Symbol, "side": req.Side, "type": req.Type, "orderID": resp.OrderID,
	})
	return resp, nil
}

// CreatePositionTPSL attempts to install take-profit/stop-loss via two
// reduce-only stop/take-profit-market orders closing the full position.
// Binance USDⓈ-M futures has no single combined TP/SL call in one-way mode,
// so this places them sequentially and reports the stop-loss order (the
// higher-priority leg) as the primary result; when a stop-loss leg was
// placed, the take-profit leg's result is not returned to the caller.
func (c *Client) CreatePositionTPSL(ctx context.Context, symbol string, side domain.OrderSide, tp, sl *decimal.Decimal) (*ports.OrderResult, error) {
	op := "CreatePositionTPSL"
	closeSide := side.Opposite()

	var slResult, tpResult *ports.OrderResult
	if sl != nil {
		r, err := c.CreateFuturesOrder(ctx, ports.OrderRequest{
			Symbol: symbol, Side: closeSide, Type: string(futures.OrderTypeStopMarket),
			StopPrice: *sl, ClosePosition: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: stop-loss leg: %w", op, err)
		}
		slResult = r
	}
	if tp != nil {
		r, err := c.CreateFuturesOrder(ctx, ports.OrderRequest{
			Symbol: symbol, Side: closeSide, Type: string(futures.OrderTypeTakeProfitMarket),
			StopPrice: *tp, ClosePosition: true,
		})
		if err != nil {
			return slResult, fmt.Errorf("%s: take-profit leg: %w", op, err)
		}
		tpResult = r
	}
	if slResult != nil {
		return slResult, nil
	}
	return tpResult, nil
}

// CancelFuturesOrder cancels a single open order.
func (c *Client) CancelFuturesOrder(ctx context.Context, symbol string, orderID int64) error {
	op := "CancelFuturesOrder"
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	return nil
}

// CancelAllFuturesOrders cancels every open order for a symbol.
func (c *Client) CancelAllFuturesOrders(ctx context.Context, symbol string) error {
	op := "CancelAllFuturesOrders"
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.futuresClient.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol})
	return nil
}

// GetOpenOrders lists open orders for a symbol, or every symbol if empty.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResult, error) {
	op := "GetOpenOrders"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	svc := c.futuresClient.NewListOpenOrdersService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	orders, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]*ports.OrderResult, 0, len(orders))
	for _, o := range orders {
		out = append(out, translateOrder(o))
	}
	return out, nil
}

// GetOrderStatus probes an order's current state. A transport or API failure
// here must never be taken as evidence the order was not placed; callers
// retry the probe rather than treating an error as a negative result.
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*ports.OrderResult, error) {
	op := "GetOrderStatus"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	order, err := c.futuresClient.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

func translateCreateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	raw, _ := json.Marshal(order)
	return &ports.OrderResult{
		Raw:           raw,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          domain.OrderSide(order.Side),
		Type:          string(order.Type),
		Status:        string(order.Status),
		Price:         parseDecimalOrZero(order.Price),
		AvgPrice:      parseDecimalOrZero(order.AvgPrice),
		OrigQuantity:  parseDecimalOrZero(order.OrigQuantity),
		ExecutedQty:   parseDecimalOrZero(order.ExecutedQuantity),
	}
}

func translateOrder(order *futures.Order) *ports.OrderResult {
	if order == nil {
		return nil
	}
	raw, _ := json.Marshal(order)
	return &ports.OrderResult{
		Raw:           raw,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          domain.OrderSide(order.Side),
		Type:          string(order.Type),
		Status:        string(order.Status),
		Price:         parseDecimalOrZero(order.Price),
		AvgPrice:      parseDecimalOrZero(order.AvgPrice),
		OrigQuantity:  parseDecimalOrZero(order.OrigQuantity),
		ExecutedQty:   parseDecimalOrZero(order.ExecutedQuantity),
	}
}
