package binanceclient

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

var incomeTypeMap = map[string]domain.TransactionType{
	"REALIZED_PNL": domain.TransactionRealizedPnL,
	"COMMISSION":   domain.TransactionCommission,
	"FUNDING_FEE":  domain.TransactionFundingFee,
	"TRANSFER":     domain.TransactionTransfer,
}

// GetIncome retrieves income events (PnL, commission, funding, transfer)
// within a time window.
func (c *Client) GetIncome(ctx context.Context, symbol string, from, to time.Time) ([]ports.IncomeEvent, error) {
	op := "GetIncome"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	svc := c.futuresClient.NewGetIncomeHistoryService().StartTime(from.UnixMilli()).EndTime(to.UnixMilli())
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	rows, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]ports.IncomeEvent, 0, len(rows))
	for _, r := range rows {
		t, ok := incomeTypeMap[r.IncomeType]
		if !ok {
			continue
		}
		raw, _ := json.Marshal(r)
		out = append(out, ports.IncomeEvent{
			Time:   time.UnixMilli(r.Time),
			Type:   t,
			Income: parseDecimalOrZero(r.Income),
			Asset:  r.Asset,
			Symbol: r.Symbol,
			TranID: strconv.FormatInt(r.TranID, 10),
			Raw:    raw,
		})
	}
	return out, nil
}

// GetAccountTrades retrieves fills within a time window.
func (c *Client) GetAccountTrades(ctx context.Context, symbol string, from, to time.Time) ([]ports.AccountTrade, error) {
	op := "GetAccountTrades"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	trades, err := c.futuresClient.NewListAccountTradeService().
		Symbol(symbol).StartTime(from.UnixMilli()).EndTime(to.UnixMilli()).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]ports.AccountTrade, 0, len(trades))
	for _, t := range trades {
		raw, _ := json.Marshal(t)
		out = append(out, ports.AccountTrade{
			OrderID:     t.OrderID,
			Symbol:      t.Symbol,
			Side:        domain.OrderSide(t.Side),
			Price:       parseDecimalOrZero(t.Price),
			Qty:         parseDecimalOrZero(t.Quantity),
			RealizedPnl: parseDecimalOrZero(t.RealizedPnl),
			Commission:  parseDecimalOrZero(t.Commission),
			Time:        time.UnixMilli(t.Time),
			Raw:         raw,
		})
	}
	return out, nil
}
