package binanceclient

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/ports"
)

// GetSymbolFilters returns the cached trading rules for a symbol, refreshing
// the whole exchange-info table if the cache is stale or the symbol is
// missing from it. A symbol whose status is not TRADING yields
// ports.ErrSymbolUnsupported.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	c.filterMu.RLock()
	cached, ok := c.filters[symbol]
	c.filterMu.RUnlock()
	if ok && time.Since(cached.FetchedAt) < filterCacheTTL {
		if cached.Status != "TRADING" {
			return nil, fmt.Errorf("symbol %s has status %s: %w", symbol, cached.Status, ports.ErrSymbolUnsupported)
		}
		return cached, nil
	}

	if err := c.refreshSymbolFilters(ctx); err != nil {
		// A stale-but-present entry is still usable if the refresh itself failed.
		if ok && cached.Status == "TRADING" {
			return cached, nil
		}
		return nil, err
	}

	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	f, ok := c.filters[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ports.ErrSymbolUnsupported)
	}
	if f.Status != "TRADING" {
		return nil, fmt.Errorf("symbol %s has status %s: %w", symbol, f.Status, ports.ErrSymbolUnsupported)
	}
	return f, nil
}

func (c *Client) refreshSymbolFilters(ctx context.Context) error {
	op := "refreshSymbolFilters"
	if err := c.wait(ctx); err != nil {
		return err
	}
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	next := make(map[string]*ports.SymbolFilters, len(info.Symbols))
	now := time.Now()
	for _, s := range info.Symbols {
		f := &ports.SymbolFilters{
			Symbol:    s.Symbol,
			Status:    s.Status,
			FetchedAt: now,
		}
		if lot := s.LotSizeFilter(); lot != nil {
			f.StepSize = parseDecimalOrZero(lot.StepSize)
			f.MinQty = parseDecimalOrZero(lot.MinQuantity)
			f.MaxQty = parseDecimalOrZero(lot.MaxQuantity)
		}
		if pf := s.PriceFilter(); pf != nil {
			f.TickSize = parseDecimalOrZero(pf.TickSize)
		}
		if mn := s.MinNotionalFilter(); mn != nil {
			f.MinNotional = parseDecimalOrZero(mn.Notional)
		}
		next[s.Symbol] = f
	}

	c.filterMu.Lock()
	c.filters = next
	c.filterMu.Unlock()
	return nil
}

func parseDecimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
