// Package pricing wraps an ports.ExchangeClient with a read-mostly cache for
// reference prices and symbol trading rules, the single-writer-refresh
// shared resource described for the Symbol-Filter and Price caches.
package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMegaBot/internal/ports"
)

const defaultPriceTTL = 5 * time.Second

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Service provides reference pricing and symbol metadata to the Trade
// Coordinator and Position Manager, backed by a single ports.ExchangeClient.
type Service struct {
	exchange ports.ExchangeClient
	logger   ports.Logger
	ttl      time.Duration

	mu     sync.RWMutex
	prices map[string]cachedPrice
}

// Config configures a Service.
type Config struct {
	Exchange ports.ExchangeClient
	Logger   ports.Logger
	PriceTTL time.Duration
}

// New builds a Service over the given exchange client.
func New(cfg Config) *Service {
	ttl := cfg.PriceTTL
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &Service{
		exchange: cfg.Exchange,
		logger:   cfg.Logger,
		ttl:      ttl,
		prices:   make(map[string]cachedPrice),
	}
}

// ReferencePrice returns the mark price for symbol, using a short-lived
// cache to avoid hammering the venue on bursty signal delivery.
func (s *Service) ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	cached, ok := s.prices[symbol]
	s.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < s.ttl {
		return cached.price, nil
	}

	price, err := s.exchange.GetMarkPrice(ctx, symbol)
	if err != nil {
		if ok {
			s.logger.Warn(ctx, "using stale reference price after refresh failure", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			return cached.price, nil
		}
		return decimal.Zero, fmt.Errorf("reference price unavailable for %s: %w", symbol, err)
	}

	s.mu.Lock()
	s.prices[symbol] = cachedPrice{price: price, fetchedAt: time.Now()}
	s.mu.Unlock()
	return price, nil
}

// SymbolFilters returns the symbol's trading rules via the exchange client's
// own TTL'd cache (binanceclient/filters.go, kucoinclient/account.go).
func (s *Service) SymbolFilters(ctx context.Context, symbol string) (*ports.SymbolFilters, error) {
	return s.exchange.GetSymbolFilters(ctx, symbol)
}

// PriceProximity reports the relative distance between a signal price and
// the current reference price, used by the Trade Coordinator's
// price-proximity preflight gate.
func PriceProximity(signalPrice, marketPrice decimal.Decimal) decimal.Decimal {
	if marketPrice.IsZero() {
		return decimal.Zero
	}
	return signalPrice.Sub(marketPrice).Abs().Div(marketPrice)
}
