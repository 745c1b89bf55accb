// Package fees computes trading costs and breakeven prices for the
// trade-lifecycle engine. All arithmetic runs in decimal to avoid the
// float64 drift that would otherwise creep into PnL accounting across a
// position's entry, partial closes, and fee deductions.
package fees

import (
	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"

	"github.com/shopspring/decimal"
)

const roundScale = 8

// Quantize rounds a value to the venue's step using floor semantics, the
// same convention henrylee's spot-dual core/rules.go applies for quantity
// steps: never round a sellable quantity up past what the venue allows.
func Quantize(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// QuantizeUp rounds a value up to the venue's step, used when a computed
// minimum (e.g. min-notional-implied quantity) must not fall short after
// quantization.
func QuantizeUp(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	return value.Div(step).Ceil().Mul(step)
}

// EnsureMinNotional bumps qty up (and re-quantizes) so that price*qty clears
// the venue's minimum notional, mirroring ensureMinNotionalQty from
// henrylee's spot-dual rules engine.
func EnsureMinNotional(price, qty, minNotional, step decimal.Decimal) decimal.Decimal {
	out := qty
	if minNotional.Sign() > 0 && price.Sign() > 0 {
		notional := price.Mul(out)
		if notional.Cmp(minNotional) < 0 {
			needed := minNotional.Div(price)
			if needed.Cmp(out) > 0 {
				out = needed
			}
		}
	}
	return QuantizeUp(out, step)
}

// Rate returns the per-side fee rate to apply, given the configured mode.
func Rate(cfg *config.Config, isMaker bool) decimal.Decimal {
	if cfg.FeeMode == config.FeeModeFixed {
		return decimal.NewFromFloat(cfg.FixedFeeRate)
	}
	rate := cfg.TakerFeeRate
	if isMaker {
		rate = cfg.MakerFeeRate
	}
	discount := cfg.BNBDiscount
	if discount <= 0 {
		discount = 1.0
	}
	return decimal.NewFromFloat(rate).Mul(decimal.NewFromFloat(discount)).RoundBank(roundScale)
}

// TradingFee returns the fee owed for one fill of the given notional.
func TradingFee(cfg *config.Config, notional decimal.Decimal, isMaker bool) decimal.Decimal {
	return notional.Mul(Rate(cfg, isMaker)).RoundBank(roundScale)
}

// TotalFee returns the combined entry + exit fee for a round trip at the
// given entry and exit notionals. Entry orders are always taker (market);
// exit is taker unless a maker limit close is used.
func TotalFee(cfg *config.Config, entryNotional, exitNotional decimal.Decimal, exitIsMaker bool) decimal.Decimal {
	entryFee := TradingFee(cfg, entryNotional, false)
	exitFee := TradingFee(cfg, exitNotional, exitIsMaker)
	return entryFee.Add(exitFee).RoundBank(roundScale)
}

// Breakeven returns the exit price that covers the round-trip fee when entry
// and exit are charged the same rate. The exit fee is charged on the exit
// notional, so RealizedPnL at this price is not exactly zero: it is off by
// 2*rate^2*entryPrice*qty (below zero for a LONG, above zero for a SHORT).
//
// For a LONG: breakeven = entryPrice * (1 + feeRate_entry + feeRate_exit)
// For a SHORT: breakeven = entryPrice * (1 - feeRate_entry - feeRate_exit)
func Breakeven(cfg *config.Config, posType domain.PositionType, entryPrice decimal.Decimal, isMaker bool) decimal.Decimal {
	rate := Rate(cfg, isMaker)
	combined := rate.Mul(decimal.NewFromInt(2))
	if posType == domain.Short {
		return entryPrice.Mul(decimal.NewFromInt(1).Sub(combined)).RoundBank(roundScale)
	}
	return entryPrice.Mul(decimal.NewFromInt(1).Add(combined)).RoundBank(roundScale)
}

// WeightedBreakeven computes the volume-weighted breakeven price across
// multiple entries at different prices and quantities (e.g. a position
// that was merged via the Position Manager's MERGE path).
func WeightedBreakeven(cfg *config.Config, posType domain.PositionType, entries []Entry, isMaker bool) decimal.Decimal {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, e := range entries {
		totalQty = totalQty.Add(e.Quantity)
		totalCost = totalCost.Add(e.Price.Mul(e.Quantity))
	}
	if totalQty.Sign() == 0 {
		return decimal.Zero
	}
	weightedEntry := totalCost.Div(totalQty)
	return Breakeven(cfg, posType, weightedEntry, isMaker)
}

// Entry is one fill contributing to a merged position's weighted entry price.
type Entry struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// RealizedPnL computes the net PnL of a closed quantity at exitPrice against
// entryPrice, in the direction implied by posType, minus the round-trip fee.
func RealizedPnL(cfg *config.Config, posType domain.PositionType, entryPrice, exitPrice, qty decimal.Decimal, exitIsMaker bool) decimal.Decimal {
	var gross decimal.Decimal
	if posType == domain.Short {
		gross = entryPrice.Sub(exitPrice).Mul(qty)
	} else {
		gross = exitPrice.Sub(entryPrice).Mul(qty)
	}
	fee := TotalFee(cfg, entryPrice.Mul(qty), exitPrice.Mul(qty), exitIsMaker)
	return gross.Sub(fee).RoundBank(roundScale)
}
