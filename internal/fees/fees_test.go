package fees

import (
	"testing"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		FeeMode:      config.FeeModeTiered,
		MakerFeeRate: 0.0002,
		TakerFeeRate: 0.0004,
		BNBDiscount:  1.0,
	}
}

func TestQuantizeFloorsToStep(t *testing.T) {
	got := Quantize(decimal.NewFromFloat(1.2345), decimal.NewFromFloat(0.01))
	assert.True(t, got.Equal(decimal.NewFromFloat(1.23)), "got %s", got)
}

func TestQuantizeUpRoundsAwayFromZero(t *testing.T) {
	got := QuantizeUp(decimal.NewFromFloat(1.231), decimal.NewFromFloat(0.01))
	assert.True(t, got.Equal(decimal.NewFromFloat(1.24)), "got %s", got)
}

func TestEnsureMinNotionalBumpsQty(t *testing.T) {
	price := decimal.NewFromFloat(2.0)
	qty := decimal.NewFromFloat(1.0) // notional 2, below min
	out := EnsureMinNotional(price, qty, decimal.NewFromFloat(10), decimal.NewFromFloat(0.1))
	require.True(t, price.Mul(out).GreaterThanOrEqual(decimal.NewFromFloat(10)))
}

func TestBreakevenLongIsAboveEntry(t *testing.T) {
	cfg := testConfig()
	entry := decimal.NewFromFloat(100)
	be := Breakeven(cfg, domain.Long, entry, false)
	assert.True(t, be.GreaterThan(entry))
}

func TestBreakevenShortIsBelowEntry(t *testing.T) {
	cfg := testConfig()
	entry := decimal.NewFromFloat(100)
	be := Breakeven(cfg, domain.Short, entry, false)
	assert.True(t, be.LessThan(entry))
}

// Closing exactly at breakeven must realize ~0 PnL: this is the round-trip
// fee property the whole fees package exists to guarantee.
func TestRealizedPnLAtBreakevenIsZero(t *testing.T) {
	cfg := testConfig()
	entry := decimal.NewFromFloat(100)
	qty := decimal.NewFromFloat(10)
	be := Breakeven(cfg, domain.Long, entry, false)
	pnl := RealizedPnL(cfg, domain.Long, entry, be, qty, false)
	assert.True(t, pnl.Abs().LessThan(decimal.NewFromFloat(0.01)), "pnl=%s", pnl)
}

func TestWeightedBreakevenMatchesSingleEntry(t *testing.T) {
	cfg := testConfig()
	entries := []Entry{{Price: decimal.NewFromFloat(100), Quantity: decimal.NewFromFloat(5)}}
	weighted := WeightedBreakeven(cfg, domain.Long, entries, false)
	single := Breakeven(cfg, domain.Long, decimal.NewFromFloat(100), false)
	assert.True(t, weighted.Equal(single))
}

func TestFixedFeeModeIgnoresMakerTaker(t *testing.T) {
	cfg := testConfig()
	cfg.FeeMode = config.FeeModeFixed
	cfg.FixedFeeRate = 0.0005
	maker := Rate(cfg, true)
	taker := Rate(cfg, false)
	assert.True(t, maker.Equal(taker))
}
