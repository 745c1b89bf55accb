// Package position implements the conflict/merge/cooldown policy gating
// new position opens against existing live Trades for the same symbol.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

// Decision is the outcome of evaluating a new trade against live state for
// its symbol.
type Decision string

const (
	DecisionProceed Decision = "PROCEED"
	DecisionMerge   Decision = "MERGE"
	DecisionReplace Decision = "REPLACE"
	DecisionReject  Decision = "REJECT"
	DecisionCooldown Decision = "COOLDOWN"
)

// Evaluation carries the chosen Decision plus the live trade it applies to,
// if any (the MERGE/REPLACE target).
type Evaluation struct {
	Decision Decision
	Target   *domain.Trade
	Reason   string
}

// Manager tracks per-symbol cooldown state and decides MERGE/REPLACE/REJECT
// policy for a newly arriving trade, per the tie-break rule: prefer MERGE
// over REJECT while under the configured ceiling.
type Manager struct {
	trades ports.TradeRepository

	tradeCooldown    time.Duration
	positionCooldown time.Duration
	maxPositionTrades int

	mu        sync.Mutex
	lastOpen  map[string]time.Time // symbol -> last open_position attempt
	cooldownUntil map[string]time.Time
}

// Config configures a Manager.
type Config struct {
	Trades            ports.TradeRepository
	TradeCooldown     time.Duration
	PositionCooldown  time.Duration
	MaxPositionTrades int
}

// New builds a Manager.
func New(cfg Config) *Manager {
	max := cfg.MaxPositionTrades
	if max <= 0 {
		max = 1
	}
	return &Manager{
		trades:            cfg.Trades,
		tradeCooldown:     cfg.TradeCooldown,
		positionCooldown:  cfg.PositionCooldown,
		maxPositionTrades: max,
		lastOpen:          make(map[string]time.Time),
		cooldownUntil:     make(map[string]time.Time),
	}
}

// Evaluate inspects live trades for trade.CoinSymbol and returns the policy
// decision that must be applied before the Trade Coordinator proceeds with
// open_position. Must be called from within the coordinator's per-symbol
// mailbox so its cooldown bookkeeping never races a concurrent evaluation
// for the same symbol.
func (m *Manager) Evaluate(ctx context.Context, trade *domain.Trade) (*Evaluation, error) {
	symbol := trade.Symbol()

	m.mu.Lock()
	now := time.Now()
	if until, ok := m.cooldownUntil[symbol]; ok && now.Before(until) {
		m.cooldownUntil[symbol] = until.Add(m.tradeCooldown)
		m.mu.Unlock()
		return &Evaluation{Decision: DecisionCooldown, Reason: "symbol within cooldown window"}, nil
	}
	lastAttempt, seen := m.lastOpen[symbol]
	m.mu.Unlock()

	live, err := m.trades.FindLiveBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query live trades for %s: %w", symbol, err)
	}

	cooldown := m.tradeCooldown
	if len(live) > 0 {
		cooldown = m.positionCooldown
	}
	if seen && now.Sub(lastAttempt) < cooldown {
		m.mu.Lock()
		m.cooldownUntil[symbol] = now.Add(cooldown)
		m.mu.Unlock()
		return &Evaluation{Decision: DecisionCooldown, Reason: "rapid repeat signal within cooldown"}, nil
	}

	m.mu.Lock()
	m.lastOpen[symbol] = now
	m.mu.Unlock()

	if len(live) == 0 {
		return &Evaluation{Decision: DecisionProceed}, nil
	}

	// Same side as the first live trade: MERGE vs REJECT, opposite side:
	// REPLACE vs REJECT. All existing live trades for a symbol share side
	// by invariant P5 (merges/replaces keep the symbol single-sided).
	existing := live[0]
	if existing.PositionType == trade.PositionType {
		if len(live) < m.maxPositionTrades {
			return &Evaluation{Decision: DecisionMerge, Target: existing, Reason: "same-side merge under ceiling"}, nil
		}
		return &Evaluation{Decision: DecisionReject, Reason: "max_position_trades reached"}, nil
	}
	return &Evaluation{Decision: DecisionReplace, Target: existing, Reason: "opposite-side replace"}, nil
}

// Merge folds newTrade's entry into target, computing the weighted-average
// entry price and enlarged size, and records newTrade as merged away.
func Merge(target, newTrade *domain.Trade, newEntryPrice, newQty float64) {
	totalQty := target.PositionSize + newQty
	if totalQty > 0 {
		target.EntryPrice = (target.EntryPrice*target.PositionSize + newEntryPrice*newQty) / totalQty
	}
	target.PositionSize = totalQty
	target.EntryPrices = append(target.EntryPrices, newTrade.EntryPrices...)

	now := time.Now().UTC()
	newTrade.MergedIntoTradeID = &target.ID
	newTrade.MergeReason = "same-side merge"
	newTrade.MergedAt = &now
	newTrade.Status = domain.StatusClosed
}
