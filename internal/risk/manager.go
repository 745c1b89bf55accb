// Package risk implements an account-level risk guard that sits alongside
// the per-symbol cooldown/conflict policy in internal/position: a cap on
// the number of concurrently live trades across all symbols and venues,
// and a daily realized-loss kill switch. Unlike the per-symbol policy,
// which tracks state in memory, this guard always queries the persisted
// Trade rows, since those rows are the system's single source of truth
// for live exposure.
package risk

import (
	"context"
	"fmt"
	"time"

	"cryptoMegaBot/internal/ports"
)

// Config holds account-wide risk limits. A zero value disables the
// corresponding check.
type Config struct {
	MaxOpenPositions int
	MaxDailyLossUSD  float64
}

// Manager enforces Config's limits against ports.TradeRepository.
type Manager struct {
	cfg    Config
	trades ports.TradeRepository
}

// New builds a Manager.
func New(cfg Config, trades ports.TradeRepository) *Manager {
	return &Manager{cfg: cfg, trades: trades}
}

// CheckOpenAllowed returns ports.ErrRiskLimitExceeded if the count of live
// trades is already at or above MaxOpenPositions, so that opening one more
// position would exceed it.
func (m *Manager) CheckOpenAllowed(ctx context.Context) error {
	if m.cfg.MaxOpenPositions <= 0 {
		return nil
	}
	all, err := m.trades.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list trades for open-position risk check: %w", err)
	}
	open := 0
	for _, t := range all {
		if t.Status.IsLive() {
			open++
		}
	}
	if open >= m.cfg.MaxOpenPositions {
		return fmt.Errorf("open position count %d at or above limit %d: %w", open, m.cfg.MaxOpenPositions, ports.ErrRiskLimitExceeded)
	}
	return nil
}

// CheckDailyLossAllowed returns ports.ErrRiskLimitExceeded if today's
// realized PnL across trades closed today has breached MaxDailyLossUSD.
func (m *Manager) CheckDailyLossAllowed(ctx context.Context) error {
	if m.cfg.MaxDailyLossUSD <= 0 {
		return nil
	}
	all, err := m.trades.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list trades for daily-loss risk check: %w", err)
	}
	now := time.Now().UTC()
	var dailyPnL float64
	for _, t := range all {
		if t.ClosedAt == nil || !sameUTCDay(*t.ClosedAt, now) {
			continue
		}
		dailyPnL += t.PnlUSD
	}
	if dailyPnL < -m.cfg.MaxDailyLossUSD {
		return fmt.Errorf("daily realized loss %.2f exceeds cap %.2f: %w", -dailyPnL, m.cfg.MaxDailyLossUSD, ports.ErrRiskLimitExceeded)
	}
	return nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
