package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptoMegaBot/internal/domain"
)

// Upsert inserts or replaces a venue x account-type x asset balance row.
func (r *BalanceRepo) Upsert(ctx context.Context, b *domain.Balance) error {
	const query = `
	INSERT INTO balances (venue, account_type, asset, free, locked, total, unrealized_pnl, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(venue, account_type, asset) DO UPDATE SET
		free = excluded.free, locked = excluded.locked, total = excluded.total,
		unrealized_pnl = excluded.unrealized_pnl, last_updated = excluded.last_updated`

	_, err := r.db.ExecContext(ctx, query,
		string(b.Venue), b.AccountType, b.Asset, b.Free, b.Locked, b.Total, b.UnrealizedPnL, b.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance %s/%s/%s: %w", b.Venue, b.AccountType, b.Asset, err)
	}
	return nil
}

func (r *BalanceRepo) FindByVenueAsset(ctx context.Context, venue domain.Venue, accountType, asset string) (*domain.Balance, error) {
	const query = `SELECT venue, account_type, asset, free, locked, total, unrealized_pnl, last_updated FROM balances WHERE venue = ? AND account_type = ? AND asset = ?`
	row := r.db.QueryRowContext(ctx, query, string(venue), accountType, asset)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *BalanceRepo) FindAll(ctx context.Context) ([]*domain.Balance, error) {
	const query = `SELECT venue, account_type, asset, free, locked, total, unrealized_pnl, last_updated FROM balances ORDER BY venue, asset`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Balance, 0)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBalance(s scanner) (*domain.Balance, error) {
	b := &domain.Balance{}
	var venue string
	if err := s.Scan(&venue, &b.AccountType, &b.Asset, &b.Free, &b.Locked, &b.Total, &b.UnrealizedPnL, &b.LastUpdated); err != nil {
		return nil, err
	}
	b.Venue = domain.Venue(venue)
	return b, nil
}
