package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cryptoMegaBot/internal/domain"
)

// Insert adds a transaction, relying on the table's UNIQUE constraint over
// the (venue, time, type, amount, asset, symbol) dedupe tuple to silently
// ignore rows already recorded by a prior sync pass.
func (r *TransactionRepo) Insert(ctx context.Context, t *domain.Transaction) (bool, error) {
	const query = `
	INSERT INTO transaction_history (venue, time, type, amount, asset, symbol)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(venue, time, type, amount, asset, symbol) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, string(t.Venue), t.Time, string(t.Type), t.Amount, t.Asset, sql.NullString{String: t.Symbol, Valid: t.Symbol != ""})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for transaction insert: %w", err)
	}
	return rows > 0, nil
}

func (r *TransactionRepo) FindByTimeRange(ctx context.Context, venue domain.Venue, from, to time.Time) ([]*domain.Transaction, error) {
	const query = `SELECT venue, time, type, amount, asset, symbol FROM transaction_history WHERE venue = ? AND time >= ? AND time < ? ORDER BY time ASC`
	rows, err := r.db.QueryContext(ctx, query, string(venue), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Transaction, 0)
	for rows.Next() {
		t := &domain.Transaction{}
		var venueStr, txType string
		var symbol sql.NullString
		if err := rows.Scan(&venueStr, &t.Time, &txType, &t.Amount, &t.Asset, &symbol); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Venue = domain.Venue(venueStr)
		t.Type = domain.TransactionType(txType)
		if symbol.Valid {
			t.Symbol = symbol.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
