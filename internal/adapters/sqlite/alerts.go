package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

const selectAlertColumns = `
	id, parent_discord_id, timestamp, content, trader, action, close_percent,
	binance_response, error, created_at, updated_at
`

// Create inserts a new Alert and returns its assigned ID.
func (r *AlertRepo) Create(ctx context.Context, a *domain.Alert) (int64, error) {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	const query = `
	INSERT INTO alerts (parent_discord_id, timestamp, content, trader, action, close_percent, binance_response, error, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		a.ParentDiscordID, a.Timestamp, a.Content, sql.NullString{String: a.Trader, Valid: a.Trader != ""},
		string(a.Parsed.Action), a.Parsed.ClosePercent, a.BinanceResponse, sql.NullString{String: a.Error, Valid: a.Error != ""},
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert for parent %s: %w", a.ParentDiscordID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return id, nil
}

// Update persists mutable fields of an existing Alert.
func (r *AlertRepo) Update(ctx context.Context, a *domain.Alert) error {
	now := time.Now().UTC()
	a.UpdatedAt = now

	const query = `
	UPDATE alerts SET action = ?, close_percent = ?, binance_response = ?, error = ?, updated_at = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(a.Parsed.Action), a.Parsed.ClosePercent, a.BinanceResponse, sql.NullString{String: a.Error, Valid: a.Error != ""}, now, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert ID %d: %w", a.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for alert ID %d: %w", a.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("alert ID %d not found for update: %w", a.ID, ports.ErrNotFound)
	}
	return nil
}

func (r *AlertRepo) FindByID(ctx context.Context, id int64) (*domain.Alert, error) {
	query := `SELECT ` + selectAlertColumns + ` FROM alerts WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query alert by id %d: %w", id, err)
	}
	return a, nil
}

func (r *AlertRepo) FindByParentDiscordID(ctx context.Context, parentDiscordID string) ([]*domain.Alert, error) {
	query := `SELECT ` + selectAlertColumns + ` FROM alerts WHERE parent_discord_id = ? ORDER BY timestamp ASC`
	rows, err := r.db.QueryContext(ctx, query, parentDiscordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for parent %s: %w", parentDiscordID, err)
	}
	defer rows.Close()

	out := make([]*domain.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(s scanner) (*domain.Alert, error) {
	a := &domain.Alert{}
	var trader, errStr sql.NullString
	var action string

	err := s.Scan(
		&a.ID, &a.ParentDiscordID, &a.Timestamp, &a.Content, &trader, &action, &a.Parsed.ClosePercent,
		&a.BinanceResponse, &errStr, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if trader.Valid {
		a.Trader = trader.String
	}
	if errStr.Valid {
		a.Error = errStr.String
	}
	a.Parsed.Action = domain.AlertAction(action)
	return a, nil
}
