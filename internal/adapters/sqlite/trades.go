package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

// Create inserts a new Trade and returns its assigned ID.
func (r *Repository) Create(ctx context.Context, t *domain.Trade) (int64, error) {
	entryPrices, err := json.Marshal(t.EntryPrices)
	if err != nil {
		return 0, fmt.Errorf("marshal entry_prices: %w", err)
	}
	takeProfits, err := json.Marshal(t.TakeProfits)
	if err != nil {
		return 0, fmt.Errorf("marshal take_profits: %w", err)
	}
	tpslOrders, err := json.Marshal(t.TPSLOrders)
	if err != nil {
		return 0, fmt.Errorf("marshal tpsl_orders: %w", err)
	}

	discordID := sql.NullString{String: t.DiscordID, Valid: t.DiscordID != ""}
	stopLoss := nullFloatPtr(t.StopLoss)
	failureReason := sql.NullString{String: string(t.FailureReason), Valid: t.FailureReason != ""}
	mergedInto := nullInt64Ptr(t.MergedIntoTradeID)
	mergeReason := sql.NullString{String: t.MergeReason, Valid: t.MergeReason != ""}
	mergedAt := nullTimePtr(t.MergedAt)
	createdAt := nullTimePtr(t.CreatedAt)
	closedAt := nullTimePtr(t.ClosedAt)

	const query = `
	INSERT INTO trades (
		discord_id, timestamp, venue, coin_symbol, position_type, entry_prices, stop_loss,
		take_profits, order_type, quantity_multiplier, status, exchange_order_id, position_size,
		entry_price, exit_price, pnl_usd, binance_response, original_order_response, order_status_response,
		tpsl_orders, sync_error_count, manual_verification_needed, failure_reason,
		merged_into_trade_id, merge_reason, merged_at, created_at, closed_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	t.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, query,
		discordID, t.Timestamp, string(t.Venue), t.CoinSymbol, string(t.PositionType), string(entryPrices), stopLoss,
		string(takeProfits), string(t.OrderType), t.QuantityMultiplier, string(t.Status), t.ExchangeOrderID, t.PositionSize,
		t.EntryPrice, nullFloatIfZero(t.ExitPrice), nullFloatIfZero(t.PnlUSD), t.BinanceResponse, t.OriginalOrderResponse, t.OrderStatusResponse,
		string(tpslOrders), t.SyncErrorCount, boolToInt(t.ManualVerificationNeed), failureReason,
		mergedInto, mergeReason, mergedAt, createdAt, closedAt, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", t.CoinSymbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	return id, nil
}

// Update persists mutable fields of an existing Trade.
func (r *Repository) Update(ctx context.Context, t *domain.Trade) error {
	existing, err := r.FindByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("trade ID %d not found for update: %w", t.ID, ports.ErrNotFound)
	}
	if existing.CreatedAt != nil && t.CreatedAt != nil && !existing.CreatedAt.Equal(*t.CreatedAt) {
		return fmt.Errorf("created_at: %w", ports.ErrWriteOnceField)
	}
	if existing.ClosedAt != nil && t.ClosedAt != nil && !existing.ClosedAt.Equal(*t.ClosedAt) {
		return fmt.Errorf("closed_at: %w", ports.ErrWriteOnceField)
	}
	if existing.OriginalOrderResponse != nil && !bytes.Equal(existing.OriginalOrderResponse, t.OriginalOrderResponse) {
		return fmt.Errorf("original_order_response: %w", ports.ErrWriteOnceField)
	}

	entryPrices, _ := json.Marshal(t.EntryPrices)
	takeProfits, _ := json.Marshal(t.TakeProfits)
	tpslOrders, _ := json.Marshal(t.TPSLOrders)

	now := time.Now().UTC()
	t.UpdatedAt = now

	const query = `
	UPDATE trades SET
		discord_id = ?, status = ?, exchange_order_id = ?, position_size = ?, entry_price = ?,
		exit_price = ?, pnl_usd = ?, binance_response = ?, original_order_response = ?, order_status_response = ?,
		tpsl_orders = ?, sync_error_count = ?, manual_verification_needed = ?, failure_reason = ?,
		merged_into_trade_id = ?, merge_reason = ?, merged_at = ?, created_at = ?, closed_at = ?,
		entry_prices = ?, stop_loss = ?, take_profits = ?, updated_at = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		sql.NullString{String: t.DiscordID, Valid: t.DiscordID != ""}, string(t.Status), t.ExchangeOrderID, t.PositionSize, t.EntryPrice,
		nullFloatIfZero(t.ExitPrice), nullFloatIfZero(t.PnlUSD), t.BinanceResponse, t.OriginalOrderResponse, t.OrderStatusResponse,
		string(tpslOrders), t.SyncErrorCount, boolToInt(t.ManualVerificationNeed), sql.NullString{String: string(t.FailureReason), Valid: t.FailureReason != ""},
		nullInt64Ptr(t.MergedIntoTradeID), sql.NullString{String: t.MergeReason, Valid: t.MergeReason != ""}, nullTimePtr(t.MergedAt), nullTimePtr(t.CreatedAt), nullTimePtr(t.ClosedAt),
		string(entryPrices), nullFloatPtr(t.StopLoss), string(takeProfits), now,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w", t.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade ID %d: %w", t.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", t.ID, ports.ErrNotFound)
	}
	return nil
}

const selectTradeColumns = `
	id, discord_id, timestamp, venue, coin_symbol, position_type, entry_prices, stop_loss,
	take_profits, order_type, quantity_multiplier, status, exchange_order_id, position_size,
	entry_price, exit_price, pnl_usd, binance_response, original_order_response, order_status_response,
	tpsl_orders, sync_error_count, manual_verification_needed, failure_reason,
	merged_into_trade_id, merge_reason, merged_at, created_at, closed_at, updated_at
`

func (r *Repository) FindByDiscordID(ctx context.Context, discordID string) (*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE discord_id = ?`
	return r.queryOne(ctx, query, discordID)
}

func (r *Repository) FindByTimestampRange(ctx context.Context, from, to time.Time) (*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE timestamp >= ? AND timestamp < ? LIMIT 1`
	return r.queryOne(ctx, query, from, to)
}

func (r *Repository) FindByExchangeOrderID(ctx context.Context, venue domain.Venue, orderID int64) (*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE venue = ? AND exchange_order_id = ? LIMIT 1`
	return r.queryOne(ctx, query, string(venue), orderID)
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE id = ?`
	return r.queryOne(ctx, query, id)
}

func (r *Repository) FindLiveBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE coin_symbol = ? AND status IN (?, ?) ORDER BY timestamp ASC`
	return r.queryMany(ctx, query, symbol, string(domain.StatusOpen), string(domain.StatusPartiallyClosed))
}

func (r *Repository) FindLiveOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE status IN (?, ?) AND created_at < ? ORDER BY created_at ASC`
	return r.queryMany(ctx, query, string(domain.StatusOpen), string(domain.StatusPartiallyClosed), cutoff)
}

func (r *Repository) FindClosedMissingPnL(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE status = ? AND (pnl_usd IS NULL OR exit_price IS NULL OR exit_price = 0)`
	return r.queryMany(ctx, query, string(domain.StatusClosed))
}

func (r *Repository) FindAll(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades ORDER BY timestamp DESC`
	return r.queryMany(ctx, query)
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...interface{}) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade: %w", err)
	}
	return t, nil
}

func (r *Repository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return out, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var discordID sql.NullString
	var venue, positionType, orderType, status string
	var entryPricesJSON, takeProfitsJSON, tpslOrdersJSON string
	var stopLoss, exitPrice, pnlUSD sql.NullFloat64
	var failureReason sql.NullString
	var mergedInto sql.NullInt64
	var mergeReason sql.NullString
	var mergedAt, createdAt, closedAt sql.NullTime
	var manualVerification int

	err := s.Scan(
		&t.ID, &discordID, &t.Timestamp, &venue, &t.CoinSymbol, &positionType, &entryPricesJSON, &stopLoss,
		&takeProfitsJSON, &orderType, &t.QuantityMultiplier, &status, &t.ExchangeOrderID, &t.PositionSize,
		&t.EntryPrice, &exitPrice, &pnlUSD, &t.BinanceResponse, &t.OriginalOrderResponse, &t.OrderStatusResponse,
		&tpslOrdersJSON, &t.SyncErrorCount, &manualVerification, &failureReason,
		&mergedInto, &mergeReason, &mergedAt, &createdAt, &closedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if discordID.Valid {
		t.DiscordID = discordID.String
	}
	t.Venue = domain.Venue(venue)
	t.PositionType = domain.PositionType(positionType)
	t.OrderType = domain.OrderType(orderType)
	t.Status = domain.TradeStatus(status)
	_ = json.Unmarshal([]byte(entryPricesJSON), &t.EntryPrices)
	_ = json.Unmarshal([]byte(takeProfitsJSON), &t.TakeProfits)
	_ = json.Unmarshal([]byte(tpslOrdersJSON), &t.TPSLOrders)
	if stopLoss.Valid {
		v := stopLoss.Float64
		t.StopLoss = &v
	}
	if exitPrice.Valid {
		t.ExitPrice = exitPrice.Float64
	}
	if pnlUSD.Valid {
		t.PnlUSD = pnlUSD.Float64
	}
	t.ManualVerificationNeed = manualVerification != 0
	if failureReason.Valid {
		t.FailureReason = domain.FailureReason(failureReason.String)
	}
	if mergedInto.Valid {
		v := mergedInto.Int64
		t.MergedIntoTradeID = &v
	}
	if mergeReason.Valid {
		t.MergeReason = mergeReason.String
	}
	if mergedAt.Valid {
		v := mergedAt.Time
		t.MergedAt = &v
	}
	if createdAt.Valid {
		v := createdAt.Time
		t.CreatedAt = &v
	}
	if closedAt.Valid {
		v := closedAt.Time
		t.ClosedAt = &v
	}
	return t, nil
}

func nullFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullFloatIfZero(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullInt64Ptr(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
