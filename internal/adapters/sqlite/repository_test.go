package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoMegaBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tradebot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func sampleTrade(discordID string) *domain.Trade {
	return &domain.Trade{
		DiscordID:          discordID,
		Timestamp:          time.Now().UTC().Truncate(time.Millisecond),
		Venue:              domain.VenueBinance,
		CoinSymbol:         "ETH",
		PositionType:       domain.Long,
		EntryPrices:        []float64{2000.0},
		TakeProfits:        []float64{2100.0, 2200.0},
		OrderType:          domain.Market,
		QuantityMultiplier: 1,
		Status:             domain.StatusPending,
	}
}

func TestRepository_CreateAndFindByID(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := sampleTrade("discord-1")
	id, err := repo.Create(ctx, trade)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, trade.CoinSymbol, found.CoinSymbol)
	assert.Equal(t, trade.EntryPrices, found.EntryPrices)
	assert.Equal(t, trade.TakeProfits, found.TakeProfits)
	assert.Equal(t, domain.StatusPending, found.Status)
	assert.Nil(t, found.CreatedAt)
}

func TestRepository_FindByID_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	found, err := repo.FindByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_FindByDiscordID(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := sampleTrade("discord-unique")
	_, err := repo.Create(ctx, trade)
	require.NoError(t, err)

	found, err := repo.FindByDiscordID(ctx, "discord-unique")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ETH", found.CoinSymbol)
}

func TestRepository_Update_CreatedAtWriteOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := sampleTrade("discord-2")
	id, err := repo.Create(ctx, trade)
	require.NoError(t, err)
	trade.ID = id

	now := time.Now().UTC().Truncate(time.Second)
	trade.SetCreatedAt(now)
	trade.Status = domain.StatusOpen
	trade.ExchangeOrderID = 12345
	trade.PositionSize = 1.0
	require.NoError(t, repo.Update(ctx, trade))

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found.CreatedAt)
	assert.WithinDuration(t, now, *found.CreatedAt, time.Second)

	// Attempting to overwrite created_at with a different value must fail.
	found.CreatedAt = nil
	found.SetCreatedAt(now.Add(time.Hour))
	err = repo.Update(ctx, found)
	assert.Error(t, err)
}

func TestRepository_FindLiveBySymbol(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	open := sampleTrade("d-open")
	open.Status = domain.StatusOpen
	open.ExchangeOrderID = 1
	open.PositionSize = 1.0
	_, err := repo.Create(ctx, open)
	require.NoError(t, err)

	closed := sampleTrade("d-closed")
	closed.Status = domain.StatusClosed
	_, err = repo.Create(ctx, closed)
	require.NoError(t, err)

	live, err := repo.FindLiveBySymbol(ctx, "ETH")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "d-open", live[0].DiscordID)
}

func TestRepository_FindClosedMissingPnL(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	closedNoPnl := sampleTrade("d-no-pnl")
	closedNoPnl.Status = domain.StatusClosed
	_, err := repo.Create(ctx, closedNoPnl)
	require.NoError(t, err)

	closedWithPnl := sampleTrade("d-with-pnl")
	closedWithPnl.Status = domain.StatusClosed
	closedWithPnl.ExitPrice = 2100
	closedWithPnl.PnlUSD = 50
	_, err = repo.Create(ctx, closedWithPnl)
	require.NoError(t, err)

	missing, err := repo.FindClosedMissingPnL(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "d-no-pnl", missing[0].DiscordID)
}

func TestAlertRepo_CreateAndFindByParent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	alerts := repo.Alerts()

	a := &domain.Alert{
		ParentDiscordID: "parent-1",
		Timestamp:       time.Now().UTC(),
		Content:         "take profit 1 hit",
		Parsed:          domain.ParsedAlert{Action: domain.ActionTakeProfit1, ClosePercent: 50},
	}
	id, err := alerts.Create(ctx, a)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	found, err := alerts.FindByParentDiscordID(ctx, "parent-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ActionTakeProfit1, found[0].Parsed.Action)
}

func TestBalanceRepo_UpsertAndFind(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	balances := repo.Balances()

	b := &domain.Balance{
		Venue:       domain.VenueBinance,
		AccountType: "FUTURES",
		Asset:       "USDT",
		Free:        1000,
		Total:       1000,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, balances.Upsert(ctx, b))

	b.Free = 950
	b.LastUpdated = time.Now().UTC()
	require.NoError(t, balances.Upsert(ctx, b))

	found, err := balances.FindByVenueAsset(ctx, domain.VenueBinance, "FUTURES", "USDT")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 950.0, found.Free)
}

func TestTransactionRepo_InsertDeduplicates(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	txs := repo.Transactions()

	tx := &domain.Transaction{
		Venue:  domain.VenueBinance,
		Time:   time.Now().UTC().Truncate(time.Millisecond),
		Type:   domain.TransactionRealizedPnL,
		Amount: 12.5,
		Asset:  "USDT",
		Symbol: "ETHUSDT",
	}

	inserted, err := txs.Insert(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	insertedAgain, err := txs.Insert(ctx, tx)
	require.NoError(t, err)
	assert.False(t, insertedAgain)

	rows, err := txs.FindByTimeRange(ctx, domain.VenueBinance, tx.Time.Add(-time.Minute), tx.Time.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
