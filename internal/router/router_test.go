package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		content      string
		wantAction   domain.AlertAction
		wantPercent  float64
	}{
		{"TP1 hit, move stop to BE", domain.ActionTakeProfit1, 50},
		{"TP2 reached", domain.ActionTakeProfit2, 100},
		{"stopped out", domain.ActionStopLossHit, 100},
		{"position closed", domain.ActionPositionClosed, 100},
		{"limit order cancelled", domain.ActionOrderCancelled, 0},
		{"stops moved to be", domain.ActionStopLossUpdate, 0},
		{"gm fam", domain.ActionUnknown, 0},
	}
	for _, tc := range cases {
		got := Classify(tc.content)
		assert.Equal(t, tc.wantAction, got.Action, tc.content)
		assert.Equal(t, tc.wantPercent, got.ClosePercent, tc.content)
	}
}

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeTradeRepo struct {
	ports.TradeRepository
	byDiscordID map[string]*domain.Trade
	created     []*domain.Trade
}

func (f *fakeTradeRepo) FindByTimestampRange(ctx context.Context, from, to time.Time) (*domain.Trade, error) {
	return nil, nil
}

func (f *fakeTradeRepo) FindByDiscordID(ctx context.Context, discordID string) (*domain.Trade, error) {
	if f.byDiscordID == nil {
		return nil, nil
	}
	return f.byDiscordID[discordID], nil
}

func (f *fakeTradeRepo) Create(ctx context.Context, t *domain.Trade) (int64, error) {
	t.ID = int64(len(f.created) + 1)
	f.created = append(f.created, t)
	return t.ID, nil
}

type fakeAlertRepo struct {
	ports.AlertRepository
	created []*domain.Alert
	updated []*domain.Alert
}

func (f *fakeAlertRepo) Create(ctx context.Context, a *domain.Alert) (int64, error) {
	f.created = append(f.created, a)
	return int64(len(f.created)), nil
}

func (f *fakeAlertRepo) Update(ctx context.Context, a *domain.Alert) error {
	f.updated = append(f.updated, a)
	return nil
}

type fakeCoordinator struct {
	openCalls  []*domain.Trade
	alertCalls []*domain.Alert
	applyErr   error
}

func (f *fakeCoordinator) OpenPosition(ctx context.Context, trade *domain.Trade) error {
	f.openCalls = append(f.openCalls, trade)
	return nil
}

func (f *fakeCoordinator) ApplyAlert(ctx context.Context, trade *domain.Trade, alert *domain.Alert) error {
	f.alertCalls = append(f.alertCalls, alert)
	return f.applyErr
}

func TestRoute_NewSignalCreatesTradeAndDispatches(t *testing.T) {
	trades := &fakeTradeRepo{}
	coord := &fakeCoordinator{}
	r := New(Config{Trades: trades, Alerts: &fakeAlertRepo{}, Coordinator: coord, Logger: &mockLogger{}})

	err := r.Route(context.Background(), SignalRecord{
		Timestamp: time.Now(),
		DiscordID: "123",
		Content:   "BTC long entry",
	})

	require.NoError(t, err)
	require.Len(t, trades.created, 1)
	assert.Equal(t, domain.StatusPending, trades.created[0].Status)
	require.Len(t, coord.openCalls, 1)
}

func TestRoute_RedeliveredDispatchedSignalIsNoOp(t *testing.T) {
	existing := &domain.Trade{DiscordID: "123", Status: domain.StatusOpen}
	trades := &fakeTradeRepo{byDiscordID: map[string]*domain.Trade{"123": existing}}
	coord := &fakeCoordinator{}
	r := New(Config{Trades: trades, Alerts: &fakeAlertRepo{}, Coordinator: coord, Logger: &mockLogger{}})

	err := r.Route(context.Background(), SignalRecord{Timestamp: time.Now(), DiscordID: "123"})

	require.NoError(t, err)
	assert.Empty(t, coord.openCalls)
}

func TestRoute_AlertWithUnknownParentErrors(t *testing.T) {
	trades := &fakeTradeRepo{}
	r := New(Config{Trades: trades, Alerts: &fakeAlertRepo{}, Coordinator: &fakeCoordinator{}, Logger: &mockLogger{}})

	err := r.Route(context.Background(), SignalRecord{ParentRef: "missing", DiscordID: "456"})

	require.Error(t, err)
}

func TestRoute_AlertSkippedWhenParentHasNoOpenPosition(t *testing.T) {
	parent := &domain.Trade{DiscordID: "parent", Status: domain.StatusFailed}
	trades := &fakeTradeRepo{byDiscordID: map[string]*domain.Trade{"parent": parent}}
	alerts := &fakeAlertRepo{}
	coord := &fakeCoordinator{}
	r := New(Config{Trades: trades, Alerts: alerts, Coordinator: coord, Logger: &mockLogger{}})

	err := r.Route(context.Background(), SignalRecord{ParentRef: "parent", DiscordID: "456", Content: "tp1"})

	require.NoError(t, err)
	require.Len(t, alerts.created, 1)
	assert.NotEmpty(t, alerts.created[0].Error)
	assert.Empty(t, coord.alertCalls)
}

func TestRoute_AlertDispatchedToOpenParent(t *testing.T) {
	parent := &domain.Trade{DiscordID: "parent", Status: domain.StatusOpen}
	trades := &fakeTradeRepo{byDiscordID: map[string]*domain.Trade{"parent": parent}}
	alerts := &fakeAlertRepo{}
	coord := &fakeCoordinator{}
	r := New(Config{Trades: trades, Alerts: alerts, Coordinator: coord, Logger: &mockLogger{}})

	err := r.Route(context.Background(), SignalRecord{ParentRef: "parent", DiscordID: "456", Content: "tp1"})

	require.NoError(t, err)
	require.Len(t, coord.alertCalls, 1)
	assert.Equal(t, domain.ActionTakeProfit1, coord.alertCalls[0].Parsed.Action)
}
