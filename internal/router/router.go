// Package router classifies inbound signal/alert records and binds them to
// the Trade row they act on, the way the teacher's strategy package prefers
// small data-driven tables over nested conditionals.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

// SignalRecord is the inbound payload the (out-of-scope) ingress webhook
// layer would construct from a Discord message. It is the sole surface this
// package accepts; nothing here parses free-text HTTP bodies.
type SignalRecord struct {
	Timestamp  time.Time
	Content    string
	Structured string
	DiscordID  string
	ParentRef  string // non-empty => follow-up alert bound to this parent discord_id
	Trader     string
}

// classifierEntry pairs a content matcher with the action it signals. Table
// is evaluated top-to-bottom; the first match wins.
type classifierEntry struct {
	action  domain.AlertAction
	matches func(content string) bool
}

func containsAny(content string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}

// beWindow is the character proximity within which "be"/"breakeven" next to
// a stop-related keyword disambiguates stop_loss_update from stop_loss_hit.
const beWindow = 20

func mentionsBreakeven(content string) bool {
	idx := strings.Index(content, "stop")
	if idx == -1 {
		idx = 0
	}
	end := idx + beWindow
	if end > len(content) {
		end = len(content)
	}
	window := content[idx:end]
	return strings.Contains(window, "be") || strings.Contains(window, "breakeven")
}

var classifierTable = []classifierEntry{
	{
		action: domain.ActionStopLossUpdate,
		matches: func(c string) bool {
			return containsAny(c, "stops moved to be", "sl to be") ||
				(containsAny(c, "stopped", "stop loss", "sl") && mentionsBreakeven(c))
		},
	},
	{
		action:  domain.ActionStopLossHit,
		matches: func(c string) bool { return containsAny(c, "stopped out", "stop loss", "sl hit") },
	},
	{
		action:  domain.ActionTakeProfit1,
		matches: func(c string) bool { return containsAny(c, "tp1") },
	},
	{
		action:  domain.ActionTakeProfit2,
		matches: func(c string) bool { return containsAny(c, "tp2") },
	},
	{
		action:  domain.ActionOrderCancelled,
		matches: func(c string) bool { return containsAny(c, "limit order cancelled", "order cancelled") },
	},
	{
		action:  domain.ActionPositionClosed,
		matches: func(c string) bool { return containsAny(c, "closed") },
	},
}

// closePercentForAction returns the close percentage implied by a keyword
// action, used to populate ParsedAlert.ClosePercent before dispatch.
func closePercentForAction(a domain.AlertAction) float64 {
	switch a {
	case domain.ActionStopLossHit, domain.ActionPositionClosed, domain.ActionTakeProfit2:
		return 100
	case domain.ActionTakeProfit1:
		return 50
	default:
		return 0
	}
}

// Classify maps free-text alert content to a structured action using the
// ordered keyword table. Unmatched content classifies as ActionUnknown.
func Classify(content string) domain.ParsedAlert {
	lower := strings.ToLower(content)
	for _, entry := range classifierTable {
		if entry.matches(lower) {
			return domain.ParsedAlert{Action: entry.action, ClosePercent: closePercentForAction(entry.action)}
		}
	}
	return domain.ParsedAlert{Action: domain.ActionUnknown}
}

// Coordinator is the subset of internal/coordinator.Coordinator the router
// dispatches to, kept as a narrow interface so router tests don't need the
// full coordinator wiring.
type Coordinator interface {
	OpenPosition(ctx context.Context, trade *domain.Trade) error
	ApplyAlert(ctx context.Context, trade *domain.Trade, alert *domain.Alert) error
}

// Router binds inbound SignalRecords to Trade/Alert rows and dispatches them
// to the Trade Coordinator.
type Router struct {
	trades      ports.TradeRepository
	alerts      ports.AlertRepository
	coordinator Coordinator
	logger      ports.Logger
}

// Config configures a Router.
type Config struct {
	Trades      ports.TradeRepository
	Alerts      ports.AlertRepository
	Coordinator Coordinator
	Logger      ports.Logger
}

// New builds a Router.
func New(cfg Config) *Router {
	return &Router{trades: cfg.Trades, alerts: cfg.Alerts, coordinator: cfg.Coordinator, logger: cfg.Logger}
}

// normalizeTimestamp strips a trailing "Z" marker's resulting precision
// drift by truncating to millisecond precision, per the binding contract.
func normalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Route classifies rec as an initial Signal or a follow-up Alert and
// dispatches it accordingly.
func (r *Router) Route(ctx context.Context, rec SignalRecord) error {
	if rec.ParentRef != "" {
		return r.routeAlert(ctx, rec)
	}
	return r.routeSignal(ctx, rec)
}

func (r *Router) routeSignal(ctx context.Context, rec SignalRecord) error {
	ts := normalizeTimestamp(rec.Timestamp)

	trade, err := r.trades.FindByTimestampRange(ctx, ts, ts.Add(time.Millisecond))
	if err != nil {
		return fmt.Errorf("lookup trade by timestamp range failed: %w", err)
	}
	if trade == nil {
		trade, err = r.trades.FindByDiscordID(ctx, rec.DiscordID)
		if err != nil {
			return fmt.Errorf("lookup trade by discord id failed: %w", err)
		}
	}
	if trade == nil {
		trade = &domain.Trade{
			DiscordID: rec.DiscordID,
			Timestamp: ts,
			Venue:     domain.VenueBinance,
			Status:    domain.StatusPending,
		}
		if _, err := r.trades.Create(ctx, trade); err != nil {
			return fmt.Errorf("failed to create trade row for signal %s: %w", rec.DiscordID, err)
		}
	} else if trade.Status != domain.StatusPending {
		// Re-delivery of an already-dispatched signal: idempotent no-op.
		r.logger.Info(ctx, "signal already bound and dispatched, skipping", map[string]interface{}{"discord_id": rec.DiscordID, "status": trade.Status})
		return nil
	}

	return r.coordinator.OpenPosition(ctx, trade)
}

func (r *Router) routeAlert(ctx context.Context, rec SignalRecord) error {
	parent, err := r.trades.FindByDiscordID(ctx, rec.ParentRef)
	if err != nil {
		return fmt.Errorf("lookup parent trade %s failed: %w", rec.ParentRef, err)
	}
	if parent == nil {
		return fmt.Errorf("alert %s references unknown parent %s: %w", rec.DiscordID, rec.ParentRef, ports.ErrNotFound)
	}

	parsed := Classify(rec.Content)
	alert := &domain.Alert{
		ParentDiscordID: rec.ParentRef,
		Timestamp:       normalizeTimestamp(rec.Timestamp),
		Content:         rec.Content,
		Trader:          rec.Trader,
		Parsed:          parsed,
	}

	switch parent.Status {
	case domain.StatusFailed, domain.StatusUnfilled, domain.StatusCanceled, domain.StatusExpired:
		alert.Error = "skipped - no open position"
		_, err := r.alerts.Create(ctx, alert)
		if err != nil {
			return fmt.Errorf("failed to record skipped alert: %w", err)
		}
		r.logger.Info(ctx, "alert skipped, parent has no open position", map[string]interface{}{"parent_discord_id": rec.ParentRef, "parent_status": parent.Status})
		return nil
	}

	if _, err := r.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}

	if err := r.coordinator.ApplyAlert(ctx, parent, alert); err != nil {
		alert.Error = err.Error()
		if uerr := r.alerts.Update(ctx, alert); uerr != nil {
			r.logger.Error(ctx, uerr, "failed to persist alert application error")
		}
		return err
	}
	return nil
}
