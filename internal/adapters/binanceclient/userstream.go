package binanceclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jpillora/backoff"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"

	"github.com/adshao/go-binance/v2/futures"
)

// CreateListenKey opens a user-data stream session and returns its key.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	op := "CreateListenKey"
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	key, err := c.futuresClient.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful")
	return key, nil
}

// KeepAliveListenKey extends a listen key's validity by another 60 minutes.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	op := "KeepAliveListenKey"
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.futuresClient.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// CloseListenKey releases a listen key.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	op := "CloseListenKey"
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.futuresClient.NewCloseUserStreamService().ListenKey(listenKey).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// StreamUserData opens the user-data WebSocket for a listen key, reconnecting
// with exponential backoff on unexpected closure until the caller signals
// stopCh or ctx is cancelled. The listen key itself is not refreshed here;
// that is the ingestor's responsibility on its own keepalive ticker.
func (c *Client) StreamUserData(ctx context.Context, listenKey string, handler func(ports.UserDataEvent), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamUserData"
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event *futures.WsUserDataEvent) {
		e, convErr := translateUserDataEvent(event)
		if convErr != nil {
			c.logger.Error(wsCtx, convErr, op+": failed to translate user data event")
			return
		}
		handler(e)
	}
	binanceErrHandler := func(err error) {
		translated := c.handleError(wsCtx, err, op+" WebSocket")
		errHandler(translated)
	}

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	bo := &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    10 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	go func() {
		defer cancelWs()
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			innerDoneCh, innerStopCh, connectErr := futures.WsUserDataServe(listenKey, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up")
					return
				}
				select {
				case <-time.After(bo.Duration()):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established")
			attempt = 0
			bo.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": connection closed unexpectedly, reconnecting")
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

func translateUserDataEvent(event *futures.WsUserDataEvent) (ports.UserDataEvent, error) {
	raw, _ := json.Marshal(event)
	out := ports.UserDataEvent{Raw: raw, EventTime: time.UnixMilli(event.Time)}

	switch event.Event {
	case futures.UserDataEventTypeOrderTradeUpdate:
		out.Kind = ports.EventOrderTradeUpdate
		o := event.OrderTradeUpdate
		out.Order = &ports.OrderResult{
			Raw:          raw,
			OrderID:      o.ID,
			Symbol:       o.Symbol,
			Side:         domain.OrderSide(o.Side),
			Type:         string(o.Type),
			Status:       string(o.Status),
			Price:        parseDecimalOrZero(o.OriginalPrice),
			AvgPrice:     parseDecimalOrZero(o.AveragePrice),
			OrigQuantity: parseDecimalOrZero(o.OriginalQty),
			ExecutedQty:  parseDecimalOrZero(o.AccumulatedFilledQty),
			UpdateTime:   time.UnixMilli(o.TradeTime),
		}
	case futures.UserDataEventTypeAccountUpdate:
		out.Kind = ports.EventAccountUpdate
	default:
		out.Kind = ports.UserDataEventKind(event.Event)
	}
	return out, nil
}
