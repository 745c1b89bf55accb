package kucoinclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

// bulletResponse is KuCoin's "private bullet" token, the equivalent of a
// Binance listen key: a short-lived credential used to open a private
// WebSocket connection, paired with the server endpoint to dial.
type bulletResponse struct {
	Token           string `json:"token"`
	InstanceServers []struct {
		Endpoint          string `json:"endpoint"`
		PingInterval      int64  `json:"pingInterval"`
		PingTimeout       int64  `json:"pingTimeout"`
	} `json:"instanceServers"`
}

// CreateListenKey opens a private bullet token, KuCoin's listen-key
// equivalent, and caches the server endpoint to dial for StreamUserData.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	op := "CreateListenKey"
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	data, err := c.doRequest(ctx, "POST", "/api/v1/bullet-private", nil, nil, true)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", op, err)
	}
	var bullet bulletResponse
	if err := unmarshalData(data, &bullet); err != nil {
		return "", fmt.Errorf("%s: failed to decode bullet response: %w", op, err)
	}
	if bullet.Token == "" || len(bullet.InstanceServers) == 0 {
		return "", fmt.Errorf("%s: empty bullet response: %w", op, ports.ErrExchangeUnavailable)
	}

	c.wsMu.Lock()
	c.wsBaseURL = bullet.InstanceServers[0].Endpoint
	c.wsMu.Unlock()

	return bullet.Token, nil
}

// KeepAliveListenKey is a no-op: KuCoin bullet tokens are not extended, they
// are rotated wholesale (see CreateListenKey). Liveness of the connection
// itself is maintained by ping/pong frames inside StreamUserData.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	return nil
}

// CloseListenKey is a no-op: KuCoin has no explicit listen-key revocation
// endpoint; the token simply expires.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	return nil
}

type kucoinWSMessage struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

type kucoinOrderChangeEvent struct {
	Symbol    string `json:"symbol"`
	OrderID   string `json:"orderId"`
	Type      string `json:"type"`   // open/match/filled/canceled/update
	Status    string `json:"status"` // open/done
	Side      string `json:"side"`
	Size      string `json:"size"`
	FilledSize string `json:"filledSize"`
	Price     string `json:"price"`
	MatchPrice string `json:"matchPrice"`
	Ts        int64  `json:"ts"`
}

// StreamUserData opens KuCoin's private order-change WebSocket channel,
// reconnecting with exponential backoff on unexpected closure until the
// caller signals stopCh or ctx is cancelled, mirroring the Binance adapter's
// reconnect idiom.
func (c *Client) StreamUserData(ctx context.Context, listenKey string, handler func(ports.UserDataEvent), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamUserData"
	wsCtx, cancelWs := context.WithCancel(ctx)

	c.wsMu.RLock()
	endpoint := c.wsBaseURL
	c.wsMu.RUnlock()
	if endpoint == "" {
		cancelWs()
		return nil, nil, fmt.Errorf("%s: no websocket endpoint cached, call CreateListenKey first", op)
	}

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	bo := &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    10 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	dialURL := fmt.Sprintf("%s?token=%s", endpoint, listenKey)

	go func() {
		defer cancelWs()
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			conn, _, dialErr := websocket.DefaultDialer.DialContext(wsCtx, dialURL, nil)
			if dialErr != nil {
				errHandler(fmt.Errorf("%s: connection attempt failed: %w", op, dialErr))
				attempt++
				if attempt >= c.maxReconnectAttempts {
					errHandler(fmt.Errorf("%s: max reconnection attempts exceeded, giving up: %w", op, dialErr))
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

			connDone := make(chan struct{})
			go c.readLoop(wsCtx, conn, handler, errHandler, connDone)

			select {
			case <-connDone:
				c.logger.Warn(wsCtx, op+": connection closed unexpectedly, reconnecting")
			case <-wsCtx.Done():
				_ = conn.Close()
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

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler func(ports.UserDataEvent), errHandler func(error), done chan struct{}) {
	defer close(done)
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			errHandler(fmt.Errorf("StreamUserData: read failed: %w", err))
			return
		}

		var msg kucoinWSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			errHandler(fmt.Errorf("StreamUserData: failed to decode message: %w", err))
			continue
		}
		if msg.Subject != "orderChange" {
			continue
		}

		var oc kucoinOrderChangeEvent
		if err := json.Unmarshal(msg.Data, &oc); err != nil {
			errHandler(fmt.Errorf("StreamUserData: failed to decode orderChange: %w", err))
			continue
		}

		handler(translateOrderChange(oc, raw))
	}
}

func translateOrderChange(oc kucoinOrderChangeEvent, raw []byte) ports.UserDataEvent {
	side := domain.Buy
	if oc.Side == "sell" {
		side = domain.Sell
	}

	status := "NEW"
	switch oc.Type {
	case "filled":
		status = "FILLED"
	case "canceled":
		status = "CANCELED"
	case "update", "match":
		status = "PARTIALLY_FILLED"
	}

	price := parseDecimalOrZero(oc.MatchPrice)
	if price.IsZero() {
		price = parseDecimalOrZero(oc.Price)
	}

	return ports.UserDataEvent{
		Kind:      ports.EventOrderTradeUpdate,
		EventTime: time.Unix(0, oc.Ts), // KuCoin's ts field is nanosecond Unix time
		Raw:       raw,
		Order: &ports.OrderResult{
			Raw:          raw,
			OrderID:      kucoinOrderIDToInt64(oc.OrderID),
			Symbol:       oc.Symbol,
			Side:         side,
			Status:       status,
			Price:        parseDecimalOrZero(oc.Price),
			AvgPrice:     price,
			OrigQuantity: parseDecimalOrZero(oc.Size),
			ExecutedQty:  parseDecimalOrZero(oc.FilledSize),
			UpdateTime:   time.Now(),
		},
	}
}
