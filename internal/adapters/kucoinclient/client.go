// Package kucoinclient implements ports.ExchangeClient against KuCoin
// Futures, the secondary venue. Unlike the Binance adapter (built on
// go-binance/v2/futures), KuCoin has no maintained Go SDK in the dependency
// pack, so this client talks to the REST API directly over net/http with
// KC-API-* request signing, in the style of a hand-rolled exchange client.
package kucoinclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cryptoMegaBot/internal/domain"
	"cryptoMegaBot/internal/ports"
)

const (
	baseURLProduction = "https://api-futures.kucoin.com"
	apiKeyVersion      = "2"

	filterCacheTTL = time.Hour
)

// Client implements ports.ExchangeClient against KuCoin Futures.
type Client struct {
	httpClient           *http.Client
	logger               ports.Logger
	apiKey               string
	apiSecret            string
	apiPassphrase        string
	baseURL              string
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	limiter              *rate.Limiter

	wsMu      sync.RWMutex
	wsBaseURL string

	filterMu sync.RWMutex
	filters  map[string]*ports.SymbolFilters

	// orderIDMu/orderIDs map the synthetic int64 ids handed out by
	// kucoinOrderIDToInt64 back to KuCoin's native hex order id string,
	// since ports.OrderResult/CancelFuturesOrder/GetOrderStatus are typed
	// against int64 for parity with the Binance adapter.
	orderIDMu sync.RWMutex
	orderIDs  map[int64]string
}

// Config holds configuration specific to the KuCoin client adapter.
type Config struct {
	APIKey               string
	APISecret            string
	APIPassphrase        string
	Logger               ports.Logger
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RequestsPerSecond    float64
}

// New creates a new KuCoin client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for KuCoin client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.APIPassphrase == "" {
		cfg.Logger.Warn(context.Background(), "KuCoin APIKey/APISecret/APIPassphrase incomplete, client will only work for public endpoints")
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		httpClient:           &http.Client{Timeout: 15 * time.Second},
		logger:               cfg.Logger,
		apiKey:               cfg.APIKey,
		apiSecret:            cfg.APISecret,
		apiPassphrase:        cfg.APIPassphrase,
		baseURL:              baseURLProduction,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		limiter:              rate.NewLimiter(rate.Limit(rps), int(rps)),
		filters:              make(map[string]*ports.SymbolFilters),
		orderIDs:             make(map[int64]string),
	}, nil
}

// rememberOrderID records the synthetic-id -> native-id mapping so a later
// Cancel/GetOrderStatus call (which only carries the synthetic int64) can
// recover the string id KuCoin's REST API requires.
func (c *Client) rememberOrderID(synthetic int64, native string) {
	c.orderIDMu.Lock()
	defer c.orderIDMu.Unlock()
	c.orderIDs[synthetic] = native
}

func (c *Client) nativeOrderID(synthetic int64) (string, bool) {
	c.orderIDMu.RLock()
	defer c.orderIDMu.RUnlock()
	id, ok := c.orderIDs[synthetic]
	return id, ok
}

func (c *Client) Venue() domain.Venue { return domain.VenueKuCoin }

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// sign implements KuCoin's KC-API-SIGN v2 scheme: base64(hmac_sha256(secret,
// timestamp+method+endpoint+body)), with the passphrase itself signed the
// same way when API-KEY-VERSION is 2.
func (c *Client) sign(timestamp, method, endpoint, body string) (signature, passphrase string) {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + method + endpoint + body))
	signature = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	pmac := hmac.New(sha256.New, []byte(c.apiSecret))
	pmac.Write([]byte(c.apiPassphrase))
	passphrase = base64.StdEncoding.EncodeToString(pmac.Sum(nil))
	return signature, passphrase
}

// doRequest issues a signed (or public, when signed=false) REST call and
// returns the response body's "data" field, raw.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, payload interface{}, signed bool) ([]byte, error) {
	fullEndpoint := endpoint
	var bodyBytes []byte
	if query != nil && len(query) > 0 {
		fullEndpoint += "?" + query.Encode()
	}
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature, passphrase := c.sign(timestamp, method, fullEndpoint, string(bodyBytes))
		req.Header.Set("KC-API-KEY", c.apiKey)
		req.Header.Set("KC-API-SIGN", signature)
		req.Header.Set("KC-API-TIMESTAMP", timestamp)
		req.Header.Set("KC-API-PASSPHRASE", passphrase)
		req.Header.Set("KC-API-KEY-VERSION", apiKeyVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.handleTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}

	if resp.StatusCode/100 != 2 || (envelope.Code != "" && envelope.Code != "200000") {
		return nil, c.mapAPIError(envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

func (c *Client) handleTransportError(err error) error {
	switch {
	case strings.Contains(err.Error(), "deadline exceeded"):
		return fmt.Errorf("kucoin request failed: %w: %w", ports.ErrTimeout, err)
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		return fmt.Errorf("kucoin request failed: %w: %w", ports.ErrConnectionFailed, err)
	default:
		return fmt.Errorf("kucoin request failed: %w: %w", ports.ErrUnknown, err)
	}
}

// mapAPIError translates KuCoin's numeric-string error codes into the shared
// ports sentinel taxonomy.
func (c *Client) mapAPIError(code, msg string) error {
	var mapped error
	switch code {
	case "400100", "400200", "400003", "400004":
		mapped = ports.ErrInvalidRequest
	case "400001", "400002", "411100":
		mapped = ports.ErrAuthenticationFailed
	case "400300":
		mapped = ports.ErrInsufficientFunds
	case "200004":
		mapped = ports.ErrRateLimited
	case "300003":
		mapped = ports.ErrOrderNotFound
	case "300012":
		mapped = ports.ErrPositionNotFound
	case "":
		mapped = ports.ErrUnknown
	default:
		mapped = ports.ErrUnknown
	}
	return fmt.Errorf("kucoin api error %s: %s: %w", code, msg, mapped)
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
