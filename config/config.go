package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoMegaBot/internal/adapters/logger"
)

// FeeMode selects how the fee/sizing engine computes trading costs.
type FeeMode string

const (
	FeeModeFixed  FeeMode = "FIXED"  // flat rate applied to both entry and exit
	FeeModeTiered FeeMode = "TIERED" // separate maker/taker rates with optional discount
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// KuCoin API
	KuCoinAPIKey       string
	KuCoinAPISecret    string
	KuCoinPassphrase   string
	KuCoinEnabled      bool

	// Position sizing
	TradeAmount    float64 // default USDT notional per new position
	MinTradeAmount float64
	MaxTradeAmount float64
	Leverage       int

	// Preflight gates
	PriceThreshold         float64 // allowed proximity between signal price and market price, e.g. 0.003
	MemecoinPriceThreshold float64 // wider proximity tolerance for configured memecoin symbols
	MemecoinSymbols        map[string]bool
	TradeCooldown          time.Duration // per-symbol cooldown after opening
	PositionCooldown       time.Duration // cooldown after a rapid re-signal on the same symbol
	MaxPositionTrades      int           // merge ceiling per symbol

	// Fees
	FeeMode         FeeMode
	FixedFeeRate    float64 // used when FeeMode == FeeModeFixed
	MakerFeeRate    float64
	TakerFeeRate    float64
	BNBDiscount     float64 // multiplier applied to fee rate, e.g. 0.9

	// User-data stream
	PingInterval         time.Duration
	PongTimeout          time.Duration
	ListenKeyKeepAlive   time.Duration // how often to refresh the listen key, default 30m
	ListenKeyRotate      time.Duration // how often to force a full rotation, default 24h
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Periodic synchronizer intervals
	StatusSyncInterval      time.Duration
	PnLBackfillInterval     time.Duration
	OrphanCleanupInterval   time.Duration
	BalanceSyncInterval     time.Duration
	PositionAuditInterval   time.Duration
	StatusSyncAgeWindow     time.Duration // only sync trades created within this window

	// Account-level risk guard (internal/risk), independent of the
	// per-symbol cooldown/merge policy in internal/position.
	MaxOpenPositions int     // 0 disables the check
	MaxDailyLossUSD  float64 // 0 disables the check

	// Balance sync
	TrackedBalanceAssets []string // assets BalanceSync polls per venue, e.g. ["USDT"]

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Ops HTTP surface
	HTTPAddr string

	// Rate limiting
	RESTRequestsPerSecond float64
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceAPISecret = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceTestnet = getEnvAsBool("BINANCE_TESTNET", true)
	if cfg.BinanceAPIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.BinanceAPISecret == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	cfg.KuCoinEnabled = getEnvAsBool("KUCOIN_ENABLED", false)
	cfg.KuCoinAPIKey = getEnv("KUCOIN_API_KEY", "")
	cfg.KuCoinAPISecret = getEnv("KUCOIN_API_SECRET", "")
	cfg.KuCoinPassphrase = getEnv("KUCOIN_API_PASSPHRASE", "")
	if cfg.KuCoinEnabled {
		if cfg.KuCoinAPIKey == "" || cfg.KuCoinAPISecret == "" || cfg.KuCoinPassphrase == "" {
			errs = append(errs, "KUCOIN_API_KEY, KUCOIN_API_SECRET and KUCOIN_API_PASSPHRASE must be set when KUCOIN_ENABLED=true")
		}
	}

	cfg.TradeAmount, err = getEnvAsFloatRequired("TRADE_AMOUNT", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADE_AMOUNT: %v", err))
	} else if cfg.TradeAmount <= 0 {
		errs = append(errs, "TRADE_AMOUNT must be positive")
	}
	cfg.MinTradeAmount = getEnvAsFloat("MIN_TRADE_AMOUNT", 10.0)
	cfg.MaxTradeAmount = getEnvAsFloat("MAX_TRADE_AMOUNT", 1000.0)
	if cfg.MinTradeAmount > cfg.MaxTradeAmount {
		errs = append(errs, "MIN_TRADE_AMOUNT must not exceed MAX_TRADE_AMOUNT")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.PriceThreshold, err = getEnvAsFloatRequired("PRICE_THRESHOLD", 0.003)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_THRESHOLD: %v", err))
	} else if cfg.PriceThreshold <= 0 || cfg.PriceThreshold >= 1.0 {
		errs = append(errs, "PRICE_THRESHOLD must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.MemecoinPriceThreshold = getEnvAsFloat("MEMECOIN_PRICE_THRESHOLD", 0.02)
	cfg.MemecoinSymbols = parseSymbolSet(getEnv("MEMECOIN_SYMBOLS", "DOGEUSDT,SHIBUSDT,PEPEUSDT,FLOKIUSDT,WIFUSDT,BONKUSDT"))

	cfg.TradeCooldown = time.Duration(getEnvAsInt("TRADE_COOLDOWN_SECONDS", 300)) * time.Second
	cfg.PositionCooldown = time.Duration(getEnvAsInt("POSITION_COOLDOWN_SECONDS", 60)) * time.Second
	cfg.MaxPositionTrades = getEnvAsInt("MAX_POSITION_TRADES", 3)
	if cfg.MaxPositionTrades <= 0 {
		errs = append(errs, "MAX_POSITION_TRADES must be positive")
	}

	feeModeStr := strings.ToUpper(getEnv("FEE_MODE", "TIERED"))
	switch FeeMode(feeModeStr) {
	case FeeModeFixed, FeeModeTiered:
		cfg.FeeMode = FeeMode(feeModeStr)
	default:
		errs = append(errs, fmt.Sprintf("invalid FEE_MODE %q: must be FIXED or TIERED", feeModeStr))
	}
	cfg.FixedFeeRate = getEnvAsFloat("FIXED_FEE_RATE", 0.0004)
	cfg.MakerFeeRate = getEnvAsFloat("MAKER_FEE_RATE", 0.0002)
	cfg.TakerFeeRate = getEnvAsFloat("TAKER_FEE_RATE", 0.0004)
	cfg.BNBDiscount = getEnvAsFloat("BNB_FEE_DISCOUNT", 1.0)

	cfg.PingInterval = time.Duration(getEnvAsInt("PING_INTERVAL_SECONDS", 180)) * time.Second
	cfg.PongTimeout = time.Duration(getEnvAsInt("PONG_TIMEOUT_SECONDS", 600)) * time.Second
	cfg.ListenKeyKeepAlive = time.Duration(getEnvAsInt("LISTEN_KEY_KEEPALIVE_MINUTES", 30)) * time.Minute
	cfg.ListenKeyRotate = time.Duration(getEnvAsInt("LISTEN_KEY_ROTATE_HOURS", 24)) * time.Hour

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 2)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second
	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	cfg.StatusSyncInterval = time.Duration(getEnvAsInt("STATUS_SYNC_INTERVAL_MINUTES", 24)) * time.Minute
	cfg.PnLBackfillInterval = time.Duration(getEnvAsInt("PNL_BACKFILL_INTERVAL_MINUTES", 60)) * time.Minute
	cfg.OrphanCleanupInterval = time.Duration(getEnvAsInt("ORPHAN_CLEANUP_INTERVAL_MINUTES", 120)) * time.Minute
	cfg.BalanceSyncInterval = time.Duration(getEnvAsInt("BALANCE_SYNC_INTERVAL_MINUTES", 5)) * time.Minute
	cfg.PositionAuditInterval = time.Duration(getEnvAsInt("POSITION_AUDIT_INTERVAL_MINUTES", 5)) * time.Minute
	cfg.StatusSyncAgeWindow = time.Duration(getEnvAsInt("STATUS_SYNC_AGE_WINDOW_HOURS", 120)) * time.Hour

	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 0)
	cfg.MaxDailyLossUSD = getEnvAsFloat("MAX_DAILY_LOSS_USD", 0)

	cfg.TrackedBalanceAssets = parseSymbolList(getEnv("TRACKED_BALANCE_ASSETS", "USDT"))

	cfg.DBPath = getEnv("DB_PATH", "./data/tradebot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8088")

	cfg.RESTRequestsPerSecond = getEnvAsFloat("REST_REQUESTS_PER_SECOND", 10.0)
	if cfg.RESTRequestsPerSecond <= 0 {
		errs = append(errs, "REST_REQUESTS_PER_SECOND must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func parseSymbolList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseSymbolSet(csv string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out[s] = true
		}
	}
	return out
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
