package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// VenueConfig holds the per-venue settings read from {VENUE}_* variables.
type VenueConfig struct {
	Name        string // lowercase venue id
	Driver      string // "sim" or "feed"
	APIKey      string
	APISecret   string
	APIPassword string
	RateLimit   int // requests per rate-limit window
	Timeout     time.Duration
	WSURL       string
	RESTURL     string
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel      string
	HTTPPort      string
	HealthEnabled bool
	TestMode      bool

	// Venues
	Venues         []VenueConfig
	TradingSymbols []string

	// Market data
	OrderBookDepth     int
	StalenessThreshold time.Duration

	// Strategy
	MaxConcurrentTrades     int
	MinProfitPercent        float64
	MaxTradeAmount          float64
	MinTradeAmount          float64
	CheckInterval           time.Duration
	MaxSlippagePercent      float64
	PartialFillThreshold    float64
	PriceTolerancePercent   float64
	MaxProfitErosionPercent float64
	DynamicTolerance        bool
	MaxOpportunityAge       time.Duration
	ReservePercent          float64
	OrderTimeout            time.Duration

	// Shutdown
	ShutdownBehavior string // "cancel", "wait" or "force"
	DrainTimeout     time.Duration

	// Ledger
	StateFile string
	OrphanAge time.Duration

	// Rate limiter
	RateLimitWindow            time.Duration
	RateLimitInitialBackoff    time.Duration
	RateLimitMaxBackoff        time.Duration
	RateLimitBackoffMultiplier float64
	RateLimitDefaultCapacity   int

	// Reconnection
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	MaxReconnectAttempts  int
	StreamRestartDelay    time.Duration

	// Timeout recovery (order submission)
	RecoveryWindow    time.Duration
	RecoverySleep     time.Duration
	RecoveryTolerance float64 // percent

	// Fees
	FeeCacheTTL     time.Duration
	DefaultMakerFee float64
	DefaultTakerFee float64

	// Journal
	JournalBackend string // "console", "postgres" or "off"
	DatabaseURL    string

	// Execution guard
	GuardEnabled                bool
	GuardMaxConsecutiveFailures int
	GuardMinQuoteBalance        float64
	GuardResumeFactor           float64
	GuardCheckInterval          time.Duration

	// Warnings collected while loading, before any logger exists.
	Warnings *Warnings
}

// LoadFromEnv loads configuration from environment variables with defaults.
// Parse failures fall back to the default and leave a note in cfg.Warnings.
func LoadFromEnv() (*Config, error) {
	w := NewWarnings(32)

	cfg := &Config{
		// Application defaults
		LogLevel:      getEnvOrDefault(w, "LOG_LEVEL", "info"),
		HTTPPort:      getEnvOrDefault(w, "HTTP_PORT", "8080"),
		HealthEnabled: getBoolOrDefault(w, "HEALTH_ENABLED", true),
		TestMode:      getBoolOrDefault(w, "TEST_MODE", true),

		// Venue and symbol sets
		TradingSymbols: getCSV(w, "TRADING_SYMBOLS"),

		// Market data defaults
		OrderBookDepth:     getIntOrDefault(w, "ORDER_BOOK_DEPTH", 10),
		StalenessThreshold: time.Duration(getIntOrDefault(w, "ORDER_BOOK_STALENESS_THRESHOLD_MS", 500)) * time.Millisecond,

		// Strategy defaults
		MaxConcurrentTrades:     getIntOrDefault(w, "MAX_CONCURRENT_TRADES", 3),
		MinProfitPercent:        getFloat64OrDefault(w, "SIMPLE_ARBITRAGE_MIN_PROFIT", 0.5),
		MaxTradeAmount:          getFloat64OrDefault(w, "SIMPLE_ARBITRAGE_MAX_TRADE_AMOUNT", 100.0),
		MinTradeAmount:          getFloat64OrDefault(w, "MIN_TRADE_AMOUNT", 0.0001),
		CheckInterval:           getDurationOrDefault(w, "SIMPLE_ARBITRAGE_CHECK_INTERVAL", 5*time.Second),
		MaxSlippagePercent:      getFloat64OrDefault(w, "SIMPLE_ARBITRAGE_MAX_SLIPPAGE", 0.5),
		PartialFillThreshold:    getFloat64OrDefault(w, "SIMPLE_ARBITRAGE_PARTIAL_FILL_THRESHOLD", 95.0),
		PriceTolerancePercent:   getFloat64OrDefault(w, "SIMPLE_ARBITRAGE_PRICE_TOLERANCE", 0.1),
		MaxProfitErosionPercent: getFloat64OrDefault(w, "SIMPLE_ARBITRAGE_MAX_PROFIT_EROSION", 20.0),
		DynamicTolerance:        getBoolOrDefault(w, "SIMPLE_ARBITRAGE_DYNAMIC_TOLERANCE", true),
		MaxOpportunityAge:       getDurationOrDefault(w, "MAX_OPPORTUNITY_AGE", 5*time.Second),
		ReservePercent:          getFloat64OrDefault(w, "RESERVE_PERCENT", 1.0),
		OrderTimeout:            getDurationOrDefault(w, "ORDER_TIMEOUT", 30*time.Second),

		// Shutdown defaults
		ShutdownBehavior: getEnvOrDefault(w, "SHUTDOWN_BEHAVIOR", "wait"),
		DrainTimeout:     getDurationOrDefault(w, "DRAIN_TIMEOUT", 60*time.Second),

		// Ledger defaults
		StateFile: getEnvOrDefault(w, "STATE_FILE", "data/trade-state.json"),
		OrphanAge: getDurationOrDefault(w, "ORPHAN_AGE", 24*time.Hour),

		// Rate limiter defaults
		RateLimitWindow:            getDurationOrDefault(w, "RATE_LIMIT_WINDOW", time.Second),
		RateLimitInitialBackoff:    getDurationOrDefault(w, "RATE_LIMIT_INITIAL_BACKOFF", time.Second),
		RateLimitMaxBackoff:        getDurationOrDefault(w, "RATE_LIMIT_MAX_BACKOFF", 60*time.Second),
		RateLimitBackoffMultiplier: getFloat64OrDefault(w, "RATE_LIMIT_BACKOFF_MULTIPLIER", 2.0),
		RateLimitDefaultCapacity:   getIntOrDefault(w, "RATE_LIMIT_DEFAULT_CAPACITY", 10),

		// Reconnection defaults
		ReconnectInitialDelay: getDurationOrDefault(w, "RECONNECT_INITIAL_DELAY", 5*time.Second),
		ReconnectMaxDelay:     getDurationOrDefault(w, "RECONNECT_MAX_DELAY", 5*time.Minute),
		MaxReconnectAttempts:  getIntOrDefault(w, "MAX_RECONNECT_ATTEMPTS", 5),
		StreamRestartDelay:    getDurationOrDefault(w, "STREAM_RESTART_DELAY", time.Second),

		// Timeout recovery defaults
		RecoveryWindow:    getDurationOrDefault(w, "TIMEOUT_RECOVERY_WINDOW", 30*time.Second),
		RecoverySleep:     getDurationOrDefault(w, "TIMEOUT_RECOVERY_SLEEP", 2*time.Second),
		RecoveryTolerance: getFloat64OrDefault(w, "TIMEOUT_RECOVERY_TOLERANCE", 1.0),

		// Fee defaults
		FeeCacheTTL:     getDurationOrDefault(w, "FEE_CACHE_TTL", 24*time.Hour),
		DefaultMakerFee: getFloat64OrDefault(w, "DEFAULT_MAKER_FEE", 0.001),
		DefaultTakerFee: getFloat64OrDefault(w, "DEFAULT_TAKER_FEE", 0.002),

		// Journal defaults
		JournalBackend: getEnvOrDefault(w, "JOURNAL_BACKEND", "console"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		// Guard defaults
		GuardEnabled:                getBoolOrDefault(w, "GUARD_ENABLED", false),
		GuardMaxConsecutiveFailures: getIntOrDefault(w, "GUARD_MAX_CONSECUTIVE_FAILURES", 3),
		GuardMinQuoteBalance:        getFloat64OrDefault(w, "GUARD_MIN_QUOTE_BALANCE", 0),
		GuardResumeFactor:           getFloat64OrDefault(w, "GUARD_RESUME_FACTOR", 1.2),
		GuardCheckInterval:          getDurationOrDefault(w, "GUARD_CHECK_INTERVAL", 30*time.Second),

		Warnings: w,
	}

	cfg.Venues = loadVenues(w, getCSV(w, "ENABLED_EXCHANGES"), cfg.TestMode)

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// loadVenues reads the {VENUE}_* variable block for every enabled venue.
// Variable prefixes are the upper-cased venue name with "-" mapped to "_".
func loadVenues(w *Warnings, names []string, testMode bool) []VenueConfig {
	venues := make([]VenueConfig, 0, len(names))

	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		prefix := strings.ReplaceAll(strings.ToUpper(name), "-", "_")

		defaultDriver := "feed"
		if testMode {
			defaultDriver = "sim"
		}

		venues = append(venues, VenueConfig{
			Name:        name,
			Driver:      getEnvOrDefault(w, prefix+"_DRIVER", defaultDriver),
			APIKey:      os.Getenv(prefix + "_API_KEY"),
			APISecret:   os.Getenv(prefix + "_API_SECRET"),
			APIPassword: os.Getenv(prefix + "_API_PASSWORD"),
			RateLimit:   getIntOrDefault(w, prefix+"_RATE_LIMIT", 10),
			Timeout:     getDurationOrDefault(w, prefix+"_TIMEOUT", 15*time.Second),
			WSURL:       os.Getenv(prefix + "_WS_URL"),
			RESTURL:     os.Getenv(prefix + "_REST_URL"),
		})
	}

	return venues
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	switch c.ShutdownBehavior {
	case "cancel", "wait", "force":
	default:
		return fmt.Errorf("SHUTDOWN_BEHAVIOR must be 'cancel', 'wait' or 'force', got %q", c.ShutdownBehavior)
	}

	if c.MaxConcurrentTrades <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TRADES must be positive, got %d", c.MaxConcurrentTrades)
	}

	if c.OrderBookDepth <= 0 {
		return fmt.Errorf("ORDER_BOOK_DEPTH must be positive, got %d", c.OrderBookDepth)
	}

	if c.PartialFillThreshold <= 0 || c.PartialFillThreshold > 100 {
		return fmt.Errorf("SIMPLE_ARBITRAGE_PARTIAL_FILL_THRESHOLD must be in (0, 100], got %f", c.PartialFillThreshold)
	}

	if c.CheckInterval <= 0 {
		return fmt.Errorf("SIMPLE_ARBITRAGE_CHECK_INTERVAL must be positive, got %s", c.CheckInterval)
	}

	if c.MaxTradeAmount <= 0 {
		return fmt.Errorf("SIMPLE_ARBITRAGE_MAX_TRADE_AMOUNT must be positive, got %f", c.MaxTradeAmount)
	}

	for _, sym := range c.TradingSymbols {
		base, quote, ok := strings.Cut(sym, "/")
		if !ok || base == "" || quote == "" {
			return fmt.Errorf("TRADING_SYMBOLS entry %q is not BASE/QUOTE", sym)
		}
	}

	switch c.JournalBackend {
	case "console", "off":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("JOURNAL_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("JOURNAL_BACKEND must be 'console', 'postgres' or 'off', got %q", c.JournalBackend)
	}

	for _, v := range c.Venues {
		if v.Driver != "sim" && v.Driver != "feed" {
			return fmt.Errorf("%s: driver must be 'sim' or 'feed', got %q", v.Name, v.Driver)
		}

		if v.Driver == "feed" {
			if v.WSURL == "" || v.RESTURL == "" {
				return fmt.Errorf("%s: feed driver requires WS_URL and REST_URL", v.Name)
			}
			if !c.TestMode && (v.APIKey == "" || v.APISecret == "") {
				return fmt.Errorf("%s: live mode requires API_KEY and API_SECRET", v.Name)
			}
		}
	}

	if len(c.Venues) < 2 {
		c.Warnings.Addf("fewer than two venues enabled (%d): cross-venue scans will find nothing", len(c.Venues))
	}

	if len(c.TradingSymbols) == 0 {
		c.Warnings.Addf("TRADING_SYMBOLS is empty: nothing to monitor")
	}

	return nil
}

func getEnvOrDefault(_ *Warnings, key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getCSV(_ *Warnings, key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

func getIntOrDefault(w *Warnings, key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		w.Addf("%s=%q is not an integer, using %d", key, value, defaultValue)
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(w *Warnings, key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		w.Addf("%s=%q is not a number, using %g", key, value, defaultValue)
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(w *Warnings, key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		w.Addf("%s=%q is not a bool, using %v", key, value, defaultValue)
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(w *Warnings, key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		w.Addf("%s=%q is not a duration, using %s", key, value, defaultValue)
		return defaultValue
	}

	return duration
}
