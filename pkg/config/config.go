// Package config loads environment-driven settings for the trading core,
// using a flat env-var-with-defaults loader.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything main needs to wire the process together.
type Config struct {
	// Bus backend: "memory" for a single-process deterministic bus, or
	// "redis" to fan out through a standalone Redis instance.
	BusBackend   string
	RedisAddr    string
	RedisPasswd  string
	RedisDB      int

	// Market data
	Symbols          []string
	UseMockFeed      bool
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Live trading gate. Env must be "live" and NJORD_ENABLE_LIVE=1 in the
	// process environment for the broker dispatcher to place real orders.
	Env string

	// Risk caps
	RiskOrdersPerMinCap int
	RiskPerOrderUSDCap  float64
	RiskDailyLossUSDCap float64

	// Filesystem
	JournalDir     string
	KillSwitchPath string

	// Strategy manifest
	StrategyManifestPath string
	StrategyReloadEvery  time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		BusBackend:   strings.ToLower(getEnv("BUS_BACKEND", "memory")),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPasswd:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTC/USDT,ETH/USDT")),
		UseMockFeed:      getEnv("USE_MOCK_FEED", "true") == "true",
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "true") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),

		Env: strings.ToLower(getEnv("NJORD_ENV", "paper")),

		RiskOrdersPerMinCap: getEnvInt("RISK_ORDERS_PER_MIN_CAP", 60),
		RiskPerOrderUSDCap:  getEnvFloat("RISK_PER_ORDER_USD_CAP", 10_000),
		RiskDailyLossUSDCap: getEnvFloat("RISK_DAILY_LOSS_USD_CAP", 1_000),

		JournalDir:     getEnv("JOURNAL_DIR", "./data/journal"),
		KillSwitchPath: getEnv("KILLSWITCH_PATH", "./data/killswitch.halt"),

		StrategyManifestPath: getEnv("STRATEGY_MANIFEST_PATH", "./strategies.yaml"),
		StrategyReloadEvery:  getEnvDuration("STRATEGY_RELOAD_EVERY", 30*time.Second),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
