package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Exchange struct {
	// CommandTimeout bounds every request/reply interaction with the
	// coordinator (trade submission, price queries). A reply past this
	// deadline is reported as a routing failure, never left pending.
	CommandTimeout time.Duration

	// WorkerQueue is the per-symbol command buffer. A full queue rejects
	// the command instead of blocking the coordinator.
	WorkerQueue int
}

type Sim struct {
	// SpreadBps is the market maker's half-spread around the reference
	// price, in basis points (100 = 1%).
	SpreadBps int64

	// Quote sizes are drawn uniformly from [QuoteMin, QuoteMax].
	QuoteMin int64
	QuoteMax int64

	// QuoteInterval, when > 0, makes the market maker requote on its own
	// schedule in addition to reacting to trade notifications.
	QuoteInterval time.Duration

	// Price-walk cadence: first perturbation after WalkInitialDelay,
	// then one every WalkInterval (fixed delay).
	WalkInitialDelay time.Duration
	WalkInterval     time.Duration

	// WalkRange is the maximum absolute perturbation per step, as a
	// fraction of the current price (0.05 = +/-5%).
	WalkRange float64
}

type API struct {
	Enabled bool
	Addr    string
}

type Demo struct {
	Symbols  []string
	OrderQty int64
	// Each symbol receives a simulated buy order every [OrderMin, OrderMax].
	OrderMin time.Duration
	OrderMax time.Duration
}

type Config struct {
	Exchange Exchange
	Sim      Sim
	API      API
	Demo     Demo
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			CommandTimeout: 2 * time.Second,
			WorkerQueue:    256,
		},
		Sim: Sim{
			SpreadBps:        100,
			QuoteMin:         10,
			QuoteMax:         60,
			QuoteInterval:    0,
			WalkInitialDelay: 2 * time.Second,
			WalkInterval:     5 * time.Second,
			WalkRange:        0.05,
		},
		API: API{
			Enabled: true,
			Addr:    ":8080",
		},
		Demo: Demo{
			Symbols:  []string{"IBM", "GOOGL", "AAPL", "MSFT", "SPY"},
			OrderQty: 100,
			OrderMin: 2 * time.Second,
			OrderMax: 8 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Exchange.CommandTimeout = envDurationMS("EXCHANGE_CMD_TIMEOUT_MS", cfg.Exchange.CommandTimeout)
	cfg.Exchange.WorkerQueue = envInt("EXCHANGE_WORKER_QUEUE", cfg.Exchange.WorkerQueue)

	cfg.Sim.SpreadBps = int64(envInt("MM_SPREAD_BPS", int(cfg.Sim.SpreadBps)))
	cfg.Sim.QuoteMin = int64(envInt("MM_QUOTE_MIN", int(cfg.Sim.QuoteMin)))
	cfg.Sim.QuoteMax = int64(envInt("MM_QUOTE_MAX", int(cfg.Sim.QuoteMax)))
	cfg.Sim.QuoteInterval = envDurationMS("MM_QUOTE_INTERVAL_MS", cfg.Sim.QuoteInterval)
	cfg.Sim.WalkInitialDelay = envDurationMS("WALK_INITIAL_DELAY_MS", cfg.Sim.WalkInitialDelay)
	cfg.Sim.WalkInterval = envDurationMS("WALK_INTERVAL_MS", cfg.Sim.WalkInterval)

	if v := os.Getenv("API_ENABLED"); v != "" {
		cfg.API.Enabled = v == "true"
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}

	if v := os.Getenv("DEMO_SYMBOLS"); v != "" {
		// Example: "IBM,GOOGL,AAPL"
		cfg.Demo.Symbols = strings.Split(v, ",")
	}
	cfg.Demo.OrderQty = int64(envInt("DEMO_ORDER_QTY", int(cfg.Demo.OrderQty)))
	cfg.Demo.OrderMin = envDurationMS("DEMO_ORDER_MIN_MS", cfg.Demo.OrderMin)
	cfg.Demo.OrderMax = envDurationMS("DEMO_ORDER_MAX_MS", cfg.Demo.OrderMax)

	return cfg
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationMS(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
