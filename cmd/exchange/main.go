package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockexchange/params"
	"stockexchange/pkg/api"
	"stockexchange/pkg/eventbus"
	"stockexchange/pkg/exchange"
	"stockexchange/pkg/exchange/book"
	"stockexchange/pkg/util"
)

func main() {
	// Load config from .env file and environment variables.
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		logger, err = util.NewLoggerWithFile(logFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	bus := eventbus.New(sugar)
	ex := exchange.New(cfg, bus, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		srv := api.NewServer(ex, bus, sugar)
		go func() {
			if err := srv.Start(ctx, cfg.API.Addr); err != nil {
				sugar.Errorw("api_server_failed", "err", err)
			}
		}()
	}

	// Seed the demo symbols with random reference prices and wire a
	// market maker to each, then drive a stream of simulated buys.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, symbol := range cfg.Demo.Symbols {
		price := randomPrice(rng)
		if err := ex.RegisterStock(ctx, symbol, symbol+" Inc.", price); err != nil {
			sugar.Fatalw("register_stock_failed", "symbol", symbol, "err", err)
		}
		if err := ex.RegisterMarketMaker(ctx, symbol, price); err != nil {
			sugar.Fatalw("register_market_maker_failed", "symbol", symbol, "err", err)
		}
		go driveOrders(ctx, ex, symbol, cfg.Demo, sugar)
	}

	sugar.Infow("exchange_running", "symbols", cfg.Demo.Symbols)

	<-ctx.Done()
	ex.Stop()
	sugar.Infow("shutdown_complete")
}

// randomPrice draws from [0, 100) at two decimal places, floored to one
// cent so the walker always has a positive starting point.
func randomPrice(rng *rand.Rand) decimal.Decimal {
	p := decimal.NewFromFloat(rng.Float64() * 100).Round(2)
	if !p.IsPositive() {
		return decimal.New(1, -2)
	}
	return p
}

// driveOrders submits a random buy order for symbol on a random
// cadence until the context is cancelled.
func driveOrders(ctx context.Context, ex *exchange.Exchange, symbol string, cfg params.Demo, log *zap.SugaredLogger) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ rand.Int63()))

	for {
		delay := cfg.OrderMin
		if span := int64(cfg.OrderMax - cfg.OrderMin); span > 0 {
			delay += time.Duration(rng.Int63n(span + 1))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		o := book.NewOrder(symbol, book.Buy, cfg.OrderQty, randomPrice(rng))
		if err := ex.ExecuteTrade(ctx, o); err != nil {
			log.Warnw("demo_order_rejected", "symbol", symbol, "err", err)
		}
	}
}
