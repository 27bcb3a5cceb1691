// Package sim holds the periodic collaborators around the matching
// core: the price-walk simulator that perturbs a reference price on a
// timer, and the market maker that quotes around it. Both are plain
// generators driving the exchange through its public command surface;
// they own no matching invariants.
package sim

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockexchange/params"
	"stockexchange/pkg/eventbus"
	"stockexchange/pkg/util"
)

// PriceUpdate is the payload published on the psasystem topic after
// each simulated price move.
type PriceUpdate struct {
	Symbol string
	Price  decimal.Decimal
}

// PriceWalker perturbs one symbol's reference price on a fixed-delay
// schedule and publishes the result on the price-simulator topic. The
// walker owns its timer; cancelling the context passed to Start is the
// only way to stop it.
type PriceWalker struct {
	symbol string
	price  decimal.Decimal
	cfg    params.Sim
	bus    *eventbus.Bus
	clock  util.Clock
	rng    *rand.Rand
	log    *zap.SugaredLogger
}

func NewPriceWalker(symbol string, initial decimal.Decimal, cfg params.Sim, bus *eventbus.Bus, clock util.Clock, log *zap.SugaredLogger) *PriceWalker {
	return &PriceWalker{
		symbol: symbol,
		price:  initial.Round(2),
		cfg:    cfg,
		bus:    bus,
		clock:  clock,
		rng:    rand.New(rand.NewSource(clock.Now().UnixNano())),
		log:    log,
	}
}

func (w *PriceWalker) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go w.run(ctx, wg)
}

func (w *PriceWalker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	delay := w.cfg.WalkInitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.clock.After(delay):
			w.step()
			delay = w.cfg.WalkInterval
		}
	}
}

func (w *PriceWalker) step() {
	w.price = walk(w.price, w.cfg.WalkRange, w.rng)
	w.log.Infow("price_update", "symbol", w.symbol, "price", w.price)
	w.bus.Publish(eventbus.Envelope{
		Topic:   eventbus.TopicPriceSim,
		Payload: PriceUpdate{Symbol: w.symbol, Price: w.price},
	})
}

// walk applies one bounded random perturbation: a move of at most
// +/-rangeFrac of the current price, rounded to two places. The result
// never drops below one cent.
func walk(price decimal.Decimal, rangeFrac float64, rng *rand.Rand) decimal.Decimal {
	changePct := (rng.Float64() - 0.5) * 2 * rangeFrac
	delta := price.Mul(decimal.NewFromFloat(changePct)).Round(2)
	next := price.Add(delta)
	if floor := decimal.New(1, -2); next.LessThan(floor) {
		return floor
	}
	return next
}
