package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockexchange/params"
	"stockexchange/pkg/eventbus"
	"stockexchange/pkg/exchange/book"
	"stockexchange/pkg/util"
)

// OrderSubmitter is the slice of the exchange the market maker needs.
type OrderSubmitter interface {
	ExecuteTrade(ctx context.Context, o book.Order) error
}

// MarketMaker quotes a bid and an ask around its current reference
// price for one symbol. It requotes reactively on every trade
// notification pushed by the coordinator, follows simulated price moves
// on the psasystem topic, and optionally requotes on its own schedule.
type MarketMaker struct {
	symbol    string
	price     decimal.Decimal
	cfg       params.Sim
	submitter OrderSubmitter
	bus       *eventbus.Bus
	clock     util.Clock
	rng       *rand.Rand
	log       *zap.SugaredLogger

	updates chan decimal.Decimal
	alerts  chan eventbus.Envelope
}

func NewMarketMaker(symbol string, initial decimal.Decimal, cfg params.Sim, submitter OrderSubmitter, bus *eventbus.Bus, clock util.Clock, log *zap.SugaredLogger) *MarketMaker {
	return &MarketMaker{
		symbol:    symbol,
		price:     initial.Round(2),
		cfg:       cfg,
		submitter: submitter,
		bus:       bus,
		clock:     clock,
		rng:       rand.New(rand.NewSource(clock.Now().UnixNano())),
		log:       log,
		updates:   make(chan decimal.Decimal, 16),
		alerts:    make(chan eventbus.Envelope, 16),
	}
}

// NotifyPrice pushes an updated trade price to the maker. Non-blocking;
// if the maker is behind, only the freshest notifications matter.
func (m *MarketMaker) NotifyPrice(p decimal.Decimal) {
	select {
	case m.updates <- p:
	default:
	}
}

func (m *MarketMaker) Start(ctx context.Context, wg *sync.WaitGroup) {
	m.bus.Subscribe(eventbus.TopicPriceSim, m.alerts)
	wg.Add(1)
	go m.run(ctx, wg)
}

func (m *MarketMaker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer m.bus.Unsubscribe(eventbus.TopicPriceSim, m.alerts)

	var requote <-chan time.Time
	if m.cfg.QuoteInterval > 0 {
		requote = m.clock.After(m.cfg.QuoteInterval)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-m.updates:
			m.price = p
			m.quote(ctx)

		case env := <-m.alerts:
			if pu, ok := env.Payload.(PriceUpdate); ok && pu.Symbol == m.symbol {
				m.price = pu.Price
			}

		case <-requote:
			m.quote(ctx)
			requote = m.clock.After(m.cfg.QuoteInterval)
		}
	}
}

// quote places a bid below and an ask above the current price.
func (m *MarketMaker) quote(ctx context.Context) {
	if !m.price.IsPositive() {
		return
	}
	bidPrice, askPrice := quotePrices(m.price, m.cfg.SpreadBps)
	if !bidPrice.IsPositive() {
		return
	}

	bidQty := m.quoteSize()
	askQty := m.quoteSize()

	m.log.Infow("market_maker_quotes",
		"symbol", m.symbol,
		"bid_qty", bidQty, "bid", bidPrice,
		"ask_qty", askQty, "ask", askPrice,
		"ref", m.price)

	if err := m.submitter.ExecuteTrade(ctx, book.NewOrder(m.symbol, book.Buy, bidQty, bidPrice)); err != nil {
		m.log.Warnw("market_maker_bid_rejected", "symbol", m.symbol, "err", err)
	}
	if err := m.submitter.ExecuteTrade(ctx, book.NewOrder(m.symbol, book.Sell, askQty, askPrice)); err != nil {
		m.log.Warnw("market_maker_ask_rejected", "symbol", m.symbol, "err", err)
	}
}

func (m *MarketMaker) quoteSize() int64 {
	if m.cfg.QuoteMax <= m.cfg.QuoteMin {
		return m.cfg.QuoteMin
	}
	return m.cfg.QuoteMin + m.rng.Int63n(m.cfg.QuoteMax-m.cfg.QuoteMin+1)
}

// quotePrices computes the two-sided quote around price for a
// half-spread given in basis points.
func quotePrices(price decimal.Decimal, spreadBps int64) (bid, ask decimal.Decimal) {
	one := decimal.NewFromInt(1)
	spread := decimal.NewFromInt(spreadBps).Div(decimal.NewFromInt(10000))
	bid = price.Mul(one.Sub(spread)).Round(2)
	ask = price.Mul(one.Add(spread)).Round(2)
	return bid, ask
}
