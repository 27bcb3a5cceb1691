// Package exchange implements the coordinator of the simulated
// securities exchange: the symbol registry, per-symbol single-owner
// workers, and the routing between inbound commands, the matching core
// and the event bus.
//
// Concurrency model: one coordinator goroutine owns the registry; one
// worker goroutine per symbol owns that symbol's order book. All
// cross-component communication is asynchronous message passing, and
// every request/reply interaction resolves with a value or an explicit
// error under a configured timeout.
package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockexchange/params"
	"stockexchange/pkg/eventbus"
	"stockexchange/pkg/exchange/book"
	"stockexchange/pkg/sim"
	"stockexchange/pkg/util"
)

type Exchange struct {
	cfg   params.Config
	bus   *eventbus.Bus
	clock util.Clock
	log   *zap.SugaredLogger

	cmds   chan any
	events chan workerEvent
	alerts chan eventbus.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// listing is a registry entry: the stock record, the owning worker,
// and the optional simulation collaborators. Touched only by the
// coordinator goroutine.
type listing struct {
	stock  Stock
	worker *worker
	walker *sim.PriceWalker
	maker  *sim.MarketMaker
}

func New(cfg params.Config, bus *eventbus.Bus, log *zap.SugaredLogger) *Exchange {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Exchange{
		cfg:    cfg,
		bus:    bus,
		clock:  util.RealClock{},
		log:    log,
		cmds:   make(chan any, 64),
		events: make(chan workerEvent, 256),
		alerts: make(chan eventbus.Envelope, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	// Price-walk alerts act as explicit price-update commands for the
	// simulation: they refresh the registry's reference prices.
	bus.Subscribe(eventbus.TopicPriceSim, e.alerts)

	e.wg.Add(1)
	go e.run()
	return e
}

// Stop cancels every worker and collaborator ticker and waits for them
// to exit. In-flight commands may be dropped; their callers receive a
// routing failure rather than silence.
func (e *Exchange) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
		e.bus.Unsubscribe(eventbus.TopicPriceSim, e.alerts)
		e.log.Infow("exchange_stopped")
	})
}

// RegisterStock lists a symbol and spawns its order book and owning
// worker. Re-registration fails with ErrDuplicateSymbol.
func (e *Exchange) RegisterStock(ctx context.Context, symbol, name string, price decimal.Decimal) error {
	reply := make(chan error, 1)
	cmd := cmdRegisterStock{
		stock: Stock{Symbol: symbol, Name: name, Price: price.Round(2)},
		reply: reply,
	}
	res, err := request(e, ctx, cmd, reply)
	if err != nil {
		return err
	}
	return res
}

// RegisterMarketMaker wires the price-walk and market-maker
// collaborators onto an already-listed symbol.
func (e *Exchange) RegisterMarketMaker(ctx context.Context, symbol string, initialPrice decimal.Decimal) error {
	reply := make(chan error, 1)
	res, err := request(e, ctx, cmdRegisterMaker{symbol: symbol, price: initialPrice.Round(2), reply: reply}, reply)
	if err != nil {
		return err
	}
	return res
}

// ExecuteTrade routes an order to its symbol's worker, which appends it
// to the book and drains all crossing matches before replying. The
// returned error is the definitive outcome of the submission.
func (e *Exchange) ExecuteTrade(ctx context.Context, o book.Order) error {
	reply := make(chan error, 1)
	res, err := request(e, ctx, cmdExecuteTrade{order: o, reply: reply}, reply)
	if err != nil {
		return err
	}
	return res
}

// CancelOrder removes a resting order from its symbol's book.
func (e *Exchange) CancelOrder(ctx context.Context, symbol string, id uuid.UUID) error {
	reply := make(chan error, 1)
	res, err := request(e, ctx, cmdCancelOrder{symbol: symbol, id: id, reply: reply}, reply)
	if err != nil {
		return err
	}
	return res
}

// GetStockPrice returns the symbol's last traded or registered price.
func (e *Exchange) GetStockPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	reply := make(chan priceReply, 1)
	res, err := request(e, ctx, cmdGetPrice{symbol: symbol, reply: reply}, reply)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return res.price, res.err
}

// ListStocks returns every registry entry, sorted by symbol.
func (e *Exchange) ListStocks(ctx context.Context) ([]Stock, error) {
	reply := make(chan []Stock, 1)
	return request(e, ctx, cmdListStocks{reply: reply}, reply)
}

// BookSnapshot returns the top depth price levels of the symbol's book.
func (e *Exchange) BookSnapshot(ctx context.Context, symbol string, depth int) (book.Snapshot, error) {
	reply := make(chan snapshotReply, 1)
	res, err := request(e, ctx, cmdSnapshot{symbol: symbol, depth: depth, reply: reply}, reply)
	if err != nil {
		return book.Snapshot{}, err
	}
	return res.snap, res.err
}

// request enqueues cmd and waits for its reply under the command
// timeout. It fails explicitly on a stopped exchange, a full command
// queue or a missing reply; it never leaves the caller hanging. The
// caller's own cancellation is reported as ctx.Err, not as a routing
// failure.
func request[R any](e *Exchange, ctx context.Context, cmd any, reply <-chan R) (R, error) {
	var zero R

	parent := ctx
	if err := parent.Err(); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Exchange.CommandTimeout)
	defer cancel()

	select {
	case e.cmds <- cmd:
	case <-e.ctx.Done():
		return zero, fmt.Errorf("exchange stopped: %w", ErrRoutingFailure)
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("command not accepted: %w", ErrRoutingFailure)
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("no reply: %w", ErrRoutingFailure)
	}
}

// run is the coordinator loop, sole owner of the registry.
func (e *Exchange) run() {
	defer e.wg.Done()

	listings := make(map[string]*listing)

	for {
		select {
		case <-e.ctx.Done():
			return
		case c := <-e.cmds:
			e.handle(listings, c)
		case ev := <-e.events:
			e.onEvent(listings, ev)
		case env := <-e.alerts:
			e.onAlert(listings, env)
		}
	}
}

func (e *Exchange) handle(listings map[string]*listing, c any) {
	switch c := c.(type) {
	case cmdRegisterStock:
		sym := c.stock.Symbol
		if _, ok := listings[sym]; ok {
			c.reply <- fmt.Errorf("%s: %w", sym, ErrDuplicateSymbol)
			return
		}
		w := newWorker(sym, e.cfg.Exchange.WorkerQueue, e.events, e.log)
		w.start(e.ctx, &e.wg)
		listings[sym] = &listing{stock: c.stock, worker: w}
		e.log.Infow("stock_registered", "symbol", sym, "name", c.stock.Name, "price", c.stock.Price)
		c.reply <- nil

	case cmdRegisterMaker:
		lst, ok := listings[c.symbol]
		if !ok {
			c.reply <- fmt.Errorf("%s: %w", c.symbol, ErrUnknownSymbol)
			return
		}
		if lst.maker != nil {
			c.reply <- fmt.Errorf("market maker for %s: %w", c.symbol, ErrDuplicateSymbol)
			return
		}
		lst.walker = sim.NewPriceWalker(c.symbol, c.price, e.cfg.Sim, e.bus, e.clock, e.log)
		lst.walker.Start(e.ctx, &e.wg)
		lst.maker = sim.NewMarketMaker(c.symbol, c.price, e.cfg.Sim, e, e.bus, e.clock, e.log)
		lst.maker.Start(e.ctx, &e.wg)
		e.log.Infow("market_maker_registered", "symbol", c.symbol, "price", c.price)
		c.reply <- nil

	case cmdExecuteTrade:
		lst, ok := listings[c.order.Symbol]
		if !ok {
			c.reply <- fmt.Errorf("%s: %w", c.order.Symbol, ErrUnknownSymbol)
			return
		}
		if c.order.Quantity <= 0 || !c.order.Price.Round(2).IsPositive() {
			c.reply <- fmt.Errorf("%s %d @ %s: %w", c.order.Side, c.order.Quantity, c.order.Price, ErrInvalidOrder)
			return
		}
		if err := lst.worker.submit(placeCmd{order: c.order, reply: c.reply}); err != nil {
			c.reply <- err
		}

	case cmdCancelOrder:
		lst, ok := listings[c.symbol]
		if !ok {
			c.reply <- fmt.Errorf("%s: %w", c.symbol, ErrUnknownSymbol)
			return
		}
		if err := lst.worker.submit(cancelCmd{id: c.id, reply: c.reply}); err != nil {
			c.reply <- err
		}

	case cmdGetPrice:
		lst, ok := listings[c.symbol]
		if !ok {
			c.reply <- priceReply{err: fmt.Errorf("%s: %w", c.symbol, ErrUnknownSymbol)}
			return
		}
		c.reply <- priceReply{price: lst.stock.Price}

	case cmdListStocks:
		out := make([]Stock, 0, len(listings))
		for _, lst := range listings {
			out = append(out, lst.stock)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
		c.reply <- out

	case cmdSnapshot:
		lst, ok := listings[c.symbol]
		if !ok {
			c.reply <- snapshotReply{err: fmt.Errorf("%s: %w", c.symbol, ErrUnknownSymbol)}
			return
		}
		if err := lst.worker.submit(snapshotCmd{depth: c.depth, reply: c.reply}); err != nil {
			c.reply <- snapshotReply{err: err}
		}

	default:
		e.log.Errorw("exchange_unknown_command", "cmd", fmt.Sprintf("%T", c))
	}
}

// onEvent republishes a worker's match outcomes: the trade on the fills
// topic, per-order fills and cancellations on the order-status topic,
// the registry price refreshed and the symbol's market maker notified.
func (e *Exchange) onEvent(listings map[string]*listing, ev workerEvent) {
	lst, ok := listings[ev.symbol]
	if !ok {
		return
	}

	for _, m := range ev.matches {
		lst.stock.Price = m.Trade.Price
		e.log.Infow("trade_executed",
			"symbol", ev.symbol,
			"quantity", m.Trade.Quantity,
			"price", m.Trade.Price)

		e.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicFills, Payload: m.Trade})
		e.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicOrderStatus, Payload: m.MakerFill})
		e.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicOrderStatus, Payload: m.TakerFill})

		if lst.maker != nil {
			lst.maker.NotifyPrice(m.Trade.Price)
		}
	}

	if ev.cancel != nil {
		e.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicOrderStatus, Payload: *ev.cancel})
	}
}

func (e *Exchange) onAlert(listings map[string]*listing, env eventbus.Envelope) {
	pu, ok := env.Payload.(sim.PriceUpdate)
	if !ok {
		return
	}
	if lst, ok := listings[pu.Symbol]; ok {
		lst.stock.Price = pu.Price
	}
}
