// Package book holds the per-symbol order book and the matching
// algorithm. A Book is not safe for concurrent use: each instance is
// exclusively owned by its symbol's worker goroutine, which is the only
// concurrency-safety mechanism the book relies on.
package book

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Book keeps resting buys ordered best-first (price descending) and
// resting sells ordered best-first (price ascending); within a price,
// arrival order wins. Invariant: between calls, the best bid price is
// strictly below the best ask price whenever both sides are non-empty.
type Book struct {
	symbol string

	bids *btree.BTreeG[*Order]
	asks *btree.BTreeG[*Order]

	// resting indexes live orders by ID for O(log n) cancellation.
	resting map[uuid.UUID]*Order

	seq uint64
}

func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids: btree.NewBTreeG(func(a, b *Order) bool {
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
			return a.Seq < b.Seq
		}),
		asks: btree.NewBTreeG(func(a, b *Order) bool {
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
			return a.Seq < b.Seq
		}),
		resting: make(map[uuid.UUID]*Order),
	}
}

func (b *Book) Symbol() string { return b.symbol }

// Add validates and inserts an order, then drains every crossing
// opportunity. It returns one Match per trade, in execution order.
func (b *Book) Add(o Order) ([]Match, error) {
	if o.Quantity <= 0 {
		return nil, fmt.Errorf("quantity %d: %w", o.Quantity, ErrInvalidOrder)
	}
	// Round before validating: a sub-cent price rounds to 0.00 and must
	// be rejected, never rested.
	o.Price = o.Price.Round(2)
	if !o.Price.IsPositive() {
		return nil, fmt.Errorf("price %s: %w", o.Price, ErrInvalidOrder)
	}

	b.seq++
	o.Seq = b.seq
	b.insert(&o)

	return b.drain(), nil
}

// Cancel removes a resting order. The bool reports whether the order
// was present.
func (b *Book) Cancel(id uuid.UUID) (Cancellation, bool) {
	o, ok := b.resting[id]
	if !ok {
		return Cancellation{}, false
	}
	b.remove(o)
	return Cancellation{ID: uuid.New(), OrderID: id, Time: time.Now()}, true
}

// BestBid returns the highest resting buy price.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	o, ok := b.bids.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return o.Price, true
}

// BestAsk returns the lowest resting sell price.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	o, ok := b.asks.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return o.Price, true
}

// Resting looks up a live order by ID.
func (b *Book) Resting(id uuid.UUID) (Order, bool) {
	o, ok := b.resting[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (b *Book) Len() int { return len(b.resting) }

// Level aggregates the resting quantity at one price.
type Level struct {
	Price    decimal.Decimal
	Quantity int64
}

// Snapshot describes the top depth price levels of each side,
// best-first. depth <= 0 means the whole book.
type Snapshot struct {
	Symbol string
	Bids   []Level
	Asks   []Level
}

func (b *Book) Snapshot(depth int) Snapshot {
	return Snapshot{
		Symbol: b.symbol,
		Bids:   levels(b.bids, depth),
		Asks:   levels(b.asks, depth),
	}
}

func levels(side *btree.BTreeG[*Order], depth int) []Level {
	var out []Level
	side.Scan(func(o *Order) bool {
		if n := len(out); n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Quantity += o.Quantity
			return true
		}
		if depth > 0 && len(out) == depth {
			return false
		}
		out = append(out, Level{Price: o.Price, Quantity: o.Quantity})
		return true
	})
	return out
}

// drain runs the matching loop: while the best bid crosses the best
// ask, trade min(bidQty, askQty) at the resting (maker) order's price,
// where the maker is the side with the older sequence. Remainders are
// re-inserted with their identity and sequence intact.
func (b *Book) drain() []Match {
	var matches []Match
	for {
		bid, okBid := b.bids.Min()
		ask, okAsk := b.asks.Min()
		if !okBid || !okAsk || bid.Price.LessThan(ask.Price) {
			return matches
		}

		matched := min(bid.Quantity, ask.Quantity)
		maker, taker := bid, ask
		if ask.Seq < bid.Seq {
			maker, taker = ask, bid
		}
		price := maker.Price

		b.remove(bid)
		b.remove(ask)
		if bid.Quantity > matched {
			rem := *bid
			rem.Quantity -= matched
			b.insert(&rem)
		}
		if ask.Quantity > matched {
			rem := *ask
			rem.Quantity -= matched
			b.insert(&rem)
		}

		matches = append(matches, Match{
			Trade: Trade{
				ID:       uuid.New(),
				Time:     time.Now(),
				Symbol:   b.symbol,
				Quantity: matched,
				Price:    price,
			},
			MakerFill: Fill{ID: uuid.New(), OrderID: maker.ID, Price: price, Quantity: matched},
			TakerFill: Fill{ID: uuid.New(), OrderID: taker.ID, Price: price, Quantity: matched},
		})
	}
}

func (b *Book) insert(o *Order) {
	b.side(o.Side).Set(o)
	b.resting[o.ID] = o
}

func (b *Book) remove(o *Order) {
	b.side(o.Side).Delete(o)
	delete(b.resting, o.ID)
}

func (b *Book) side(s Side) *btree.BTreeG[*Order] {
	if s == Buy {
		return b.bids
	}
	return b.asks
}
