package book

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidOrder rejects orders with a non-positive quantity or price
// before they reach a book.
var ErrInvalidOrder = errors.New("invalid order")

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Order is a value-immutable trade instruction. A partial fill produces
// a reduced copy that keeps the original ID and sequence number: the
// remainder is still the same order to the outside world and keeps its
// time priority.
type Order struct {
	ID        uuid.UUID
	Symbol    string
	Side      Side
	Quantity  int64
	Price     decimal.Decimal
	CreatedAt time.Time

	// Seq is the arrival sequence assigned by the book at insertion.
	// It is the secondary sort key that makes price priority price-time
	// priority.
	Seq uint64
}

// NewOrder builds an order with a fresh identity. Prices are kept at
// two decimal places throughout the system.
func NewOrder(symbol string, side Side, quantity int64, price decimal.Decimal) Order {
	return Order{
		ID:        uuid.New(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price.Round(2),
		CreatedAt: time.Now(),
	}
}

// Trade is a completed match: quantity crossed at the resting order's
// price. Produced only by the matching algorithm, never mutated.
type Trade struct {
	ID       uuid.UUID
	Time     time.Time
	Symbol   string
	Quantity int64
	Price    decimal.Decimal
}

// Fill records the execution against a single order during a match.
type Fill struct {
	ID       uuid.UUID
	OrderID  uuid.UUID
	Price    decimal.Decimal
	Quantity int64
}

// Cancellation records the removal of a resting order.
type Cancellation struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	Time    time.Time
}

// Match bundles the events of one matching step: the trade itself plus
// one fill per side. The maker is the order that was resting first.
type Match struct {
	Trade     Trade
	MakerFill Fill
	TakerFill Fill
}
