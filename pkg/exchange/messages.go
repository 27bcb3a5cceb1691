package exchange

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockexchange/pkg/exchange/book"
)

// Stock is a registry entry: a listed symbol and its last traded (or
// registered) reference price.
type Stock struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// The coordinator's inbound command set. Every command carries a
// dedicated reply channel (buffered, capacity 1) that the coordinator
// resolves exactly once with a value or an explicit error.

type cmdRegisterStock struct {
	stock Stock
	reply chan error
}

type cmdRegisterMaker struct {
	symbol string
	price  decimal.Decimal
	reply  chan error
}

type cmdExecuteTrade struct {
	order book.Order
	reply chan error
}

type cmdCancelOrder struct {
	symbol string
	id     uuid.UUID
	reply  chan error
}

type cmdGetPrice struct {
	symbol string
	reply  chan priceReply
}

type cmdListStocks struct {
	reply chan []Stock
}

type cmdSnapshot struct {
	symbol string
	depth  int
	reply  chan snapshotReply
}

type priceReply struct {
	price decimal.Decimal
	err   error
}

type snapshotReply struct {
	snap book.Snapshot
	err  error
}
