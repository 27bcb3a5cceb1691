package exchange

import (
	"errors"

	"stockexchange/pkg/exchange/book"
)

var (
	// ErrUnknownSymbol reports a command against a symbol that was
	// never registered.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrDuplicateSymbol reports a re-registration. Registration is not
	// an upsert; the first listing wins.
	ErrDuplicateSymbol = errors.New("symbol already registered")

	// ErrUnknownOrder reports a cancel for an order that is not resting.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrRoutingFailure reports that the coordinator or a symbol's
	// worker could not be reached in time. Fatal to the one command
	// only, never to the process.
	ErrRoutingFailure = errors.New("routing failure")
)

// ErrInvalidOrder mirrors the book's validation error at the command
// surface.
var ErrInvalidOrder = book.ErrInvalidOrder
