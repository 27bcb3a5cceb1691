package api

// REST/WebSocket wire types. Prices travel as fixed two-decimal strings.

type StockInfo struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Price  string `json:"price"`
}

type PriceInfo struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type PriceLevel struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// TradeUpdate is streamed to WebSocket clients on the trades channels.
type TradeUpdate struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client-to-server subscription control
// message: {"op":"subscribe","channels":["trades:IBM"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}
