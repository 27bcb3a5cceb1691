// Package api exposes a read-only market-data surface over HTTP and
// WebSocket: listed stocks, last prices, book depth, and a live trade
// stream fed from the fills topic. It accepts no trade commands; the
// exchange's command boundary stays in-process.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"stockexchange/pkg/eventbus"
	"stockexchange/pkg/exchange"
	"stockexchange/pkg/exchange/book"
)

const snapshotDepth = 20

type Server struct {
	ex     *exchange.Exchange
	bus    *eventbus.Bus
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	trades chan eventbus.Envelope
	srv    *http.Server
}

func NewServer(ex *exchange.Exchange, bus *eventbus.Bus, log *zap.SugaredLogger) *Server {
	s := &Server{
		ex:     ex,
		bus:    bus,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
		trades: make(chan eventbus.Envelope, 256),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/stocks", s.handleListStocks).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/price", s.handleGetPrice).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped root handler; used by Start and by
// tests that drive the server through httptest.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)
	s.bus.Subscribe(eventbus.TopicFills, s.trades)
	go s.pumpTrades(ctx)

	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_server_starting", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pumpTrades forwards fills-topic trades to subscribed WebSocket
// clients, on both the per-symbol and the firehose channel.
func (s *Server) pumpTrades(ctx context.Context) {
	defer s.bus.Unsubscribe(eventbus.TopicFills, s.trades)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.trades:
			t, ok := env.Payload.(book.Trade)
			if !ok {
				continue
			}
			update := TradeUpdate{
				Type:      "trade",
				Symbol:    t.Symbol,
				Price:     t.Price.StringFixed(2),
				Quantity:  t.Quantity,
				Timestamp: t.Time.UnixMilli(),
			}
			s.hub.BroadcastToChannel("trades:"+t.Symbol, update)
			s.hub.BroadcastToChannel("trades", update)
		}
	}
}

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.ex.ListStocks(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "exchange unavailable", err.Error())
		return
	}

	response := make([]StockInfo, len(stocks))
	for i, st := range stocks {
		response[i] = StockInfo{
			Symbol: st.Symbol,
			Name:   st.Name,
			Price:  st.Price.StringFixed(2),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	price, err := s.ex.GetStockPrice(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, exchange.ErrUnknownSymbol) {
			respondError(w, http.StatusNotFound, "unknown symbol", symbol)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "exchange unavailable", err.Error())
		return
	}

	respondJSON(w, PriceInfo{Symbol: symbol, Price: price.StringFixed(2)})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	snap, err := s.ex.BookSnapshot(r.Context(), symbol, snapshotDepth)
	if err != nil {
		if errors.Is(err, exchange.ErrUnknownSymbol) {
			respondError(w, http.StatusNotFound, "unknown symbol", symbol)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "exchange unavailable", err.Error())
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Symbol:    symbol,
		Bids:      toLevels(snap.Bids),
		Asks:      toLevels(snap.Asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func toLevels(levels []book.Level) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price.StringFixed(2), Quantity: l.Quantity}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
