package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockexchange/pkg/eventbus"
	"stockexchange/pkg/exchange/book"
)

// subscribed reports whether any connected client holds the channel
// subscription; the subscribe op is applied asynchronously by readPump.
func subscribed(h *Hub, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.IsSubscribed(channel) {
			return true
		}
	}
	return false
}

func TestWebSocketTradeStream(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)
	s.bus.Subscribe(eventbus.TopicFills, s.trades)
	go s.pumpTrades(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{
		Op:       "subscribe",
		Channels: []string{"trades:IBM"},
	}))
	require.Eventually(t, func() bool {
		return subscribed(s.hub, "trades:IBM")
	}, 2*time.Second, 10*time.Millisecond)

	now := time.Now()
	s.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicFills, Payload: book.Trade{
		ID:       uuid.New(),
		Time:     now,
		Symbol:   "IBM",
		Quantity: 50,
		Price:    decimal.RequireFromString("101.00"),
	}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var update TradeUpdate
	require.NoError(t, conn.ReadJSON(&update))

	assert.Equal(t, "trade", update.Type)
	assert.Equal(t, "IBM", update.Symbol)
	assert.Equal(t, "101.00", update.Price)
	assert.Equal(t, int64(50), update.Quantity)
	assert.Equal(t, now.UnixMilli(), update.Timestamp)
}

// Trades for symbols outside the client's subscriptions never reach it:
// a GOOGL trade first, then an IBM trade — only the IBM update arrives.
func TestWebSocketFiltersBySubscription(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)
	s.bus.Subscribe(eventbus.TopicFills, s.trades)
	go s.pumpTrades(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{
		Op:       "subscribe",
		Channels: []string{"trades:IBM"},
	}))
	require.Eventually(t, func() bool {
		return subscribed(s.hub, "trades:IBM")
	}, 2*time.Second, 10*time.Millisecond)

	for _, symbol := range []string{"GOOGL", "IBM"} {
		s.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicFills, Payload: book.Trade{
			ID:       uuid.New(),
			Time:     time.Now(),
			Symbol:   symbol,
			Quantity: 10,
			Price:    decimal.RequireFromString("5.00"),
		}})
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var update TradeUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "IBM", update.Symbol, "unsubscribed symbol must be filtered out")
}

// After the hub shuts down, clients detach promptly instead of blocking
// forever on the register channels.
func TestHubShutdownReleasesClients(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 1), subscriptions: make(map[string]bool)}
	require.True(t, h.add(c))

	cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	done := make(chan struct{})
	go func() {
		h.drop(c)
		assert.False(t, h.add(c), "add must refuse clients after shutdown")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client teardown blocked after hub shutdown")
	}
}
