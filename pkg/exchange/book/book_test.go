package book

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAddRejectsInvalidOrders(t *testing.T) {
	b := New("IBM")

	cases := []struct {
		name string
		qty  int64
		px   string
	}{
		{"zero quantity", 0, "10.00"},
		{"negative quantity", -5, "10.00"},
		{"zero price", 100, "0"},
		{"negative price", 100, "-1.50"},
		{"sub-cent price rounds to zero", 100, "0.004"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Add(NewOrder("IBM", Buy, tc.qty, dec(tc.px)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOrder))
		})
	}

	assert.Equal(t, 0, b.Len(), "rejected orders must never be inserted")
}

// Orders built by hand bypass the constructor's rounding; Add must still
// reject a price that rounds to zero instead of resting it at 0.00.
func TestAddRejectsHandBuiltSubCentOrder(t *testing.T) {
	b := New("IBM")

	o := Order{ID: uuid.New(), Symbol: "IBM", Side: Sell, Quantity: 10, Price: dec("0.004")}
	_, err := b.Add(o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOrder))

	_, ok := b.BestAsk()
	assert.False(t, ok)
}

func TestNoMatchWithoutCrossing(t *testing.T) {
	b := New("IBM")

	matches, err := b.Add(NewOrder("IBM", Buy, 100, dec("99.00")))
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = b.Add(NewOrder("IBM", Sell, 100, dec("101.00")))
	require.NoError(t, err)
	assert.Empty(t, matches)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, "99.00", bid.StringFixed(2))

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "101.00", ask.StringFixed(2))
}

// A resting BUY 100 @ 101 hit by SELL 50 @ 99 trades 50 at the resting
// order's price; the remainder keeps its identity and stays on the bid.
func TestPartialFillAtRestingPrice(t *testing.T) {
	b := New("IBM")

	buy := NewOrder("IBM", Buy, 100, dec("101.00"))
	matches, err := b.Add(buy)
	require.NoError(t, err)
	require.Empty(t, matches)

	sell := NewOrder("IBM", Sell, 50, dec("99.00"))
	matches, err = b.Add(sell)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, int64(50), m.Trade.Quantity)
	assert.Equal(t, "101.00", m.Trade.Price.StringFixed(2), "trade executes at the maker's price")
	assert.Equal(t, "IBM", m.Trade.Symbol)
	assert.Equal(t, buy.ID, m.MakerFill.OrderID)
	assert.Equal(t, sell.ID, m.TakerFill.OrderID)

	rem, ok := b.Resting(buy.ID)
	require.True(t, ok, "partial fill keeps the original order's identity")
	assert.Equal(t, int64(50), rem.Quantity)
	assert.Equal(t, "101.00", rem.Price.StringFixed(2))

	_, ok = b.BestAsk()
	assert.False(t, ok, "ask side fully consumed")
}

// One aggressive order drains every crossing level, not just one match.
func TestDrainAcrossLevels(t *testing.T) {
	b := New("IBM")

	_, err := b.Add(NewOrder("IBM", Sell, 30, dec("100.00")))
	require.NoError(t, err)
	_, err = b.Add(NewOrder("IBM", Sell, 30, dec("100.50")))
	require.NoError(t, err)
	_, err = b.Add(NewOrder("IBM", Sell, 30, dec("101.00")))
	require.NoError(t, err)

	matches, err := b.Add(NewOrder("IBM", Buy, 80, dec("101.00")))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "100.00", matches[0].Trade.Price.StringFixed(2))
	assert.Equal(t, "100.50", matches[1].Trade.Price.StringFixed(2))
	assert.Equal(t, "101.00", matches[2].Trade.Price.StringFixed(2))
	assert.Equal(t, int64(30), matches[0].Trade.Quantity)
	assert.Equal(t, int64(30), matches[1].Trade.Quantity)
	assert.Equal(t, int64(20), matches[2].Trade.Quantity)

	// 10 shares of the last ask remain; the buy is exhausted.
	snap := b.Snapshot(0)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(10), snap.Asks[0].Quantity)
	assert.Empty(t, snap.Bids)
}

func TestPriceTimePriority(t *testing.T) {
	b := New("IBM")

	first := NewOrder("IBM", Sell, 10, dec("100.00"))
	second := NewOrder("IBM", Sell, 10, dec("100.00"))
	_, err := b.Add(first)
	require.NoError(t, err)
	_, err = b.Add(second)
	require.NoError(t, err)

	matches, err := b.Add(NewOrder("IBM", Buy, 10, dec("100.00")))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, first.ID, matches[0].MakerFill.OrderID, "earlier arrival at equal price matches first")

	_, ok := b.Resting(second.ID)
	assert.True(t, ok)
	_, ok = b.Resting(first.ID)
	assert.False(t, ok)
}

func TestQuantityConservation(t *testing.T) {
	b := New("IBM")

	_, err := b.Add(NewOrder("IBM", Buy, 70, dec("100.00")))
	require.NoError(t, err)

	matches, err := b.Add(NewOrder("IBM", Sell, 200, dec("100.00")))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(70), matches[0].Trade.Quantity)

	snap := b.Snapshot(0)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(130), snap.Asks[0].Quantity, "remainder is original minus matched")
	assert.Empty(t, snap.Bids)
}

func TestCancel(t *testing.T) {
	b := New("IBM")

	o := NewOrder("IBM", Buy, 10, dec("50.00"))
	_, err := b.Add(o)
	require.NoError(t, err)

	notice, ok := b.Cancel(o.ID)
	require.True(t, ok)
	assert.Equal(t, o.ID, notice.OrderID)
	assert.Equal(t, 0, b.Len())

	_, ok = b.Cancel(o.ID)
	assert.False(t, ok, "cancel of a gone order reports absence")
}

// The book must never persist a crossed state, whatever the order flow.
func TestNeverCrossedAfterRandomFlow(t *testing.T) {
	b := New("IBM")
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		side := Buy
		if rng.Intn(2) == 0 {
			side = Sell
		}
		qty := int64(rng.Intn(50) + 1)
		px := decimal.NewFromFloat(90 + rng.Float64()*20).Round(2)

		_, err := b.Add(NewOrder("IBM", side, qty, px))
		require.NoError(t, err)

		bid, okBid := b.BestBid()
		ask, okAsk := b.BestAsk()
		if okBid && okAsk {
			assert.True(t, bid.LessThan(ask),
				"crossed book after insert %d: bid %s >= ask %s", i, bid, ask)
		}

		for _, lvl := range append(b.Snapshot(0).Bids, b.Snapshot(0).Asks...) {
			assert.Positive(t, lvl.Quantity)
		}
	}
}
