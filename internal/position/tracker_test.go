package position

import (
	"testing"

	"bytra_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTracker_OpenFromFlat(t *testing.T) {
	tests := []struct {
		name     string
		side     domain.PositionSide
		wantStop string
	}{
		{"long stop below entry", domain.Long, "9700"},
		{"short stop above entry", domain.Short, "10300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker("BTCUSD", 0.03)
			require.NoError(t, tr.Open(tt.side, dec("10000"), dec("100"), dec("0.03")))

			pos := tr.Position()
			assert.Equal(t, tt.side, pos.Side)
			assert.True(t, pos.StopLossPrice.Equal(dec(tt.wantStop)), "stop = %s", pos.StopLossPrice)
			assert.True(t, pos.Quantity.Equal(dec("100")))
			assert.Equal(t, tt.side == domain.Long, tr.IsLong())
			assert.Equal(t, tt.side == domain.Short, tr.IsShort())
		})
	}
}

func TestTracker_InvalidTransitions(t *testing.T) {
	t.Run("open while long", func(t *testing.T) {
		tr := NewTracker("BTCUSD", 0.03)
		require.NoError(t, tr.Open(domain.Long, dec("100"), dec("1"), dec("0.03")))
		err := tr.Open(domain.Short, dec("100"), dec("1"), dec("0.03"))
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.True(t, tr.IsLong(), "no direct Long -> Short")
	})

	t.Run("open while short", func(t *testing.T) {
		tr := NewTracker("BTCUSD", 0.03)
		require.NoError(t, tr.Open(domain.Short, dec("100"), dec("1"), dec("0.03")))
		assert.ErrorIs(t, tr.Open(domain.Short, dec("100"), dec("1"), dec("0.03")), domain.ErrInvalidTransition)
	})

	t.Run("close while flat", func(t *testing.T) {
		tr := NewTracker("BTCUSD", 0.03)
		assert.ErrorIs(t, tr.Close(), domain.ErrInvalidTransition)
	})

	t.Run("open flat side", func(t *testing.T) {
		tr := NewTracker("BTCUSD", 0.03)
		assert.ErrorIs(t, tr.Open(domain.Flat, dec("100"), dec("1"), dec("0.03")), domain.ErrInvalidTransition)
	})
}

func TestTracker_CloseReturnsToFlat(t *testing.T) {
	for _, side := range []domain.PositionSide{domain.Long, domain.Short} {
		tr := NewTracker("BTCUSD", 0.03)
		require.NoError(t, tr.Open(side, dec("100"), dec("1"), dec("0.03")))
		require.NoError(t, tr.Close())
		assert.True(t, tr.IsFlat())
		assert.False(t, tr.IsLong())
		assert.False(t, tr.IsShort())

		// Flat again, so a new entry is allowed.
		require.NoError(t, tr.Open(domain.Long, dec("100"), dec("1"), dec("0.03")))
	}
}

func entryRequest(link string, side domain.OrderSide, qty string) domain.OrderRequest {
	return domain.OrderRequest{
		LinkID:  link,
		Symbol:  "BTCUSD",
		Side:    side,
		Type:    domain.OrderTypeLimit,
		Purpose: domain.PurposeEntry,
		Qty:     dec(qty),
	}
}

func TestTracker_ApplyPartialFillsThenExit(t *testing.T) {
	tr := NewTracker("BTCUSD", 0.03)
	tr.Track(entryRequest("e1", domain.SideBuy, "100"), domain.OrderHandle{OrderID: "o1", LinkID: "e1"})
	require.True(t, tr.HasPending())

	ok, err := tr.Apply(domain.Execution{LinkID: "e1", Symbol: "BTCUSD", Kind: domain.ExecPartialFill, Price: dec("100"), Qty: dec("40"), LeavesQty: dec("60")})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, tr.IsLong())
	assert.True(t, tr.HasPending())

	// Matched by exchange order id when the link id is missing.
	ok, err = tr.Apply(domain.Execution{OrderID: "o1", Symbol: "BTCUSD", Kind: domain.ExecFill, Price: dec("110"), Qty: dec("60")})
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, tr.HasPending())

	pos := tr.Position()
	assert.True(t, pos.Quantity.Equal(dec("100")))
	assert.True(t, pos.EntryPrice.Equal(dec("106")), "vwap entry = %s", pos.EntryPrice)
	assert.True(t, pos.StopLossPrice.Equal(dec("102.82")), "stop = %s", pos.StopLossPrice)

	exit := domain.OrderRequest{LinkID: "x1", Symbol: "BTCUSD", Side: domain.SideSell, Purpose: domain.PurposeExit, Qty: dec("100"), ReduceOnly: true}
	tr.Track(exit, domain.OrderHandle{OrderID: "o2", LinkID: "x1"})
	_, err = tr.Apply(domain.Execution{LinkID: "x1", Symbol: "BTCUSD", Kind: domain.ExecPartialFill, Price: dec("120"), Qty: dec("30"), LeavesQty: dec("70")})
	require.NoError(t, err)
	assert.True(t, tr.Position().Quantity.Equal(dec("70")))

	_, err = tr.Apply(domain.Execution{LinkID: "x1", Symbol: "BTCUSD", Kind: domain.ExecFill, Price: dec("120"), Qty: dec("70")})
	require.NoError(t, err)
	assert.True(t, tr.IsFlat())
	assert.False(t, tr.HasPending())
}

func TestTracker_ApplyCancel(t *testing.T) {
	tr := NewTracker("BTCUSD", 0.03)
	tr.Track(entryRequest("e1", domain.SideSell, "10"), domain.OrderHandle{OrderID: "o1", LinkID: "e1"})

	ok, err := tr.Apply(domain.Execution{LinkID: "e1", Kind: domain.ExecCancel})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, tr.HasPending())
	assert.True(t, tr.IsFlat())
}

func TestTracker_ApplyStopLossFill(t *testing.T) {
	tr := NewTracker("BTCUSD", 0.03)
	require.NoError(t, tr.Open(domain.Short, dec("100"), dec("5"), dec("0.03")))

	ok, err := tr.Apply(domain.Execution{OrderID: "exchange-stop", Symbol: "BTCUSD", Kind: domain.ExecFill, StopLoss: true, Price: dec("103"), Qty: dec("5")})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, tr.IsFlat())
}

func TestTracker_ApplyIgnoresUnknown(t *testing.T) {
	tr := NewTracker("BTCUSD", 0.03)

	ok, err := tr.Apply(domain.Execution{OrderID: "manual", Symbol: "BTCUSD", Kind: domain.ExecFill, Qty: dec("1")})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tr.Apply(domain.Execution{LinkID: "e1", Symbol: "ETHUSD", Kind: domain.ExecFill, Qty: dec("1")})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, tr.IsFlat())
}
