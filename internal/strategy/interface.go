package strategy

import (
	"bytra_go/internal/domain"

	"github.com/shopspring/decimal"
)

// MarketState is the read-only view of market data a strategy decides on.
type MarketState interface {
	// ClosedCandles returns the last count sealed candles of a timeframe,
	// or domain.ErrInsufficientHistory.
	ClosedCandles(timeframe string, count int) ([]domain.Candle, error)
}

// Strategy defines the interface for trading logic.
// Implementations are pure functions of the closed-candle history: no I/O,
// no hidden state. The session enforces the warm-up gate before calling them.
type Strategy interface {
	Profile() Profile

	CheckLongEntry(state MarketState) bool
	CheckShortEntry(state MarketState) bool
	CheckExit(state MarketState, pos domain.Position) bool
}

// Profile is what a strategy declares about itself: where it trades,
// which history it needs and how its orders look.
type Profile struct {
	Name        string
	Symbol      string
	TimeFrames  []domain.TimeFrame
	Qty         decimal.Decimal
	OrderType   domain.OrderType
	Slippage    decimal.Decimal
	StopLossPct float64
}
