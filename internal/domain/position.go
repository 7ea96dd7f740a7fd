package domain

import "github.com/shopspring/decimal"

// PositionSide is the exposure direction of a position.
type PositionSide string

const (
	Flat  PositionSide = "FLAT"
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Position represents the single open position of the traded symbol.
// A zero Position is Flat.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
}

// IsLong checks if the position is Long.
func (p *Position) IsLong() bool {
	return p.Side == Long
}

// IsShort checks if the position is Short.
func (p *Position) IsShort() bool {
	return p.Side == Short
}

// IsFlat reports whether there is no exposure.
func (p *Position) IsFlat() bool {
	return p.Side == "" || p.Side == Flat
}

// EntrySide returns the order side that opens a position in this direction.
func (s PositionSide) EntrySide() OrderSide {
	if s == Short {
		return SideSell
	}
	return SideBuy
}

// ExitSide returns the order side that closes a position in this direction.
func (s PositionSide) ExitSide() OrderSide {
	if s == Short {
		return SideBuy
	}
	return SideSell
}
