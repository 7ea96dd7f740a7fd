package strategy

import (
	"fmt"
	"math"

	"bytra_go/internal/domain"
)

// Oscillator maps a close series to an indicator value. WilderRSI by default.
type Oscillator func(closes []float64, length int) float64

// RSIParams configures the RSI reference strategy.
type RSIParams struct {
	orderParams

	Length     int
	Oversold   float64
	Overbought float64
	Exit       float64

	Oscillator Oscillator
}

// DefaultRSIParams is the stock configuration: BTCUSD on 1-minute candles,
// 1000 candles of history, length 10, thresholds 30/70, exit at 50.
func DefaultRSIParams() RSIParams {
	return RSIParamsFrom(Settings{})
}

// RSIParamsFrom applies settings over the defaults.
func RSIParamsFrom(s Settings) RSIParams {
	p := RSIParams{
		orderParams: orderParamsFrom(s),
		Length:      10,
		Oversold:    30,
		Overbought:  70,
		Exit:        50,
	}
	if s.Length > 0 {
		p.Length = s.Length
	}
	if s.Oversold > 0 {
		p.Oversold = s.Oversold
	}
	if s.Overbought > 0 {
		p.Overbought = s.Overbought
	}
	if s.Exit > 0 {
		p.Exit = s.Exit
	}
	return p
}

// RSI enters long when the oscillator is oversold, short when overbought,
// and exits when it crosses back through the exit level against the position.
type RSI struct {
	p       RSIParams
	profile Profile
}

// NewRSI validates params and builds the strategy.
func NewRSI(p RSIParams) (*RSI, error) {
	if p.Length <= 0 {
		return nil, fmt.Errorf("rsi length must be positive, got %d", p.Length)
	}
	if p.Oversold >= p.Overbought {
		return nil, fmt.Errorf("rsi oversold %.2f must be below overbought %.2f", p.Oversold, p.Overbought)
	}
	if p.History < p.Length+2 {
		return nil, fmt.Errorf("rsi history %d too short for length %d", p.History, p.Length)
	}
	if p.Oscillator == nil {
		p.Oscillator = WilderRSI
	}
	return &RSI{p: p, profile: p.profile("rsi")}, nil
}

// Profile implements Strategy.
func (s *RSI) Profile() Profile { return s.profile }

func (s *RSI) closes(state MarketState) []float64 {
	candles, err := state.ClosedCandles(s.p.TimeFrame, s.p.History)
	if err != nil {
		return nil
	}
	return domain.Closes(candles)
}

// CheckLongEntry implements Strategy.
func (s *RSI) CheckLongEntry(state MarketState) bool {
	closes := s.closes(state)
	if closes == nil {
		return false
	}
	v := s.p.Oscillator(closes, s.p.Length)
	return !math.IsNaN(v) && v < s.p.Oversold
}

// CheckShortEntry implements Strategy.
func (s *RSI) CheckShortEntry(state MarketState) bool {
	closes := s.closes(state)
	if closes == nil {
		return false
	}
	v := s.p.Oscillator(closes, s.p.Length)
	return !math.IsNaN(v) && v > s.p.Overbought
}

// CheckExit implements Strategy. A long exits once the oscillator is below
// the exit level after having been at or above it since the last oversold
// reading in the window; a short mirrors that against the overbought level.
// The crossing need not be on the newest candle, so a cycle skipped while an
// order was pending or the stream was down does not lose the exit.
func (s *RSI) CheckExit(state MarketState, pos domain.Position) bool {
	closes := s.closes(state)
	if len(closes) < 2 {
		return false
	}
	cur := s.p.Oscillator(closes, s.p.Length)
	if math.IsNaN(cur) {
		return false
	}

	var crossed, entryZone func(v float64) bool
	switch {
	case pos.IsLong() && cur < s.p.Exit:
		crossed = func(v float64) bool { return v >= s.p.Exit }
		entryZone = func(v float64) bool { return v < s.p.Oversold }
	case pos.IsShort() && cur > s.p.Exit:
		crossed = func(v float64) bool { return v <= s.p.Exit }
		entryZone = func(v float64) bool { return v > s.p.Overbought }
	default:
		return false
	}

	// walk back from the previous close until the crossing or the entry zone
	for n := len(closes) - 1; n > 0; n-- {
		v := s.p.Oscillator(closes[:n], s.p.Length)
		switch {
		case math.IsNaN(v):
			return false
		case crossed(v):
			return true
		case entryZone(v):
			return false
		}
	}
	return false
}
