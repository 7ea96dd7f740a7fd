package strategy

import (
	"fmt"
	"math"

	"bytra_go/internal/domain"
)

// EMAParams configures the moving-average crossover variant.
type EMAParams struct {
	orderParams

	Fast int
	Slow int
}

// EMAParamsFrom applies settings over the defaults (9/21).
func EMAParamsFrom(s Settings) EMAParams {
	p := EMAParams{orderParams: orderParamsFrom(s), Fast: 9, Slow: 21}
	if s.Fast > 0 {
		p.Fast = s.Fast
	}
	if s.Slow > 0 {
		p.Slow = s.Slow
	}
	return p
}

// EMACross goes long when the fast average crosses above the slow one and
// short on the opposite cross. It exits whenever the averages disagree with
// the position.
type EMACross struct {
	p       EMAParams
	profile Profile
}

// NewEMACross validates params and builds the strategy.
func NewEMACross(p EMAParams) (*EMACross, error) {
	if p.Fast <= 0 || p.Slow <= 0 || p.Fast >= p.Slow {
		return nil, fmt.Errorf("ema periods must satisfy 0 < fast < slow, got %d/%d", p.Fast, p.Slow)
	}
	if p.History < p.Slow+1 {
		return nil, fmt.Errorf("ema history %d too short for slow period %d", p.History, p.Slow)
	}
	return &EMACross{p: p, profile: p.profile("ema")}, nil
}

// Profile implements Strategy.
func (s *EMACross) Profile() Profile { return s.profile }

type emaPair struct {
	prevFast, prevSlow float64
	fast, slow         float64
}

func (s *EMACross) averages(state MarketState) (emaPair, bool) {
	candles, err := state.ClosedCandles(s.p.TimeFrame, s.p.History)
	if err != nil {
		return emaPair{}, false
	}
	closes := domain.Closes(candles)
	if len(closes) < 2 {
		return emaPair{}, false
	}
	prev := closes[:len(closes)-1]
	e := emaPair{
		prevFast: EMA(prev, s.p.Fast),
		prevSlow: EMA(prev, s.p.Slow),
		fast:     EMA(closes, s.p.Fast),
		slow:     EMA(closes, s.p.Slow),
	}
	for _, v := range []float64{e.prevFast, e.prevSlow, e.fast, e.slow} {
		if math.IsNaN(v) {
			return emaPair{}, false
		}
	}
	return e, true
}

// CheckLongEntry implements Strategy.
func (s *EMACross) CheckLongEntry(state MarketState) bool {
	e, ok := s.averages(state)
	return ok && e.prevFast <= e.prevSlow && e.fast > e.slow
}

// CheckShortEntry implements Strategy.
func (s *EMACross) CheckShortEntry(state MarketState) bool {
	e, ok := s.averages(state)
	return ok && e.prevFast >= e.prevSlow && e.fast < e.slow
}

// CheckExit implements Strategy.
func (s *EMACross) CheckExit(state MarketState, pos domain.Position) bool {
	e, ok := s.averages(state)
	if !ok {
		return false
	}
	switch {
	case pos.IsLong():
		return e.fast < e.slow
	case pos.IsShort():
		return e.fast > e.slow
	}
	return false
}
