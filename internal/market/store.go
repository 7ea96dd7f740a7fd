// Package market holds the candle series and order book of the traded symbol.
// It is a pure state container: no network, no clock.
package market

import (
	"fmt"
	"sort"

	"bytra_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Store owns the per-timeframe candle series and the order book.
// It is not safe for concurrent use; a single session loop mutates it.
type Store struct {
	symbol string
	series map[string][]domain.Candle
	book   *OrderBook
}

// NewStore creates an empty store for symbol.
func NewStore(symbol string) *Store {
	return &Store{
		symbol: symbol,
		series: make(map[string][]domain.Candle),
		book:   NewOrderBook(),
	}
}

// Symbol returns the traded symbol.
func (s *Store) Symbol() string { return s.symbol }

// AppendOrUpdateCandle merges one candle update into the timeframe series.
// Same openTime as the last candle overwrites it in place; a newer openTime
// seals the previous candle and appends. An older openTime is rejected with
// ErrOutOfOrderCandle and the series is left untouched.
//
// sealed reports whether the update made a new closed candle available,
// either by sealing the previous one or by carrying the exchange's close flag.
func (s *Store) AppendOrUpdateCandle(timeframe string, c domain.Candle) (sealed bool, err error) {
	candles := s.series[timeframe]
	if len(candles) == 0 {
		s.series[timeframe] = append(candles, c)
		return c.IsClosed, nil
	}

	last := &candles[len(candles)-1]
	switch {
	case c.OpenTime.Equal(last.OpenTime):
		wasClosed := last.IsClosed
		*last = c
		if wasClosed {
			last.IsClosed = true // a sealed candle never reopens
		}
		return !wasClosed && last.IsClosed, nil

	case c.OpenTime.Before(last.OpenTime):
		return false, fmt.Errorf("%w: %s series at %s, got %s",
			domain.ErrOutOfOrderCandle, timeframe, last.OpenTime.UTC().Format("2006-01-02T15:04:05Z"),
			c.OpenTime.UTC().Format("2006-01-02T15:04:05Z"))
	}

	if !last.IsClosed {
		last.IsClosed = true
		sealed = true
	}
	s.series[timeframe] = append(candles, c)
	return sealed || c.IsClosed, nil
}

// ClosedCandles returns the most recent count sealed candles in chronological
// order. The open candle is never included.
func (s *Store) ClosedCandles(timeframe string, count int) ([]domain.Candle, error) {
	closed := s.closed(timeframe)
	if count < 0 || len(closed) < count {
		return nil, fmt.Errorf("%w: %s has %d closed candles, need %d",
			domain.ErrInsufficientHistory, timeframe, len(closed), count)
	}
	out := make([]domain.Candle, count)
	copy(out, closed[len(closed)-count:])
	return out, nil
}

// ClosedCount returns the number of sealed candles in the series.
func (s *Store) ClosedCount(timeframe string) int {
	return len(s.closed(timeframe))
}

func (s *Store) closed(timeframe string) []domain.Candle {
	candles := s.series[timeframe]
	if n := len(candles); n > 0 && !candles[n-1].IsClosed {
		return candles[:n-1]
	}
	return candles
}

// LatestClose returns the close of the newest candle, open or not.
func (s *Store) LatestClose(timeframe string) (float64, bool) {
	candles := s.series[timeframe]
	if len(candles) == 0 {
		return 0, false
	}
	return candles[len(candles)-1].Close, true
}

// Latest returns the newest candle of the series, open or not.
func (s *Store) Latest(timeframe string) (domain.Candle, bool) {
	candles := s.series[timeframe]
	if len(candles) == 0 {
		return domain.Candle{}, false
	}
	return candles[len(candles)-1], true
}

// Reset empties the series and returns how many candles it held.
func (s *Store) Reset(timeframe string) int {
	n := len(s.series[timeframe])
	delete(s.series, timeframe)
	return n
}

// Prune drops the oldest sealed candles so at most keepClosed remain,
// plus the open candle if any. It returns how many were dropped.
func (s *Store) Prune(timeframe string, keepClosed int) int {
	if keepClosed < 0 {
		keepClosed = 0
	}
	closedN := len(s.closed(timeframe))
	drop := closedN - keepClosed
	if drop <= 0 {
		return 0
	}
	candles := s.series[timeframe]
	kept := make([]domain.Candle, len(candles)-drop)
	copy(kept, candles[drop:])
	s.series[timeframe] = kept
	return drop
}

// Timeframes lists the series present, sorted.
func (s *Store) Timeframes() []string {
	out := make([]string, 0, len(s.series))
	for tf := range s.series {
		out = append(out, tf)
	}
	sort.Strings(out)
	return out
}

// Book exposes the order book for reads.
func (s *Store) Book() *OrderBook { return s.book }

// ApplyBookDelta upserts or removes one level.
func (s *Store) ApplyBookDelta(side domain.BookSide, price, size decimal.Decimal) error {
	return s.book.ApplyDelta(side, price, size)
}

// ReplaceBook atomically replaces the order book.
func (s *Store) ReplaceBook(snap domain.BookSnapshot) error {
	return s.book.Replace(snap)
}

// State is a copy of the store contents, used for snapshots.
type State struct {
	Symbol string                     `json:"symbol"`
	Series map[string][]domain.Candle `json:"series"`
	Book   domain.BookSnapshot        `json:"book"`
}

// State copies the full store contents.
func (s *Store) State() State {
	series := make(map[string][]domain.Candle, len(s.series))
	for tf, candles := range s.series {
		cp := make([]domain.Candle, len(candles))
		copy(cp, candles)
		series[tf] = cp
	}
	return State{
		Symbol: s.symbol,
		Series: series,
		Book:   s.book.Snapshot(s.symbol, 0),
	}
}
