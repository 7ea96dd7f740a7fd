package domain

import (
	"strconv"
	"time"
)

// Candle is one OHLCV bar of a (symbol, timeframe) series.
// The last candle of a series may still be open; it is mutated in place
// until a newer period begins.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	IsClosed bool      `json:"is_closed"`
}

// TimeFrame identifies a candle series and how many trailing closed candles
// a strategy needs from it.
type TimeFrame struct {
	Unit                  string `json:"unit"` // exchange interval code, e.g. "1" for one minute
	RequiredHistoryLength int    `json:"required_history_length"`
}

// Interval is the period length of an exchange interval code: minutes as
// digits, "D" and "W". Month candles have no fixed length and report false.
func Interval(unit string) (time.Duration, bool) {
	switch unit {
	case "D":
		return 24 * time.Hour, true
	case "W":
		return 7 * 24 * time.Hour, true
	}
	n, err := strconv.Atoi(unit)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Minute, true
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
