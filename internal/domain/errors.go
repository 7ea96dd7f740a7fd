package domain

import "errors"

var (
	// ErrOutOfOrderCandle marks a candle older than the open candle of its series.
	// The update is dropped, never applied.
	ErrOutOfOrderCandle = errors.New("out of order candle")

	// ErrInsufficientHistory means not enough sealed candles exist yet.
	// Callers treat it as "not ready".
	ErrInsufficientHistory = errors.New("insufficient candle history")

	// ErrInvalidTransition is returned for position transitions the state machine forbids.
	ErrInvalidTransition = errors.New("invalid position transition")
)
