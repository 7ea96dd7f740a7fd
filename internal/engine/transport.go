package engine

import (
	"context"

	"bytra_go/internal/domain"
	"bytra_go/internal/event"
)

// Transport opens a subscribed connection to the exchange stream.
type Transport interface {
	Connect(ctx context.Context, topics []string) (Conn, error)
}

// Conn is one live stream connection.
type Conn interface {
	// ReadNext blocks for the next frame. It returns ErrStreamClosed when
	// the peer ends the stream and ctx.Err() when ctx is done first; a
	// frame is never lost to cancellation.
	ReadNext(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Codec is the exchange wire contract.
type Codec interface {
	Topics(symbol string, timeframes []string) []string
	Heartbeat() []byte
	Decode(raw []byte) (event.Event, error)
}

// BookSource fetches a full order-book snapshot for resync.
type BookSource interface {
	FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.BookSnapshot, error)
}

// HistorySource fetches past candles, oldest first, for warm-up.
type HistorySource interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
}

// Journal records order actions and executions.
type Journal interface {
	Record(ctx context.Context, ev event.Event) error
}
