package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bytra_go/internal/domain"
	"bytra_go/internal/event"
	"bytra_go/internal/strategy"

	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

// fakeCodec decodes frames of the form "ev:<n>" into registered events.
type fakeCodec struct {
	mu     sync.Mutex
	events map[string]event.Event
	seq    int
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{events: make(map[string]event.Event)}
}

func (c *fakeCodec) frame(ev event.Event) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	key := fmt.Sprintf("ev:%d", c.seq)
	c.events[key] = ev
	return []byte(key)
}

func (c *fakeCodec) Topics(symbol string, timeframes []string) []string {
	topics := []string{"orderbook." + symbol, "execution"}
	for _, tf := range timeframes {
		topics = append(topics, "kline."+tf+"."+symbol)
	}
	return topics
}

func (c *fakeCodec) Heartbeat() []byte { return []byte("ping") }

func (c *fakeCodec) Decode(raw []byte) (event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if string(raw) == "pong" {
		return &event.HeartbeatAckEvent{}, nil
	}
	ev, ok := c.events[string(raw)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", event.ErrUnknownTopic, raw)
	}
	return ev, nil
}

// fakeConn serves queued frames, then either the idle frame, a stream
// close, or blocks until ctx is done.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	sent   [][]byte
	idle   []byte
	eof    bool
	fault  error
	closed bool
}

func (c *fakeConn) push(frames ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frames...)
}

func (c *fakeConn) ReadNext(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return f, nil
	}
	idle, eof, fault := c.idle, c.eof, c.fault
	c.mu.Unlock()

	switch {
	case fault != nil:
		return nil, fault
	case eof:
		return nil, ErrStreamClosed
	case idle != nil:
		return idle, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("send on closed conn")
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount(frame string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.sent {
		if string(f) == frame {
			n++
		}
	}
	return n
}

type fakeTransport struct {
	mu       sync.Mutex
	conns    []*fakeConn
	next     int
	fails    int // connect attempts to fail before succeeding
	dials    int
	topics   []string
	dialHook func()
}

func (t *fakeTransport) Connect(ctx context.Context, topics []string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	t.topics = topics
	if t.dialHook != nil {
		t.dialHook()
	}
	if t.fails > 0 {
		t.fails--
		return nil, errors.New("dial refused")
	}
	if t.next >= len(t.conns) {
		return nil, errors.New("no more connections")
	}
	c := t.conns[t.next]
	t.next++
	return c, nil
}

type fakeBooks struct {
	calls int
	err   error
	snap  domain.BookSnapshot
}

func (b *fakeBooks) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.BookSnapshot, error) {
	b.calls++
	if b.err != nil {
		return domain.BookSnapshot{}, b.err
	}
	return b.snap, nil
}

type fakeHistory struct {
	candles []domain.Candle
	err     error
	calls   int
	limits  []int
}

func (h *fakeHistory) FetchCandles(ctx context.Context, symbol, tf string, limit int) ([]domain.Candle, error) {
	h.calls++
	h.limits = append(h.limits, limit)
	if h.err != nil {
		return nil, h.err
	}
	return h.candles, nil
}

type recordingJournal struct {
	mu     sync.Mutex
	events []event.Event
}

func (j *recordingJournal) Record(ctx context.Context, ev event.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

// scriptedStrategy reports fixed signals on a single timeframe.
type scriptedStrategy struct {
	history int
	long    bool
	short   bool
	exit    bool
	calls   int
}

func (s *scriptedStrategy) Profile() strategy.Profile {
	return strategy.Profile{
		Name:        "scripted",
		Symbol:      "BTCUSD",
		TimeFrames:  []domain.TimeFrame{{Unit: "1", RequiredHistoryLength: s.history}},
		Qty:         decimal.NewFromInt(100),
		OrderType:   domain.OrderTypeLimit,
		Slippage:    decimal.NewFromInt(5),
		StopLossPct: 0.03,
	}
}

func (s *scriptedStrategy) CheckLongEntry(strategy.MarketState) bool {
	s.calls++
	return s.long
}

func (s *scriptedStrategy) CheckShortEntry(strategy.MarketState) bool { return s.short }

func (s *scriptedStrategy) CheckExit(strategy.MarketState, domain.Position) bool { return s.exit }

var t0 = time.Unix(1_700_000_000, 0).UTC()

func candleAt(minute int, close float64, closed bool) *event.CandleEvent {
	return &event.CandleEvent{
		Symbol:    "BTCUSD",
		Timeframe: "1",
		Candle: domain.Candle{
			OpenTime: t0.Add(time.Duration(minute) * time.Minute),
			Open:     close, High: close, Low: close, Close: close,
			IsClosed: closed,
		},
	}
}
